package leader

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithoutRedisCallsDirectly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	called := false
	err := Run(ctx, nil, "gate:leader:test", 0, func(runCtx context.Context) {
		called = true
		cancel()
	})
	assert.True(t, called)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRejectsNilFunc(t *testing.T) {
	require.Error(t, Run(context.Background(), nil, "k", 0, nil))
}

func TestNewIDIsUnique(t *testing.T) {
	a, b := newID(), newID()
	assert.NotEqual(t, a, b)
	assert.Equal(t, strings.Count(a, "-") >= 3, true)
}
