package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"gorm.io/gorm"

	"github.com/aprovacriativos/backend/internal/models"
	"github.com/aprovacriativos/backend/internal/utils"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrInvalidMonth   = errors.New("month must be formatted as YYYY-MM")
)

const (
	approvalTokenBytes    = 32
	approvalTokenLifetime = 7 * 24 * time.Hour
)

// ApprovalLink is a freshly issued token and the URL a client opens with it.
type ApprovalLink struct {
	Token         string    `json:"token"`
	ApprovalURL   string    `json:"approval_url"`
	ClientID      string    `json:"client_id"`
	ClientSlug    string    `json:"client_slug"`
	Month         string    `json:"month"`
	ExpiresAt     time.Time `json:"expires_at"`
	ExpiresInDays int       `json:"expires_in_days"`
}

type ApprovalLinkService struct {
	db        *gorm.DB
	publicURL string
	now       func() time.Time
}

func NewApprovalLinkService(db *gorm.DB, publicURL string) *ApprovalLinkService {
	return &ApprovalLinkService{db: db, publicURL: publicURL, now: time.Now}
}

// Issue creates a token granting clientID access to month for seven days.
func (s *ApprovalLinkService) Issue(ctx context.Context, clientID, month string, createdBy *uint) (*ApprovalLink, error) {
	if !utils.IsValidMonth(month) {
		return nil, ErrInvalidMonth
	}

	var client models.Client
	err := s.db.WithContext(ctx).Preload("Agency").First(&client, "id = ?", clientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}

	token, err := newApprovalToken()
	if err != nil {
		return nil, err
	}
	row := models.ApprovalToken{
		ClientID:  client.ID,
		Month:     month,
		Token:     token,
		ExpiresAt: s.now().UTC().Add(approvalTokenLifetime),
		CreatedBy: createdBy,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("create approval token: %w", err)
	}

	agencySlug := ""
	if client.Agency != nil {
		agencySlug = client.Agency.Slug
	}
	return &ApprovalLink{
		Token:         token,
		ApprovalURL:   s.approvalURL(agencySlug, client.Slug, token, month),
		ClientID:      client.ID,
		ClientSlug:    client.Slug,
		Month:         month,
		ExpiresAt:     row.ExpiresAt,
		ExpiresInDays: int(approvalTokenLifetime / (24 * time.Hour)),
	}, nil
}

func (s *ApprovalLinkService) approvalURL(agencySlug, clientSlug, token, month string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("month", month)
	return fmt.Sprintf("%s/%s/%s?%s", s.publicURL, url.PathEscape(agencySlug), url.PathEscape(clientSlug), q.Encode())
}

func newApprovalToken() (string, error) {
	b := make([]byte, approvalTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate approval token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
