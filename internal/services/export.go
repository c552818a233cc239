package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/aprovacriativos/backend/internal/models"
)

var attemptColumns = []string{"id", "ip_address", "token_attempted", "success", "user_agent", "attempted_at"}

// WriteAttemptsCSV writes attempts as CSV with a header row. Only token
// prefixes are ever stored, so the export carries no usable tokens.
func WriteAttemptsCSV(w io.Writer, attempts []models.ValidationAttempt) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(attemptColumns); err != nil {
		return err
	}
	for _, a := range attempts {
		row := []string{
			strconv.FormatUint(uint64(a.ID), 10),
			a.IPAddress,
			a.TokenAttempted,
			strconv.FormatBool(a.Success),
			a.UserAgent,
			a.AttemptedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFileName names an export taken at t.
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("attempts_%s.csv", t.UTC().Format("20060102T150405Z"))
}

type SFTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	Dir  string
}

// UploadSFTP stores data as name under cfg.Dir on the SFTP server.
func UploadSFTP(cfg SFTPConfig, name string, data []byte) (string, error) {
	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Pass)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return "", fmt.Errorf("sftp dial: %w", err)
	}
	defer conn.Close()

	client, err := sftp.NewClient(conn)
	if err != nil {
		return "", fmt.Errorf("sftp client: %w", err)
	}
	defer client.Close()

	remote := name
	if cfg.Dir != "" {
		if err := client.MkdirAll(cfg.Dir); err != nil {
			return "", fmt.Errorf("sftp mkdir %s: %w", cfg.Dir, err)
		}
		remote = path.Join(cfg.Dir, name)
	}
	create := func(p string) (io.WriteCloser, error) { return client.Create(p) }
	if err := writeRemote(create, remote, data); err != nil {
		return "", err
	}
	return remote, nil
}

// writeRemote copies data into a new remote file. Write errors on SFTP often
// only surface when the file is closed.
func writeRemote(create func(string) (io.WriteCloser, error), remote string, data []byte) error {
	f, err := create(remote)
	if err != nil {
		return fmt.Errorf("sftp create %s: %w", remote, err)
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		_ = f.Close()
		return fmt.Errorf("sftp write %s: %w", remote, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("sftp close %s: %w", remote, err)
	}
	return nil
}
