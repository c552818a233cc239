package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
	"gorm.io/gorm"

	"github.com/aprovacriativos/backend/internal/db"
	"github.com/aprovacriativos/backend/internal/models"
	"github.com/aprovacriativos/backend/internal/services"
	"github.com/aprovacriativos/backend/internal/store"
	"github.com/aprovacriativos/backend/internal/utils"
)

var (
	adminName     string
	adminRole     string
	adminPassword string

	tokenMonth string

	unblockReason string
	unblockBy     string

	exportSince time.Duration
	exportOut   string
)

// now is replaced in tests.
var now = time.Now

// readPassword is replaced in tests.
var readPassword = term.ReadPassword

var createAdminCmd = &cobra.Command{
	Use:   "create-admin <email>",
	Short: "Create a console admin",
	Example: `  # Prompt for the password
  gatectl create-admin ops@example.com --name "Ops Team"

  # Non-interactive
  GATECTL_ADMIN_PASSWORD='S3cure!pass' gatectl create-admin ops@example.com --name "Ops Team" --role super_admin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := adminPasswordInput(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		gormDB, _, err := openDB()
		if err != nil {
			return err
		}
		admin, err := createAdmin(gormDB, args[0], password, adminName, adminRole)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Admin created: %s (id %d, role %s)\n", admin.Email, admin.ID, admin.Role)
		return nil
	},
}

func adminPasswordInput(out io.Writer) (string, error) {
	if pass := os.Getenv("GATECTL_ADMIN_PASSWORD"); pass != "" {
		return pass, nil
	}
	if adminPassword != "" {
		return adminPassword, nil
	}
	fmt.Fprint(out, "Password: ")
	raw, err := readPassword(int(syscall.Stdin))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func createAdmin(gormDB *gorm.DB, email, password, name, role string) (*models.AdminUser, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !utils.ValidateEmail(email) {
		return nil, fmt.Errorf("invalid email address %q", email)
	}
	if role != "admin" && role != "super_admin" {
		return nil, fmt.Errorf("invalid role %q: must be admin or super_admin", role)
	}
	if ok, msg := utils.ValidatePassword(password); !ok {
		return nil, errors.New(msg)
	}
	if strings.TrimSpace(name) == "" {
		name = email
	}

	var existing models.AdminUser
	if err := gormDB.Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("admin %s already exists", email)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	admin := &models.AdminUser{
		Email:    email,
		Name:     strings.TrimSpace(name),
		Password: string(hash),
		Role:     role,
	}
	if err := gormDB.Create(admin).Error; err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	return admin, nil
}

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token <client-id>",
	Short: "Issue a seven-day approval link for a client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gormDB, cfg, err := openDB()
		if err != nil {
			return err
		}
		link, err := services.NewApprovalLinkService(gormDB, cfg.PublicAppURL).Issue(cmd.Context(), args[0], tokenMonth, nil)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Client:  %s\n", link.ClientSlug)
		fmt.Fprintf(out, "Month:   %s\n", link.Month)
		fmt.Fprintf(out, "Expires: %s\n", link.ExpiresAt.Format(time.RFC3339))
		fmt.Fprintf(out, "URL:     %s\n", link.ApprovalURL)
		return nil
	},
}

var blockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "List IPs the gate currently blocks",
	RunE: func(cmd *cobra.Command, args []string) error {
		gormDB, cfg, err := openDB()
		if err != nil {
			return err
		}
		blocked, err := store.NewGormStore(gormDB, cfg.Gate).BlockedIPs(cmd.Context(), now())
		if err != nil {
			return err
		}
		return printBlocked(cmd.OutOrStdout(), blocked)
	},
}

func printBlocked(w io.Writer, blocked []store.BlockedIP) error {
	if len(blocked) == 0 {
		_, err := fmt.Fprintln(w, "No blocked IPs.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IP\tBLOCK\tUNTIL\tFAILURES\tLAST ATTEMPT")
	for _, b := range blocked {
		kind, until := "temporary", "-"
		if b.Permanent {
			kind = "permanent"
		}
		if b.BlockedUntil != nil {
			until = b.BlockedUntil.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", b.IPAddress, kind, until, b.FailedAttempts, b.LastAttemptAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <ip>",
	Short: "Clear every block an IP has earned",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ip := strings.TrimSpace(args[0])
		if ip != "unknown" && !utils.IsValidIP(ip) {
			return fmt.Errorf("invalid IP address %q", ip)
		}
		gormDB, cfg, err := openDB()
		if err != nil {
			return err
		}
		by := unblockBy
		if by == "" {
			by = "gatectl"
		}
		c, err := store.NewGormStore(gormDB, cfg.Gate).Unblock(cmd.Context(), ip, by, unblockReason, now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s at %s\n", c.IPAddress, c.ClearedAt.Format(time.RFC3339))
		return nil
	},
}

var exportAttemptsCmd = &cobra.Command{
	Use:   "export-attempts",
	Short: "Export validation attempts as CSV",
	Example: `  # Upload the last day to the SFTP drop
  gatectl export-attempts --since 24h

  # Write to stdout
  gatectl export-attempts --since 1h --out -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gormDB, cfg, err := openDB()
		if err != nil {
			return err
		}
		at := now()
		attempts, err := store.NewGormStore(gormDB, cfg.Gate).AttemptsSince(cmd.Context(), at.Add(-exportSince))
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := services.WriteAttemptsCSV(&buf, attempts); err != nil {
			return err
		}

		switch exportOut {
		case "-":
			_, err := cmd.OutOrStdout().Write(buf.Bytes())
			return err
		case "":
			if cfg.SFTPHost == "" {
				return errors.New("SFTP_HOST is not set; use --out to write a local file")
			}
			remote, err := services.UploadSFTP(services.SFTPConfig{
				Host: cfg.SFTPHost,
				Port: cfg.SFTPPort,
				User: cfg.SFTPUser,
				Pass: cfg.SFTPPass,
				Dir:  cfg.SFTPDir,
			}, services.ExportFileName(at), buf.Bytes())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d attempts to %s:%s\n", len(attempts), cfg.SFTPHost, remote)
			return nil
		default:
			if err := os.WriteFile(exportOut, buf.Bytes(), 0o600); err != nil {
				return fmt.Errorf("write %s: %w", exportOut, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d attempts to %s\n", len(attempts), exportOut)
			return nil
		}
	},
}

var installProceduresCmd = &cobra.Command{
	Use:   "install-procedures",
	Short: "Create or replace the gate's Postgres functions",
	RunE: func(cmd *cobra.Command, args []string) error {
		gormDB, cfg, err := openDB()
		if err != nil {
			return err
		}
		if gormDB.Dialector.Name() != "postgres" {
			return errors.New("install-procedures needs a postgres DATABASE_URL")
		}
		pool, err := db.OpenPool(cmd.Context(), dbConfig(cfg))
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := db.InstallProcedures(cmd.Context(), pool); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Installed is_ip_blocked, validate_approval_token and log_validation_attempt.")
		return nil
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&adminName, "name", "", "Display name")
	createAdminCmd.Flags().StringVar(&adminRole, "role", "admin", "admin or super_admin")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "Password (prompted when omitted)")

	issueTokenCmd.Flags().StringVar(&tokenMonth, "month", time.Now().Format("2006-01"), "Month to approve (YYYY-MM)")

	unblockCmd.Flags().StringVar(&unblockReason, "reason", "", "Why the IP is cleared")
	unblockCmd.Flags().StringVar(&unblockBy, "by", "", "Who clears the IP (default gatectl)")

	exportAttemptsCmd.Flags().DurationVar(&exportSince, "since", 24*time.Hour, "How far back to export")
	exportAttemptsCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file, - for stdout (default: upload over SFTP)")
}
