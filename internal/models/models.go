package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Agency struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Slug      string    `gorm:"unique;not null" json:"slug"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (a *Agency) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

type Client struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	AgencyID  string    `gorm:"not null;index;uniqueIndex:idx_agency_client_slug" json:"agency_id"`
	Name      string    `gorm:"not null" json:"name"`
	Slug      string    `gorm:"not null;uniqueIndex:idx_agency_client_slug" json:"slug"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	Agency    *Agency   `gorm:"foreignKey:AgencyID" json:"agency,omitempty"`
}

func (c *Client) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ApprovalToken grants a client access to review one month of content until
// ExpiresAt.
type ApprovalToken struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	ClientID  string     `gorm:"not null;index" json:"client_id"`
	Month     string     `gorm:"size:7;not null" json:"month"` // YYYY-MM
	Token     string     `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	CreatedBy *uint      `json:"created_by"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	Client    *Client    `gorm:"foreignKey:ClientID" json:"client,omitempty"`
}

func (t *ApprovalToken) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

type AdminUser struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"unique;not null" json:"email"`
	Name         string     `gorm:"not null" json:"name"`
	Password     string     `gorm:"not null" json:"-"`
	Role         string     `gorm:"default:'admin'" json:"role"` // admin, super_admin
	LastLoginAt  *time.Time `gorm:"column:last_login_at" json:"last_login_at"`
	SessionToken *string    `gorm:"column:session_token" json:"-"`
	CreatedAt    time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

// ActivityLog is the audit trail for admin actions and security alerts.
type ActivityLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AdminID   *uint     `gorm:"index" json:"admin_id"`
	Entity    string    `gorm:"not null" json:"entity"` // security_alert, ip_block, approval_token
	Action    string    `gorm:"not null" json:"action"`
	Metadata  *string   `gorm:"type:jsonb" json:"metadata"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ActivityLog) TableName() string { return "activity_log" }
