package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// ValidationAttempt is one call to the approval gate. Rows are only ever
// inserted by the gate; the maintenance job prunes old ones.
type ValidationAttempt struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	IPAddress      string    `gorm:"not null;index:idx_attempts_ip_time,priority:1" json:"ip_address"`
	TokenAttempted string    `json:"token_attempted"`
	Success        bool      `gorm:"not null;default:false" json:"success"`
	UserAgent      string    `json:"user_agent"`
	AttemptedAt    time.Time `gorm:"not null;index:idx_attempts_ip_time,priority:2" json:"attempted_at"`
}

func (ValidationAttempt) TableName() string { return "token_validation_attempts" }

// IPClearance lifts every block an IP earned before ClearedAt. Failures logged
// before the latest clearance are ignored by the block evaluation.
type IPClearance struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	IPAddress string    `gorm:"not null;index" json:"ip_address"`
	ClearedBy string    `gorm:"not null" json:"cleared_by"`
	Reason    string    `json:"reason"`
	ClearedAt time.Time `gorm:"not null;index" json:"cleared_at"`
}

func (c *IPClearance) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// SecurityAlert records one alert per IP, level and UTC day.
type SecurityAlert struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	IPAddress    string     `gorm:"not null;uniqueIndex:idx_alert_ip_type_date" json:"ip_address"`
	AlertType    string     `gorm:"not null;uniqueIndex:idx_alert_ip_type_date" json:"alert_type"` // warning, critical, permanent
	AlertDate    string     `gorm:"size:10;not null;uniqueIndex:idx_alert_ip_type_date" json:"alert_date"`
	EventKind    string     `json:"event_kind"`
	FailureCount int        `json:"failure_count"`
	IsBlocked    bool       `json:"is_blocked"`
	IsPermanent  bool       `json:"is_permanent"`
	BlockedUntil *time.Time `json:"blocked_until"`
	UserAgents   StringList `json:"user_agents"`
	CreatedAt    time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (SecurityAlert) TableName() string { return "security_alerts_sent" }

func (a *SecurityAlert) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// StringList is stored as text[] on Postgres and as the same array literal in
// a text column elsewhere.
type StringList []string

func (StringList) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

func (l StringList) Value() (driver.Value, error) {
	return pq.StringArray(l).Value()
}

func (l *StringList) Scan(src any) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	*l = StringList(arr)
	return nil
}
