package models

import (
	"time"
)

// AdminLoginAttempt throttles password guessing on the admin login.
type AdminLoginAttempt struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"not null;index" json:"email"`
	IPAddress string    `gorm:"not null;index" json:"ip_address"`
	Success   bool      `gorm:"not null" json:"success"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
