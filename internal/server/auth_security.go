package server

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aprovacriativos/backend/internal/models"
)

const maxFailedAdminLogins = 5

// GetFailedAttemptsCount returns the number of failed admin logins for an email/IP in the last hour
func (s *Server) GetFailedAttemptsCount(email, ipAddress string) int64 {
	var count int64
	oneHourAgo := s.now().UTC().Add(-1 * time.Hour)
	s.DB.Model(&models.AdminLoginAttempt{}).
		Where("email = ? AND ip_address = ? AND success = ? AND created_at > ?", email, ipAddress, false, oneHourAgo).
		Count(&count)
	return count
}

// RecordLoginAttempt records an admin login attempt
func (s *Server) RecordLoginAttempt(email, ipAddress string, success bool) {
	attempt := models.AdminLoginAttempt{
		Email:     email,
		IPAddress: ipAddress,
		Success:   success,
		CreatedAt: s.now().UTC(),
	}
	if err := s.DB.Create(&attempt).Error; err != nil {
		log.Error().Err(err).Str("email", email).Msg("failed to record admin login attempt")
	}
}
