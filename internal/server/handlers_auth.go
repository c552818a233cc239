package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/aprovacriativos/backend/internal/models"
	"github.com/aprovacriativos/backend/internal/utils"
)

type simpleResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"Operation successful"`
}

type loginRequest struct {
	Email    string `json:"email" example:"admin@example.com" validate:"required,email"`
	Password string `json:"password" example:"password123" validate:"required"`
}

// AdminLogin godoc
// @Summary Admin login
// @Description Authenticate a console admin and return a JWT
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body loginRequest true "Login credentials"
// @Success 200 {object} map[string]interface{} "Login successful"
// @Failure 400 {object} simpleResponse
// @Failure 401 {object} simpleResponse
// @Failure 429 {object} simpleResponse
// @Router /admin/login [post]
func (s *Server) AdminLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, simpleResponse{Success: false, Message: "Invalid payload"})
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Password = utils.SanitizeString(req.Password)
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, simpleResponse{Success: false, Message: "A valid email and password are required."})
	}

	ipAddress := s.getClientIP(c)

	if s.GetFailedAttemptsCount(req.Email, ipAddress) >= maxFailedAdminLogins {
		return c.JSON(http.StatusTooManyRequests, simpleResponse{Success: false, Message: "Too many failed login attempts. Please try again later."})
	}

	var admin models.AdminUser
	if err := s.DB.Where("email = ?", req.Email).First(&admin).Error; err != nil || admin.ID == 0 {
		s.RecordLoginAttempt(req.Email, ipAddress, false)
		return c.JSON(http.StatusUnauthorized, simpleResponse{Success: false, Message: "Invalid email or password."})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte(req.Password)); err != nil {
		s.RecordLoginAttempt(req.Email, ipAddress, false)
		return c.JSON(http.StatusUnauthorized, simpleResponse{Success: false, Message: "Invalid email or password."})
	}

	token, err := utils.GenerateJWT(admin.ID, admin.Email, admin.Role, s.Cfg.JWTSecret, s.Cfg.JWTExpiry)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, simpleResponse{Success: false, Message: "Failed to generate authentication token."})
	}

	now := s.now().UTC()
	admin.LastLoginAt = &now
	admin.SessionToken = &token
	if err := s.DB.Save(&admin).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, simpleResponse{Success: false, Message: "Failed to update admin session."})
	}

	s.RecordLoginAttempt(req.Email, ipAddress, true)

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Login successful.",
		"token":   token,
		"admin": map[string]any{
			"id":    admin.ID,
			"email": admin.Email,
			"name":  admin.Name,
			"role":  admin.Role,
		},
	})
}

// AdminLogout godoc
// @Summary Admin logout
// @Description Invalidate the current admin session
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} simpleResponse
// @Failure 401 {object} simpleResponse
// @Router /admin/logout [post]
func (s *Server) AdminLogout(c echo.Context) error {
	admin := currentAdmin(c)

	if err := s.DB.Model(admin).Update("session_token", nil).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, simpleResponse{Success: false, Message: "Failed to logout."})
	}

	return c.JSON(http.StatusOK, simpleResponse{Success: true, Message: "Logged out successfully."})
}

// AdminProfile godoc
// @Summary Get admin profile
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "Admin profile"
// @Failure 401 {object} simpleResponse
// @Router /admin/profile [get]
func (s *Server) AdminProfile(c echo.Context) error {
	admin := currentAdmin(c)

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"admin": map[string]any{
			"id":            admin.ID,
			"email":         admin.Email,
			"name":          admin.Name,
			"role":          admin.Role,
			"last_login_at": admin.LastLoginAt,
			"created_at":    admin.CreatedAt,
		},
	})
}
