package admin

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"time"

	"energy_stock_etl/config"
	"energy_stock_etl/middleware"
	"energy_stock_etl/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SessionTTL is the lifetime of an admin session cookie
const SessionTTL = 24 * time.Hour

// AuthController handles admin authentication
type AuthController struct {
	db *gorm.DB
}

// NewAuthController creates a new auth controller
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

// isSecureMode returns true if running in production mode (HTTPS)
func isSecureMode() bool {
	return config.AppConfig != nil && config.AppConfig.Environment == "production"
}

// LoginPage shows the login page
func (ac *AuthController) LoginPage(c *gin.Context) {
	// Check if already logged in
	if _, err := ac.getSessionFromCookie(c); err == nil {
		c.Redirect(http.StatusFound, "/admin")
		return
	}

	c.HTML(http.StatusOK, "login.html", gin.H{
		"error":     c.Query("error"),
		"csrfToken": middleware.SetCSRFToken(c),
	})
}

// Login handles the login form submission
func (ac *AuthController) Login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	if username == "" || password == "" {
		ac.loginFailed(c, http.StatusBadRequest, "Username and password are required")
		return
	}

	var admin models.AdminUser
	if err := ac.db.Where("username = ? AND is_active = ?", username, true).First(&admin).Error; err != nil {
		log.Printf("Admin login failed for user %s: user not found", username)
		middleware.RecordLoginAttempt(c.ClientIP(), false)
		ac.loginFailed(c, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	if !admin.CheckPassword(password) {
		log.Printf("Admin login failed for user %s: invalid password", username)
		middleware.RecordLoginAttempt(c.ClientIP(), false)
		ac.loginFailed(c, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := generateSessionToken()
	if err != nil {
		ac.loginFailed(c, http.StatusInternalServerError, "Failed to create session")
		return
	}

	session := models.AdminSession{
		AdminUserID: admin.ID,
		Token:       token,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		ExpiresAt:   time.Now().Add(SessionTTL),
	}

	if err := ac.db.Create(&session).Error; err != nil {
		ac.loginFailed(c, http.StatusInternalServerError, "Failed to create session")
		return
	}

	now := time.Now()
	ac.db.Model(&admin).Update("last_login_at", now)

	middleware.RecordLoginAttempt(c.ClientIP(), true)

	// Set session cookie (secure in production)
	c.SetCookie("admin_session", token, int(SessionTTL.Seconds()), "/admin", "", isSecureMode(), true)

	log.Printf("Admin user %s logged in successfully", username)
	c.Redirect(http.StatusFound, "/admin")
}

// loginFailed re-renders the login page with a fresh CSRF token
func (ac *AuthController) loginFailed(c *gin.Context, status int, message string) {
	c.HTML(status, "login.html", gin.H{
		"error":     message,
		"csrfToken": middleware.SetCSRFToken(c),
	})
}

// Logout handles logout
func (ac *AuthController) Logout(c *gin.Context) {
	token, err := c.Cookie("admin_session")
	if err == nil && token != "" {
		ac.db.Where("token = ?", token).Delete(&models.AdminSession{})
	}

	c.SetCookie("admin_session", "", -1, "/admin", "", isSecureMode(), true)
	c.Redirect(http.StatusFound, "/admin/login")
}

// AuthMiddleware checks if user is authenticated
func (ac *AuthController) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := ac.getSessionFromCookie(c)
		if err != nil {
			c.Redirect(http.StatusFound, "/admin/login")
			c.Abort()
			return
		}

		c.Set("admin_user", session.AdminUser)
		c.Set("admin_session", session)
		c.Next()
	}
}

// getSessionFromCookie retrieves the admin session from cookie
func (ac *AuthController) getSessionFromCookie(c *gin.Context) (*models.AdminSession, error) {
	token, err := c.Cookie("admin_session")
	if err != nil {
		return nil, err
	}

	var session models.AdminSession
	if err := ac.db.Preload("AdminUser").Where("token = ?", token).First(&session).Error; err != nil {
		return nil, err
	}

	if session.IsExpired() {
		ac.db.Delete(&session)
		return nil, gorm.ErrRecordNotFound
	}

	return &session, nil
}

// generateSessionToken generates a secure random session token
func generateSessionToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
