package models

import (
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AdminUser represents an operator account for the admin panel
type AdminUser struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"not null" json:"-"`
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SetPassword hashes and sets the password for the admin user
func (u *AdminUser) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies the provided password against the stored hash
func (u *AdminUser) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// AdminSession represents an active admin session
type AdminSession struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AdminUserID uint      `gorm:"index" json:"admin_user_id"`
	AdminUser   AdminUser `gorm:"foreignKey:AdminUserID" json:"admin_user,omitempty"`
	Token       string    `gorm:"uniqueIndex;not null" json:"token"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsExpired checks if the session has expired
func (s *AdminSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// MigrateAdminModels runs database migrations for admin-related models
func MigrateAdminModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&AdminUser{},
		&AdminSession{},
	)
}

// SeedAdminUser creates the operator account from the configured
// credentials if it doesn't exist. The hash comes from
// scripts/generate_password_hash.go, never a plaintext env value.
func SeedAdminUser(db *gorm.DB, username, passwordHash string) error {
	if username == "" || passwordHash == "" {
		log.Println("ADMIN_USERNAME/ADMIN_PASSWORD_HASH not set, skipping admin seeding")
		return nil
	}

	var count int64
	db.Model(&AdminUser{}).Where("username = ?", username).Count(&count)
	if count > 0 {
		return nil
	}

	admin := &AdminUser{
		Username:     username,
		PasswordHash: passwordHash,
		IsActive:     true,
	}
	return db.Create(admin).Error
}
