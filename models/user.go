package models

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User represents a registered account.
type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Username     string `gorm:"uniqueIndex;not null" json:"username"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`

	APIToken          string     `gorm:"index" json:"-"`
	APITokenExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetPassword hashes and stores the given password.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether the given password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// GetAPIToken returns the user's API token, minting a new one when the
// current token is missing or has less than a minute of life left. The
// caller is responsible for persisting the user afterwards.
func (u *User) GetAPIToken(expiresIn time.Duration) string {
	now := time.Now().UTC()
	if u.APIToken != "" && u.APITokenExpiresAt != nil && u.APITokenExpiresAt.After(now.Add(time.Minute)) {
		return u.APIToken
	}

	raw := make([]byte, 24)
	_, _ = rand.Read(raw)
	u.APIToken = base64.StdEncoding.EncodeToString(raw)
	expiry := now.Add(expiresIn)
	u.APITokenExpiresAt = &expiry
	return u.APIToken
}

// RevokeAPIToken expires the current token immediately.
func (u *User) RevokeAPIToken() {
	expiry := time.Now().UTC().Add(-time.Second)
	u.APITokenExpiresAt = &expiry
}

// UserByAPIToken resolves a token to its owner. Returns
// gorm.ErrRecordNotFound for unknown or expired tokens.
func UserByAPIToken(db *gorm.DB, token string) (*User, error) {
	var user User
	if err := db.Where("api_token = ?", token).First(&user).Error; err != nil {
		return nil, err
	}
	if user.APITokenExpiresAt == nil || user.APITokenExpiresAt.Before(time.Now().UTC()) {
		return nil, gorm.ErrRecordNotFound
	}
	return &user, nil
}

type resetClaims struct {
	jwt.RegisteredClaims
	ResetPassword uint `json:"reset_password"`
}

// ResetPasswordToken returns a signed token authorizing a password reset
// for this user, valid for expiresIn.
func (u *User) ResetPasswordToken(secret string, expiresIn time.Duration) (string, error) {
	claims := resetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(expiresIn)),
		},
		ResetPassword: u.ID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyResetPasswordToken validates a reset token and loads the user it
// was issued for. Any parse or lookup failure yields a nil user.
func VerifyResetPasswordToken(db *gorm.DB, secret, tokenString string) (*User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &resetClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid reset token")
	}
	claims, ok := token.Claims.(*resetClaims)
	if !ok || claims.ResetPassword == 0 {
		return nil, errors.New("invalid reset token")
	}

	var user User
	if err := db.First(&user, claims.ResetPassword).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// MigrateUserModels runs database migrations for user-related models.
func MigrateUserModels(db *gorm.DB) error {
	return db.AutoMigrate(&User{})
}
