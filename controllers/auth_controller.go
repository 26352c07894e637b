package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"stockalert/middleware"
	"stockalert/models"
)

const (
	apiTokenTTL   = time.Hour
	resetTokenTTL = 30 * time.Minute
)

// ResetMailer sends password reset emails.
type ResetMailer interface {
	SendPasswordReset(user models.User, token string)
}

// AuthController handles registration, token issuing and password resets.
type AuthController struct {
	db        *gorm.DB
	secretKey string
	mailer    ResetMailer
	limiter   *middleware.LoginRateLimiter
	log       *zap.Logger
}

// NewAuthController creates an auth controller.
func NewAuthController(db *gorm.DB, secretKey string, mailer ResetMailer, limiter *middleware.LoginRateLimiter, log *zap.Logger) *AuthController {
	return &AuthController{db: db, secretKey: secretKey, mailer: mailer, limiter: limiter, log: log}
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// Register creates a new user account.
// POST /api/v1/auth/register
func (ac *AuthController) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var existing models.User
	err := ac.db.Where("username = ? OR email = ?", req.Username, req.Email).First(&existing).Error
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "username or email already in use"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	user := models.User{Username: req.Username, Email: req.Email}
	if err := user.SetPassword(req.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}
	if err := ac.db.Create(&user).Error; err != nil {
		ac.log.Error("failed to create user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "username": user.Username, "email": user.Email})
}

// IssueToken exchanges basic auth credentials for an API token.
// POST /api/v1/tokens
func (ac *AuthController) IssueToken(c *gin.Context) {
	username, password, ok := c.Request.BasicAuth()
	if !ok {
		c.Header("WWW-Authenticate", `Basic realm="stockalert"`)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "basic auth credentials required"})
		return
	}

	var user models.User
	err := ac.db.Where("username = ?", username).First(&user).Error
	if err != nil || !user.CheckPassword(password) {
		ac.limiter.RecordFailure(c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	ac.limiter.RecordSuccess(c.ClientIP())

	token := user.GetAPIToken(apiTokenTTL)
	if err := ac.db.Save(&user).Error; err != nil {
		ac.log.Error("failed to persist token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": user.APITokenExpiresAt})
}

// RevokeToken expires the caller's API token.
// DELETE /api/v1/tokens
func (ac *AuthController) RevokeToken(c *gin.Context) {
	user := middleware.CurrentUser(c)
	user.RevokeAPIToken()
	if err := ac.db.Save(user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.Status(http.StatusNoContent)
}

type resetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// RequestPasswordReset emails a reset token to the given address. The
// response is identical whether or not the address is registered.
// POST /api/v1/auth/reset-password/request
func (ac *AuthController) RequestPasswordReset(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := ac.db.Where("email = ?", req.Email).First(&user).Error; err == nil {
		token, err := user.ResetPasswordToken(ac.secretKey, resetTokenTTL)
		if err != nil {
			ac.log.Error("failed to sign reset token", zap.Error(err))
		} else {
			ac.mailer.SendPasswordReset(user, token)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "check your email for password reset instructions"})
}

type resetConfirmRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// ResetPassword sets a new password given a valid reset token.
// POST /api/v1/auth/reset-password/confirm
func (ac *AuthController) ResetPassword(c *gin.Context) {
	var req resetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := models.VerifyResetPasswordToken(ac.db, ac.secretKey, req.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired reset token"})
		return
	}
	if err := user.SetPassword(req.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset password"})
		return
	}
	if err := ac.db.Save(user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset password"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password has been reset"})
}
