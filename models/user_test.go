package models

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newUserTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := MigrateUserModels(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestPasswordHashing(t *testing.T) {
	var user User
	if err := user.SetPassword("correct horse battery staple"); err != nil {
		t.Fatal(err)
	}
	if user.PasswordHash == "correct horse battery staple" {
		t.Fatal("password stored in plain text")
	}
	if !user.CheckPassword("correct horse battery staple") {
		t.Error("correct password rejected")
	}
	if user.CheckPassword("wrong password") {
		t.Error("wrong password accepted")
	}
}

func TestAPITokenLifecycle(t *testing.T) {
	var user User

	token := user.GetAPIToken(time.Hour)
	if token == "" {
		t.Fatal("empty token issued")
	}

	// A token with more than a minute of life left is reused.
	if again := user.GetAPIToken(time.Hour); again != token {
		t.Error("valid token was rotated")
	}

	// A token about to expire is replaced.
	nearExpiry := time.Now().UTC().Add(30 * time.Second)
	user.APITokenExpiresAt = &nearExpiry
	if fresh := user.GetAPIToken(time.Hour); fresh == token {
		t.Error("near-expired token was not rotated")
	}

	user.RevokeAPIToken()
	if user.APITokenExpiresAt.After(time.Now().UTC()) {
		t.Error("revoked token still valid")
	}
}

func TestUserByAPIToken(t *testing.T) {
	db := newUserTestDB(t)

	user := User{Username: "alice", Email: "alice@example.com"}
	if err := user.SetPassword("test-password"); err != nil {
		t.Fatal(err)
	}
	token := user.GetAPIToken(time.Hour)
	if err := db.Create(&user).Error; err != nil {
		t.Fatal(err)
	}

	found, err := UserByAPIToken(db, token)
	if err != nil {
		t.Fatalf("UserByAPIToken returned error: %v", err)
	}
	if found.ID != user.ID {
		t.Errorf("resolved user id = %d, want %d", found.ID, user.ID)
	}

	if _, err := UserByAPIToken(db, "no-such-token"); err == nil {
		t.Error("unknown token accepted")
	}

	user.RevokeAPIToken()
	if err := db.Save(&user).Error; err != nil {
		t.Fatal(err)
	}
	if _, err := UserByAPIToken(db, token); err == nil {
		t.Error("expired token accepted")
	}
}

func TestResetPasswordTokenRoundTrip(t *testing.T) {
	db := newUserTestDB(t)
	const secret = "test-secret"

	user := User{Username: "bob", Email: "bob@example.com"}
	if err := user.SetPassword("test-password"); err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatal(err)
	}

	token, err := user.ResetPasswordToken(secret, 30*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	verified, err := VerifyResetPasswordToken(db, secret, token)
	if err != nil {
		t.Fatalf("VerifyResetPasswordToken returned error: %v", err)
	}
	if verified.ID != user.ID {
		t.Errorf("verified user id = %d, want %d", verified.ID, user.ID)
	}

	if _, err := VerifyResetPasswordToken(db, "other-secret", token); err == nil {
		t.Error("token signed with a different secret accepted")
	}
	if _, err := VerifyResetPasswordToken(db, secret, "garbage"); err == nil {
		t.Error("malformed token accepted")
	}
}

func TestResetPasswordTokenExpiry(t *testing.T) {
	db := newUserTestDB(t)
	const secret = "test-secret"

	user := User{Username: "carol", Email: "carol@example.com"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatal(err)
	}

	token, err := user.ResetPasswordToken(secret, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := VerifyResetPasswordToken(db, secret, token); err == nil {
		t.Error("expired reset token accepted")
	}
}
