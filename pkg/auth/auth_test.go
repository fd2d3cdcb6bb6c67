package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const secret = "test-secret"

func TestGenerateAndParseToken(t *testing.T) {
	tok, err := GenerateToken("user-1", "", secret, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	id, err := ParseToken(tok, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.UserID != "user-1" || id.Role != RoleUser {
		t.Fatalf("unexpected identity %+v", id)
	}

	if _, err := ParseToken(tok, "other-secret"); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestParseToken_AcceptsCamelCaseClaim(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": "456",
		"exp":    time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	id, err := ParseToken(tok, secret)
	if err != nil || id.UserID != "456" {
		t.Fatalf("want 456, got %+v (%v)", id, err)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	expired, _ := GenerateToken("u", RoleUser, secret, -time.Minute)
	if _, err := ParseToken(expired, secret); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("want expired, got %v", err)
	}

	noUser, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": RoleUser}).SignedString([]byte(secret))
	if _, err := ParseToken(noUser, secret); !errors.Is(err, ErrMissingUserID) {
		t.Fatalf("want ErrMissingUserID, got %v", err)
	}

	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"user_id": "u"}).SignedString([]byte(secret))
	if _, err := ParseToken(hs512, secret); err == nil {
		t.Fatal("only HS256 is accepted")
	}
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	if ExtractToken(r) != "" {
		t.Fatal("want empty token without header")
	}
	r.Header.Set("Authorization", "Bearer abc")
	if got := ExtractToken(r); got != "abc" {
		t.Fatalf("want abc, got %q", got)
	}
	r.Header.Set("Authorization", "Basic abc")
	if ExtractToken(r) != "" {
		t.Fatal("basic auth must be ignored")
	}
}

func TestValidateUserID(t *testing.T) {
	user := Identity{UserID: "u1", Role: RoleUser}
	if err := ValidateUserID(user, "u1"); err != nil {
		t.Fatalf("same user: %v", err)
	}

	var mismatch *UserIDMismatchError
	if err := ValidateUserID(user, "u2"); !errors.As(err, &mismatch) {
		t.Fatalf("want mismatch, got %v", err)
	}

	admin := Identity{UserID: "root", Role: RoleAdmin}
	if err := ValidateUserID(admin, "u2"); err != nil {
		t.Fatalf("admin may access any user: %v", err)
	}
}
