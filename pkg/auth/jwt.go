package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingUserID token 中没有用户标识
var ErrMissingUserID = errors.New("token has no user id claim")

// Identity 从 token 中解析出的调用方
type Identity struct {
	UserID string
	Role   string
}

// GenerateToken 为用户签发 HS256 token
func GenerateToken(userID, role, secret string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", ErrMissingUserID
	}
	if role == "" {
		role = RoleUser
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken 校验 token 并提取调用方
// 兼容 user_id 与 userId 两种声明名
func ParseToken(tokenStr, secret string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, jwt.ErrTokenMalformed
	}

	id := Identity{UserID: claimString(claims, "user_id"), Role: claimString(claims, "role")}
	if id.UserID == "" {
		id.UserID = claimString(claims, "userId")
	}
	if id.UserID == "" {
		return Identity{}, ErrMissingUserID
	}
	if id.Role == "" {
		id.Role = RoleUser
	}
	return id, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

// ExtractToken 从 Authorization 头中取出 bearer token
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	parts := strings.Fields(header)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
