// Package auth 在握手时把连接凭证解析为用户 ID。
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrMissingToken   = errors.New("missing token")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrMissingSubject = errors.New("token carries no user id")
)

// Resolver 解析连接凭证，拒绝时返回错误
type Resolver interface {
	IdentityFor(credential string) (string, error)
}

// JWTResolver 校验 HS256 签名的 JWT，用户 ID 取自 user_id 或 sub 声明
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver 创建解析器，secret 不能为空
func NewJWTResolver(secret string) *JWTResolver {
	if secret == "" {
		panic("JWT secret cannot be empty for JWTResolver")
	}
	return &JWTResolver{secret: []byte(secret)}
}

func (r *JWTResolver) IdentityFor(credential string) (string, error) {
	if credential == "" {
		return "", ErrMissingToken
	}
	token, err := jwt.Parse(credential, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	// user_id 可能是字符串或数字 (JWT 数字解析为 float64)
	switch v := claims["user_id"].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		if v > 0 && v == float64(uint64(v)) {
			return fmt.Sprintf("%d", uint64(v)), nil
		}
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	return "", ErrMissingSubject
}

// Issue 签发令牌，供运维工具和测试使用
func (r *JWTResolver) Issue(userID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     time.Now().Unix(),
	}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}
