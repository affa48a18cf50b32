package security

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// TokenInfo 校验结果：网关只读 token，不签发
type TokenInfo struct {
	UserID    string
	ExpiresAt time.Time
}

// Validator validates an opaque bearer token. Token issuing belongs to the
// auth service; the gateway only inspects user id and expiry.
type Validator interface {
	Validate(token string) (*TokenInfo, error)
}

// JWTValidator 基于 HMAC 的校验实现
type JWTValidator struct {
	Secret []byte
}

func NewJWTValidator(secret []byte) *JWTValidator {
	return &JWTValidator{Secret: secret}
}

func (v *JWTValidator) Validate(token string) (*TokenInfo, error) {
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		// 仅允许 HMAC 家族
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return v.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("claims type mismatch")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.New("token missing subject")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, errors.New("token missing expiry")
	}
	return &TokenInfo{UserID: sub, ExpiresAt: exp.Time}, nil
}

// Remaining 计算剩余有效期，过期为负
func Remaining(info *TokenInfo, now time.Time) time.Duration {
	return info.ExpiresAt.Sub(now)
}
