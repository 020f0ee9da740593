package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// maxTokenLen bounds the work done on attacker-supplied tokens before any
// signature check.
const maxTokenLen = 16 * 1024

// Claims is the token shape issued by the booking API.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier accepts HS256 tokens signed with a shared secret. Tokens must
// carry exp.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return newJWTVerifier(secret, time.Now)
}

func newJWTVerifier(secret string, now func() time.Time) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(now),
			jwt.WithLeeway(5*time.Second),
		),
	}
}

func (v *JWTVerifier) Verify(token string) (Identity, error) {
	claims, err := v.Parse(token)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		Subject: claims.Subject,
		Email:   claims.Email,
		Role:    claims.Role,
	}, nil
}

// Parse validates token and returns its claims. Every failure wraps
// ErrInvalidCredentials.
func (v *JWTVerifier) Parse(token string) (*Claims, error) {
	if len(v.secret) == 0 || token == "" || len(token) > maxTokenLen {
		return nil, ErrInvalidCredentials
	}
	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}
