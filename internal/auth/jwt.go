package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "cinesync"

// JWTVerifier validates HS256 tokens signed with a shared secret. It backs
// local development, tests and the admin CLI.
type JWTVerifier struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTVerifier creates a verifier; ttl defaults to 24 hours
func NewJWTVerifier(secret []byte, ttl time.Duration) *JWTVerifier {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTVerifier{secret: secret, ttl: ttl, now: time.Now}
}

// IssueToken signs a token for uid
func (v *JWTVerifier) IssueToken(uid, email string) (string, time.Time, error) {
	now := v.now()
	expiresAt := now.Add(v.ttl)
	claims := jwt.MapClaims{
		"sub":   uid,
		"email": email,
		"iss":   issuer,
		"exp":   expiresAt.Unix(),
		"iat":   now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	uid, _ := claims["sub"].(string)
	if uid == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	email, _ := claims["email"].(string)
	return &Identity{UID: uid, Email: email, Provider: "jwt"}, nil
}
