package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or signed with another key.
	ErrInvalidToken = errors.New("invalid token")
	// ErrEmptySecret is returned when signing or verifying with an empty secret.
	ErrEmptySecret = errors.New("token secret must not be empty")
)

// Claims is the payload of both token classes: the subject id plus registered claims.
// jti makes two tokens for the same subject issued in the same second distinct.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies compact HS256 JWTs. It holds no secrets; each call names
// the secret of the token class it is working with.
type TokenCodec struct {
	now func() time.Time
}

// NewTokenCodec returns a TokenCodec using the wall clock.
func NewTokenCodec() *TokenCodec {
	return &TokenCodec{now: time.Now}
}

// NewTokenCodecWithClock returns a TokenCodec that reads time from now. Used in tests.
func NewTokenCodecWithClock(now func() time.Time) *TokenCodec {
	return &TokenCodec{now: now}
}

// Sign issues a token for subject that expires after ttl.
func (c *TokenCodec) Sign(subject string, secret []byte, ttl time.Duration) (token string, expiresAt time.Time, err error) {
	if len(secret) == 0 {
		return "", time.Time{}, ErrEmptySecret
	}
	if subject == "" || ttl <= 0 {
		return "", time.Time{}, ErrInvalidToken
	}
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := c.now().UTC()
	expiresAt = now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify checks signature, algorithm and expiry and returns the subject. Every failure,
// including a missing subject, is reported as ErrInvalidToken. There is no leeway on exp.
func (c *TokenCodec) Verify(tokenString string, secret []byte) (string, error) {
	if len(secret) == 0 || tokenString == "" {
		return "", ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
