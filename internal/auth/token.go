package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cachet/internal/domain"
)

// Authority signs and verifies bearer tokens with a single HMAC-SHA256
// secret. Both sides of the token lifecycle go through the same instance.
type Authority struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type claims struct {
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// NewAuthority returns an Authority signing with secret and issuing tokens
// valid for ttl.
func NewAuthority(secret []byte, ttl time.Duration) *Authority {
	return &Authority{secret: secret, ttl: ttl, now: time.Now}
}

// Issue creates a signed token bound to the identity.
func (a *Authority) Issue(id domain.Identity) (string, error) {
	now := a.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		DisplayName: id.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	})
	return tok.SignedString(a.secret)
}

// Verify parses and validates a token and resolves the identity it was
// issued to. Bad signature, expiry and malformed input all surface as
// domain.ErrAuthentication.
func (a *Authority) Verify(token string) (domain.Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid || c.Subject == "" {
		return domain.Identity{}, domain.ErrAuthentication
	}
	return domain.Identity{ID: domain.UserID(c.Subject), DisplayName: c.DisplayName}, nil
}

// Compile-time assertion that Authority implements domain.TokenVerifier.
var _ domain.TokenVerifier = (*Authority)(nil)
