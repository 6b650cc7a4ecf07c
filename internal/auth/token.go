package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the result of verifying a session token.
type Identity struct {
	UserID int
	Perms  []string
}

// Verifier validates signed session tokens. Verification is pure: no
// I/O, no side effects, so the HTTP middleware and the realtime
// handshake share one instance.
type Verifier struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewVerifier constructs a Verifier for HS256 tokens.
func NewVerifier(secret string, ttl time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: "estate-platform", ttl: ttl}
}

// Issue mints a signed session token. The platform's auth service is
// the normal issuer; this helper exists for tests and local tooling.
func (v *Verifier) Issue(userID int, perms []string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"uid":   userID,
		"perms": perms,
		"exp":   now.Add(v.ttl).Unix(),
		"iat":   now.Unix(),
		"iss":   v.issuer,
		"sub":   "user-session",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify decodes and validates a token string and extracts the embedded
// identity. An empty string fails with ErrMissingToken; a malformed,
// badly signed, expired or foreign-issuer token fails with
// ErrInvalidToken.
func (v *Verifier) Verify(tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, ErrMissingToken
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer))
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	uid, ok := claims["uid"].(float64)
	if !ok || uid <= 0 {
		return Identity{}, ErrInvalidToken
	}

	identity := Identity{UserID: int(uid)}
	if raw, ok := claims["perms"].([]any); ok {
		for _, p := range raw {
			if perm, ok := p.(string); ok {
				identity.Perms = append(identity.Perms, perm)
			}
		}
	}
	return identity, nil
}
