package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or audience checks.
var ErrInvalidToken = errors.New("invalid token")

// ErrNoSecret is returned when signing or verifying without a configured secret.
var ErrNoSecret = errors.New("jwt secret not configured")

// AudienceError reports a token presented to a resource it was not issued for.
type AudienceError struct {
	Want string
}

func (e AudienceError) Error() string {
	return fmt.Sprintf("token not issued for %s", e.Want)
}

// Claims are the registered claims plus the integration base URL the session was opened for.
type Claims struct {
	jwt.RegisteredClaims
	BaseURL string `json:"base_url,omitempty"`
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	Secret string
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

func (i Issuer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

func (i Issuer) ttl() time.Duration {
	if i.TTL > 0 {
		return i.TTL
	}
	return time.Hour
}

// Issue signs a token for subject. baseURL, when set, becomes the audience.
func (i Issuer) Issue(subject, baseURL string) (string, error) {
	if strings.TrimSpace(i.Secret) == "" {
		return "", ErrNoSecret
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject required")
	}
	now := i.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    i.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl())),
		},
		BaseURL: baseURL,
	}
	if baseURL != "" {
		claims.Audience = jwt.ClaimStrings{baseURL}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.Secret))
}

// Verify checks signature and expiry and returns the claims. Tokens without a
// subject are rejected.
func (i Issuer) Verify(token string) (Claims, error) {
	if strings.TrimSpace(i.Secret) == "" {
		return Claims{}, ErrNoSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	}
	if i.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.Issuer))
	}
	claims := Claims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return []byte(i.Secret), nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// VerifyFor verifies token and additionally requires it to be scoped to baseURL.
// Unscoped tokens are accepted.
func (i Issuer) VerifyFor(token, baseURL string) (Claims, error) {
	claims, err := i.Verify(token)
	if err != nil {
		return Claims{}, err
	}
	if claims.BaseURL != "" && baseURL != "" && strings.TrimRight(claims.BaseURL, "/") != strings.TrimRight(baseURL, "/") {
		return Claims{}, AudienceError{Want: baseURL}
	}
	return claims, nil
}
