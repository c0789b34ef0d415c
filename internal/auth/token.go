// Package auth verifies bearer tokens and extracts the user id. Sign-in
// itself happens elsewhere; tokens are HS256 JWTs signed with a shared key.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultLeeway tolerates clock skew between issuer and API.
const DefaultLeeway = 30 * time.Second

// Errors.
var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrTokenExpired = errors.New("access token has expired")
	ErrMissingUser  = errors.New("token carries no user id")
)

// Claims are the accepted access token claims. The user id is read from
// "uid" and falls back to "sub".
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid,omitempty"`
}

// Config configures a Verifier.
type Config struct {
	SigningKey string

	// Issuer and Audience are enforced when set.
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Verifier validates access tokens.
type Verifier struct {
	key    []byte
	opts   []jwt.ParserOption
	issuer string
	aud    string
	now    func() time.Time
}

// NewVerifier creates a Verifier.
func NewVerifier(cfg Config) *Verifier {
	if cfg.Leeway <= 0 {
		cfg.Leeway = DefaultLeeway
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{
		key:    []byte(cfg.SigningKey),
		opts:   opts,
		issuer: cfg.Issuer,
		aud:    cfg.Audience,
		now:    time.Now,
	}
}

// Verify validates tokenString and returns its user id.
func (v *Verifier) Verify(tokenString string) (string, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	}, v.opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", ErrMissingUser
	}
	return userID, nil
}

// Issue signs a token for userID valid for ttl. Used by the tracker agent
// and by tests; production tokens come from the identity provider.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UserID: userID,
	}
	if v.aud != "" {
		claims.Audience = jwt.ClaimStrings{v.aud}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ServiceTokenMatches compares a presented service token in constant time.
// An empty expected token never matches.
func ServiceTokenMatches(expected, presented string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
