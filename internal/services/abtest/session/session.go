// Package session issues and verifies editor session tokens. Editors hold a
// short-lived HS256 token signed with the shared tracking secret; the
// gateway and the authoring endpoints accept it as proof of an editor
// session.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/abtestkit/abtestkit/internal/platform/errors"
)

const (
	// DefaultIssuer identifies tokens minted by this service.
	DefaultIssuer = "abtestkit"
	// DefaultAudience scopes tokens to the editor surface.
	DefaultAudience = "abtestkit-editor"
	// DefaultTTL bounds how long an editor session token stays valid.
	DefaultTTL = 12 * time.Hour
)

// Config defines how editor session tokens are issued and verified.
type Config struct {
	Issuer   string
	Audience string
	Secret   []byte
	TTL      time.Duration
	Now      func() time.Time
}

// Claims captures validated editor session claims.
type Claims struct {
	EditorID  string
	Issuer    string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

func (c Config) withDefaults() Config {
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	if c.Audience == "" {
		c.Audience = DefaultAudience
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Issue mints a signed editor session token for the given editor identity.
func Issue(editorID string, cfg Config) (string, error) {
	cfg = cfg.withDefaults()
	editorID = strings.TrimSpace(editorID)
	if editorID == "" {
		return "", fmt.Errorf("editor id is required")
	}
	if len(cfg.Secret) == 0 {
		return "", fmt.Errorf("session secret is not configured")
	}

	now := cfg.Now().UTC()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			Subject:   editorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Validate verifies an editor session token and returns its claims.
func Validate(token string, cfg Config) (Claims, error) {
	cfg = cfg.withDefaults()
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, apperrors.New(apperrors.CodeEditorUnauthorized, "session token is required")
	}
	if len(cfg.Secret) == 0 {
		return Claims{}, errors.New("session verifier is not configured")
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return Claims{}, apperrors.New(apperrors.CodeEditorUnauthorized, "session issuer mismatch")
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return Claims{}, apperrors.New(apperrors.CodeEditorUnauthorized, "session audience mismatch")
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return Claims{}, apperrors.New(apperrors.CodeEditorUnauthorized, "session subject is required")
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, apperrors.New(apperrors.CodeEditorUnauthorized, "session exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return Claims{}, apperrors.New(apperrors.CodeEditorUnauthorized, "session is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return Claims{}, apperrors.New(apperrors.CodeEditorUnauthorized, "session not active yet")
	}

	claims := Claims{
		EditorID:  parsed.Subject,
		Issuer:    parsed.Issuer,
		ExpiresAt: exp,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return apperrors.New(apperrors.CodeEditorUnauthorized, "session signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeEditorUnauthorized, "session alg is invalid")
	}
	return apperrors.New(apperrors.CodeEditorUnauthorized, "session token is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}
