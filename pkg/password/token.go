package password

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid = errors.New("password reset token is invalid")
	ErrTokenExpired = errors.New("password reset token has expired")
	ErrTokenUsed    = errors.New("password reset token has already been used")
)

// Claims carried by a reset token. Subject holds the team name.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TeamName returns the team the token was issued for.
func (c Claims) TeamName() string {
	return c.Subject
}

// PasswordResetToken is a freshly issued token together with what it was issued for.
type PasswordResetToken struct {
	ResetToken string
	TeamName   string
	Email      string
	ExpiresAt  time.Time
}

// Issuer signs reset tokens with HS256 and tracks consumed ones in a UsedTokenStore.
type Issuer struct {
	key   []byte
	ttl   time.Duration
	store UsedTokenStore
	now   func() time.Time
}

// NewIssuer returns an Issuer. An empty key is rejected.
func NewIssuer(signingKey []byte, ttl time.Duration, store UsedTokenStore) (*Issuer, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("password reset signing key must not be empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("password reset token TTL must be positive, got %s", ttl)
	}
	if store == nil {
		return nil, fmt.Errorf("used token store is required")
	}
	return &Issuer{key: signingKey, ttl: ttl, store: store, now: time.Now}, nil
}

// TTL returns how long issued tokens stay valid.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue creates a token for the given team and address.
func (i *Issuer) Issue(teamName, email string) (PasswordResetToken, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   teamName,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return PasswordResetToken{}, fmt.Errorf("sign reset token: %w", err)
	}
	return PasswordResetToken{
		ResetToken: signed,
		TeamName:   teamName,
		Email:      email,
		ExpiresAt:  expiresAt.Truncate(time.Second),
	}, nil
}

// Validate checks signature, expiry and whether the token was consumed.
func (i *Issuer) Validate(ctx context.Context, token string) (Claims, error) {
	claims, err := i.parse(token)
	if err != nil {
		return Claims{}, err
	}
	used, err := i.store.IsUsed(ctx, claims.ID)
	if err != nil {
		return Claims{}, fmt.Errorf("check used token: %w", err)
	}
	if used {
		return Claims{}, ErrTokenUsed
	}
	return claims, nil
}

// Consume validates the token and marks it used until it would have expired.
// Two concurrent Consume calls for one token cannot both succeed.
func (i *Issuer) Consume(ctx context.Context, token string) (Claims, error) {
	claims, err := i.parse(token)
	if err != nil {
		return Claims{}, err
	}
	remaining := claims.ExpiresAt.Time.Sub(i.now())
	if remaining < time.Second {
		remaining = time.Second
	}
	marked, err := i.store.MarkUsed(ctx, claims.ID, remaining)
	if err != nil {
		return Claims{}, fmt.Errorf("mark token used: %w", err)
	}
	if !marked {
		return Claims{}, ErrTokenUsed
	}
	return claims, nil
}

func (i *Issuer) parse(token string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return i.key, nil
	}); err != nil {
		return Claims{}, ErrTokenInvalid
	}
	if claims.ID == "" || claims.Subject == "" || claims.ExpiresAt == nil {
		return Claims{}, ErrTokenInvalid
	}
	// expiry is checked here rather than by the parser so the issuer clock applies
	if !i.now().Before(claims.ExpiresAt.Time) {
		return Claims{}, ErrTokenExpired
	}
	return claims, nil
}
