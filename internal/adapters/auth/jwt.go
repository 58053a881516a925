package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"transit-tracking-service/internal/domain"
)

// Claims carried by a capability token.
type Claims struct {
	Role       domain.Role `json:"role"`
	VehicleIDs []string    `json:"vehicle_ids,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthority issues and verifies HS256 capability tokens.
type JWTAuthority struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTAuthority(secret string, ttl time.Duration) (*JWTAuthority, error) {
	if len(strings.TrimSpace(secret)) < 16 {
		return nil, errors.New("new jwt authority: secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("new jwt authority: ttl must be positive, got %s", ttl)
	}
	return &JWTAuthority{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for the principal.
func (a *JWTAuthority) Issue(p domain.Principal) (string, error) {
	if p.Subject == "" {
		return "", errors.New("issue token: subject is required")
	}
	if p.Role != domain.RoleAdmin && p.Role != domain.RoleDriver {
		return "", fmt.Errorf("issue token: unknown role %q", p.Role)
	}

	now := a.now()
	claims := Claims{
		Role:       p.Role,
		VehicleIDs: p.VehicleIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("issue token: sign: %w", err)
	}
	return signed, nil
}

// Authenticate verifies the token and returns the principal it proves.
func (a *JWTAuthority) Authenticate(_ context.Context, token string) (domain.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Principal{}, fmt.Errorf("authenticate: missing token: %w", domain.ErrUnauthorized)
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !parsed.Valid {
		return domain.Principal{}, fmt.Errorf("authenticate: %v: %w", err, domain.ErrUnauthorized)
	}
	if claims.Subject == "" || (claims.Role != domain.RoleAdmin && claims.Role != domain.RoleDriver) {
		return domain.Principal{}, fmt.Errorf("authenticate: incomplete claims: %w", domain.ErrUnauthorized)
	}

	return domain.Principal{
		Subject:    claims.Subject,
		Role:       claims.Role,
		VehicleIDs: claims.VehicleIDs,
	}, nil
}
