package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"transit-tracking-service/internal/domain"
)

type principalKey struct{}

func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated caller, or the zero Principal.
func PrincipalFrom(ctx context.Context) domain.Principal {
	p, _ := ctx.Value(principalKey{}).(domain.Principal)
	return p
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func requireAdmin(r *http.Request) error {
	p := PrincipalFrom(r.Context())
	if p.IsZero() {
		return fmt.Errorf("admin: %w", domain.ErrUnauthorized)
	}
	if !p.IsAdmin() {
		return fmt.Errorf("admin: subject=%s: %w", p.Subject, domain.ErrForbidden)
	}
	return nil
}

// requireReporter allows admins and drivers assigned to the vehicle.
func requireReporter(r *http.Request, vehicleID string) error {
	p := PrincipalFrom(r.Context())
	if p.IsZero() {
		return fmt.Errorf("report vehicle_id=%s: %w", vehicleID, domain.ErrUnauthorized)
	}
	if !p.CanReportFor(vehicleID) {
		return fmt.Errorf("report vehicle_id=%s subject=%s: %w", vehicleID, p.Subject, domain.ErrForbidden)
	}
	return nil
}
