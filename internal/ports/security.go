package ports

import "time"

// AdminClaims is the verified identity of an admin-surface caller.
type AdminClaims struct {
	SubjectID string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenVerifier checks a bearer token from the admin surface.
type TokenVerifier interface {
	Verify(raw string) (AdminClaims, error)
}
