package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSubject is returned when an identity token carries no subject.
var ErrNoSubject = errors.New("token has no subject")

// UserIDFromToken reads the user id (the "sub" claim) from an identity
// provider token. The signature is not checked here; the backend verifies
// every request. The id is for display and for the backend's userId query,
// never for cache scoping.
func UserIDFromToken(token string) (string, error) {
	token = bareToken(token)
	if token == "" {
		return "", ErrNoSubject
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("reading subject: %w", err)
	}
	if sub == "" {
		return "", ErrNoSubject
	}
	return sub, nil
}

// bareToken strips an optional "Bearer " scheme and surrounding space.
func bareToken(token string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
}
