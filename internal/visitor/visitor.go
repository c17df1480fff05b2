// Package visitor issues and reads the long-lived anonymous visitor id.
package visitor

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const CookieName = "ps_vid"

// cookieMaxAge keeps the identifier for a year, the floor the identity
// contract requires.
const cookieMaxAge = int(365 * 24 * time.Hour / time.Second)

// FromRequest returns the visitor id carried by the request, or "" when
// none is present. Callers must treat "" as "no identity" and short-circuit
// to their safe default.
func FromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}

// Ensure returns the request's visitor id, issuing and setting a fresh one
// when absent. UUIDv7 combines a millisecond timestamp with random bits,
// which keeps ids collision-resistant and roughly time-ordered.
func Ensure(w http.ResponseWriter, r *http.Request) string {
	if id := FromRequest(r); id != "" {
		return id
	}

	id, err := uuid.NewV7()
	if err != nil {
		// crypto/rand is unavailable; downstream degrades to the
		// unassigned default.
		return ""
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id.String(),
		Path:     "/",
		MaxAge:   cookieMaxAge,
		SameSite: http.SameSiteLaxMode,
	})
	return id.String()
}
