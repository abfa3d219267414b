package auth

import (
	"context"
	"net/http"

	"github.com/rahat/vulnarena/internal/model"
)

// contextKey is an unexported type for this package's context keys, so no
// other package can read or shadow the identity value.
type contextKey string

const identityKey contextKey = "identity"

// cookieName is the HttpOnly cookie carrying the session JWT.
const cookieName = "token"

// RequireAuth enforces authentication on protected routes.
//
// It reads the JWT from the "token" HttpOnly cookie, validates it, and
// stores the caller's identity in the request context. Missing or invalid
// token → 401 and the chain stops.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractClaims(r, tokens)
			if err != nil {
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin enforces the admin role on top of authentication. Chain it
// after RequireAuth-free routes: it validates the token itself.
func RequireAdmin(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractClaims(r, tokens)
			if err != nil {
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}
			if claims.Role != model.RoleAdmin {
				http.Error(w, `{"error":"forbidden","message":"admin role required"}`, http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext retrieves the authenticated caller's identity.
// Returns (Claims{}, false) for anonymous requests.
func IdentityFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(identityKey).(Claims)
	return claims, ok && claims.UserID != ""
}

// SetSessionCookie writes the JWT into the HttpOnly session cookie.
// HttpOnly keeps JavaScript away from the token; SameSite=Lax blocks it on
// cross-site POSTs.
func SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   cookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

func extractClaims(r *http.Request, tokens *TokenService) (Claims, error) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return Claims{}, err
	}
	return tokens.Validate(cookie.Value)
}
