package middleware

import (
	"context"
	"net/http"
	"strings"

	goRecover "github.com/MrEthical07/goRecover"
)

// ResetCookieName is the cookie consulted when no Authorization header is
// present.
const ResetCookieName = "access_token"

type resetUserContextKey struct{}

// ResetUserFromContext returns the user authenticated by RequireReset.
func ResetUserFromContext(ctx context.Context) (goRecover.User, bool) {
	user, ok := ctx.Value(resetUserContextKey{}).(goRecover.User)
	return user, ok
}

// RequireReset admits requests carrying a reset token issued by a successful
// recovery validation and stores the recovered user on the request context.
// The token is read from a Bearer Authorization header or, failing that, the
// ResetCookieName cookie.
func RequireReset(engine *goRecover.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := requestToken(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := engine.AuthenticateReset(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), resetUserContextKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		return bearerToken(header)
	}
	cookie, err := r.Cookie(ResetCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
