package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const userIDHeader = "X-User-ID"

type ownerContextKey struct{}

func ownerFromContext(ctx context.Context) string {
	ownerID, _ := ctx.Value(ownerContextKey{}).(string)
	return ownerID
}

// authenticator resolves the caller identity. With a secret configured it
// requires an HS256 bearer token and takes the owner from the sub claim;
// without one it trusts the optional X-User-ID header.
type authenticator struct {
	secret []byte
}

func newAuthenticator(secret string) authenticator {
	return authenticator{secret: []byte(strings.TrimSpace(secret))}
}

func (a authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ownerID string
		if len(a.secret) == 0 {
			ownerID = strings.TrimSpace(r.Header.Get(userIDHeader))
		} else {
			subject, err := a.subject(r.Header.Get("Authorization"))
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			ownerID = subject
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerContextKey{}, ownerID)))
	})
}

func (a authenticator) subject(headerValue string) (string, error) {
	tokenString, ok := bearerToken(headerValue)
	if !ok {
		return "", errors.New("missing bearer token")
	}
	token, err := jwt.ParseWithClaims(
		tokenString,
		&jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", err
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}

func bearerToken(headerValue string) (string, bool) {
	headerValue = strings.TrimSpace(headerValue)
	const bearerPrefix = "Bearer "
	if len(headerValue) <= len(bearerPrefix) || !strings.EqualFold(headerValue[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(headerValue[len(bearerPrefix):])
	return token, token != ""
}
