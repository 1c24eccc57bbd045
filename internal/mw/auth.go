package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"charitypay/internal/httpx"
)

type contextKey string

const OperatorCtxKey contextKey = "operator"

// Operator returns the operator login put into ctx by AuthMiddleware.
func Operator(ctx context.Context) (string, bool) {
	login, ok := ctx.Value(OperatorCtxKey).(string)
	return login, ok
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	httpx.WriteError(w, r, http.StatusUnauthorized, httpx.ErrorBody{Code: "unauthorized", Message: message})
}

func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, r, "missing token")
				return
			}

			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || tokenString == "" {
				unauthorized(w, r, "invalid token format")
				return
			}

			var claims jwt.RegisteredClaims
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
				return []byte(jwtSecret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				unauthorized(w, r, "invalid or expired token")
				return
			}
			if claims.Subject == "" {
				unauthorized(w, r, "token has no subject")
				return
			}

			ctx := context.WithValue(r.Context(), OperatorCtxKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
