package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"charitypay/internal/httpx"
	"charitypay/internal/service"
)

const tokenTTL = 24 * time.Hour

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func LoginHandler(authSvc *service.AuthService, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeBadRequest(w, r, err)
			return
		}

		login, err := authSvc.Authenticate(r.Context(), req.Login, req.Password)
		if err != nil {
			if errors.Is(err, service.ErrInvalidCredentials) {
				httpx.WriteError(w, r, http.StatusUnauthorized, httpx.ErrorBody{Code: "unauthorized", Message: err.Error()})
				return
			}
			writeServiceError(w, r, err)
			return
		}

		now := time.Now()
		expiresAt := now.Add(tokenTTL)
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   login,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		})

		tokenString, err := token.SignedString([]byte(secret))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		w.Header().Set("Authorization", "Bearer "+tokenString)
		httpx.WriteJSON(w, http.StatusOK, loginResponse{Token: tokenString, ExpiresAt: expiresAt.UTC()})
	}
}
