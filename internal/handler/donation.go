package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"charitypay/internal/httpx"
	"charitypay/internal/service"
)

type createDonationRequest struct {
	Amount  uint64 `json:"amount" validate:"required,gt=0,lte=4294967295"`
	Purpose string `json:"purpose" validate:"max=140"`
}

func CreateDonationHandler(svc *service.DonationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createDonationRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeBadRequest(w, r, err)
			return
		}

		qr, err := svc.Create(r.Context(), service.CreateDonationInput{
			ProjectID: chi.URLParam(r, "id"),
			Amount:    req.Amount,
			Purpose:   req.Purpose,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		httpx.WriteJSON(w, http.StatusCreated, qr)
	}
}

func GetDonationHandler(svc *service.DonationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.Status(r.Context(), chi.URLParam(r, "qrCodeID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		httpx.WriteJSON(w, http.StatusOK, d)
	}
}
