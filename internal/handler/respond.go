package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"charitypay/internal/bank"
	"charitypay/internal/httpx"
	"charitypay/internal/service"
	"charitypay/internal/store"
)

const maxJSONBody = 1 << 20

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a size-limited JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return validate.Struct(dst)
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, ve := range verrs {
		out[ve.Field()] = ve.Tag()
	}
	return out
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	body := httpx.ErrorBody{Code: "invalid_request", Message: "invalid request"}
	if details := validationDetails(err); details != nil {
		body.Details = details
	} else {
		body.Message = err.Error()
	}
	httpx.WriteError(w, r, http.StatusBadRequest, body)
}

// writeServiceError maps service, store and bank errors onto the error
// payload. Internal failures only expose the request id.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var bankErr *bank.Error
	switch {
	case errors.As(err, &bankErr):
		code := bankErr.Code
		httpx.WriteError(w, r, http.StatusBadGateway, httpx.ErrorBody{
			Code:     "bank_error",
			Message:  bankErr.Message,
			BankCode: &code,
		})
	case errors.Is(err, store.ErrNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, httpx.ErrorBody{Code: "not_found", Message: "not found"})
	case errors.Is(err, store.ErrDuplicateID):
		httpx.WriteError(w, r, http.StatusConflict, httpx.ErrorBody{Code: "already_exists", Message: "already exists"})
	case errors.Is(err, store.ErrDuplicateName):
		httpx.WriteError(w, r, http.StatusConflict, httpx.ErrorBody{Code: "name_taken", Message: store.ErrDuplicateName.Error()})
	case errors.Is(err, service.ErrNotSettled):
		httpx.WriteError(w, r, http.StatusConflict, httpx.ErrorBody{Code: "not_settled", Message: service.ErrNotSettled.Error()})
	case errors.Is(err, service.ErrCapExceeded):
		httpx.WriteError(w, r, http.StatusConflict, httpx.ErrorBody{Code: "cap_exceeded", Message: service.ErrCapExceeded.Error()})
	case errors.Is(err, service.ErrInvalidAmount):
		httpx.WriteError(w, r, http.StatusBadRequest, httpx.ErrorBody{Code: "invalid_request", Message: service.ErrInvalidAmount.Error()})
	case errors.Is(err, bank.ErrMissingDocument):
		httpx.WriteError(w, r, http.StatusBadRequest, httpx.ErrorBody{Code: "invalid_request", Message: bank.ErrMissingDocument.Error()})
	default:
		slog.Error("request failed", "request_id", httpx.RequestID(r), "path", r.URL.Path, "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, httpx.ErrorBody{Code: "internal", Message: "internal error"})
	}
}
