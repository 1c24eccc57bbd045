package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"charitypay/internal/httpx"
	"charitypay/internal/model"
	"charitypay/internal/service"
)

const maxDocumentBody = 10 << 20

type beneficiaryDataRequest struct {
	Name     string  `json:"name" validate:"required,max=512"`
	KPP      string  `json:"kpp" validate:"required,number,len=9"`
	OGRN     *string `json:"ogrn,omitempty" validate:"omitempty,number,len=13"`
	IsBranch *bool   `json:"is_branch,omitempty"`
}

type createBeneficiaryRequest struct {
	INN  string                 `json:"inn" validate:"required,number,len=10"`
	Data beneficiaryDataRequest `json:"beneficiary_data"`
}

func CreateBeneficiaryHandler(svc *service.BeneficiaryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createBeneficiaryRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeBadRequest(w, r, err)
			return
		}

		b, err := svc.Create(r.Context(), service.CreateBeneficiaryInput{
			INN: req.INN,
			Data: model.BeneficiaryData{
				Name:     req.Data.Name,
				KPP:      req.Data.KPP,
				OGRN:     req.Data.OGRN,
				IsBranch: req.Data.IsBranch,
			},
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		httpx.WriteJSON(w, http.StatusCreated, b)
	}
}

func ListBeneficiariesHandler(svc *service.BeneficiaryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inn := r.URL.Query().Get("inn")
		if inn != "" {
			if err := validate.Var(inn, "number,len=10"); err != nil {
				writeBadRequest(w, r, errors.New("inn must be 10 digits"))
				return
			}
		}

		list, err := svc.List(r.Context(), inn)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		httpx.WriteJSON(w, http.StatusOK, list)
	}
}

func GetBeneficiaryHandler(svc *service.BeneficiaryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		httpx.WriteJSON(w, http.StatusOK, view)
	}
}

func ListBeneficiaryProjectsHandler(svc *service.BeneficiaryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := svc.Projects(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		httpx.WriteJSON(w, http.StatusOK, projects)
	}
}

type uploadDocumentQuery struct {
	Type   string `json:"document_type" validate:"omitempty,oneof=contract_offer"`
	Number string `json:"document_number" validate:"required,max=64"`
	Date   string `json:"document_date" validate:"required,datetime=2006-01-02"`
}

// UploadDocumentHandler takes the document as the raw request body; its
// metadata comes in the query string.
func UploadDocumentHandler(svc *service.BeneficiaryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		meta := uploadDocumentQuery{
			Type:   q.Get("document_type"),
			Number: q.Get("document_number"),
			Date:   q.Get("document_date"),
		}
		if err := validate.Struct(meta); err != nil {
			writeBadRequest(w, r, err)
			return
		}

		content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBody))
		if err != nil {
			writeBadRequest(w, r, fmt.Errorf("read document: %w", err))
			return
		}

		doc, err := svc.UploadDocument(r.Context(), service.UploadDocumentInput{
			BeneficiaryID: chi.URLParam(r, "id"),
			Type:          meta.Type,
			Number:        meta.Number,
			Date:          meta.Date,
			ContentType:   r.Header.Get("Content-Type"),
			Content:       content,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		httpx.WriteJSON(w, http.StatusCreated, doc)
	}
}

func ListDocumentsHandler(svc *service.BeneficiaryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := svc.Documents(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if docs == nil {
			docs = []model.Document{}
		}

		httpx.WriteJSON(w, http.StatusOK, docs)
	}
}
