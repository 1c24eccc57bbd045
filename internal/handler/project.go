package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"charitypay/internal/httpx"
	"charitypay/internal/service"
)

type createProjectRequest struct {
	BeneficiaryID string `json:"beneficiary_id" validate:"required"`
	Name          string `json:"name" validate:"required,max=255"`
	Description   string `json:"description" validate:"max=2000"`
	Cap           uint64 `json:"cap"`
}

func CreateProjectHandler(svc *service.ProjectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createProjectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeBadRequest(w, r, err)
			return
		}

		p, err := svc.Create(r.Context(), service.CreateProjectInput{
			BeneficiaryID: req.BeneficiaryID,
			Name:          req.Name,
			Description:   req.Description,
			Cap:           req.Cap,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		httpx.WriteJSON(w, http.StatusCreated, p)
	}
}

func ListProjectsHandler(svc *service.ProjectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := svc.List(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		httpx.WriteJSON(w, http.StatusOK, projects)
	}
}

func GetProjectHandler(svc *service.ProjectService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		httpx.WriteJSON(w, http.StatusOK, p)
	}
}
