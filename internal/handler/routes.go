package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"charitypay/internal/mw"
	"charitypay/internal/service"
)

type Services struct {
	Auth          *service.AuthService
	Beneficiaries *service.BeneficiaryService
	Projects      *service.ProjectService
	Donations     *service.DonationService
}

func NewRouter(svc Services, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Post("/api/auth/login", LoginHandler(svc.Auth, jwtSecret))
	r.Get("/api/beneficiaries", ListBeneficiariesHandler(svc.Beneficiaries))
	r.Get("/api/beneficiaries/{id}", GetBeneficiaryHandler(svc.Beneficiaries))
	r.Get("/api/beneficiaries/{id}/projects", ListBeneficiaryProjectsHandler(svc.Beneficiaries))
	r.Get("/api/beneficiaries/{id}/documents", ListDocumentsHandler(svc.Beneficiaries))
	r.Get("/api/projects", ListProjectsHandler(svc.Projects))
	r.Get("/api/projects/{id}", GetProjectHandler(svc.Projects))
	r.Get("/api/donations/{qrCodeID}", GetDonationHandler(svc.Donations))

	// Operator routes
	r.Group(func(r chi.Router) {
		r.Use(mw.AuthMiddleware(jwtSecret))

		r.Post("/api/beneficiaries", CreateBeneficiaryHandler(svc.Beneficiaries))
		r.Post("/api/beneficiaries/{id}/documents", UploadDocumentHandler(svc.Beneficiaries))
		r.Post("/api/projects", CreateProjectHandler(svc.Projects))
		r.Post("/api/projects/{id}/donations", CreateDonationHandler(svc.Donations))
	})

	return r
}
