package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/visa-categories", h.ListVisaCategories)
		r.Get("/visa-categories/{categoryId}", func(w http.ResponseWriter, r *http.Request) {
			h.GetVisaCategory(w, r, chi.URLParam(r, "categoryId"))
		})

		r.Post("/cases", h.CreateCase)
		r.Get("/cases", h.ListCases)
		r.Route("/cases/{caseId}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.GetCase(w, r, chi.URLParam(r, "caseId"))
			})
			r.Get("/progress", func(w http.ResponseWriter, r *http.Request) {
				h.GetProgress(w, r, chi.URLParam(r, "caseId"))
			})
			r.Get("/documents", func(w http.ResponseWriter, r *http.Request) {
				h.ListDocuments(w, r, chi.URLParam(r, "caseId"))
			})
			r.Post("/documents", func(w http.ResponseWriter, r *http.Request) {
				h.UploadDocument(w, r, chi.URLParam(r, "caseId"))
			})
			r.Post("/decisions", func(w http.ResponseWriter, r *http.Request) {
				h.SubmitDecision(w, r, chi.URLParam(r, "caseId"))
			})
			r.Post("/risk-flags", func(w http.ResponseWriter, r *http.Request) {
				h.AddRiskFlag(w, r, chi.URLParam(r, "caseId"))
			})
			r.Post("/eligibility", func(w http.ResponseWriter, r *http.Request) {
				h.ScoreEligibility(w, r, chi.URLParam(r, "caseId"))
			})
		})
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
