package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (s *Server) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         600,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, r, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, r, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealthCheck)
	r.Get("/models", s.handleModels)

	r.Route("/extract", func(r chi.Router) {
		r.Post("/url", s.handleExtractURL)
		r.Post("/url/simple", s.handleExtractURLSimple)
		r.Post("/file", s.handleExtractFile)
		r.Post("/batch", s.handleExtractBatch)
	})

	return r
}
