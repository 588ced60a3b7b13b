package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	entityextractor "github.com/menta2k/entity-extractor"
	"github.com/menta2k/entity-extractor/internal/utils"
	"github.com/menta2k/entity-extractor/pkg/extraction"
	"github.com/menta2k/entity-extractor/pkg/types"
)

const maxJSONBody = 1 << 20

type urlRequest struct {
	ImageURL string `json:"image_url"`
	APIKey   string `json:"api_key,omitempty"`
}

type batchRequest struct {
	ImageURLs []string `json:"image_urls"`
	APIKey    string   `json:"api_key,omitempty"`
}

// EntityResponse is the public envelope around one ExtractionResult.
type EntityResponse struct {
	Success          bool                  `json:"success"`
	Entities         map[string]any        `json:"entities"`
	Error            *string               `json:"error"`
	ImageInfo        *types.ImageInfo      `json:"image_info"`
	Timestamp        string                `json:"timestamp"`
	ProcessingTimeMS *float64              `json:"processing_time_ms,omitempty"`
	Warnings         []types.SchemaWarning `json:"warnings,omitempty"`
}

// BatchResponse is the public envelope around a BatchResult.
type BatchResponse struct {
	Results        []EntityResponse `json:"results"`
	TotalProcessed int              `json:"total_processed"`
	Successful     int              `json:"successful"`
	Failed         int              `json:"failed"`
	Timestamp      string           `json:"timestamp"`
}

type simpleResponse struct {
	Success          bool           `json:"success"`
	Entities         map[string]any `json:"entities"`
	Error            *string        `json:"error"`
	ProcessingTimeMS float64        `json:"processing_time_ms"`
	Timestamp        string         `json:"timestamp"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Entity Extraction API",
		"version": entityextractor.Version,
		"health":  "/health",
		"models":  "/models",
		"metrics": "/metrics",
	})
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": timestamp(),
		"version":   entityextractor.Version,
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, entityextractor.ListSupportedModels(s.config.Model))
}

func (s *Server) handleExtractURL(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validImageURL(req.ImageURL) {
		respondWithError(w, r, http.StatusBadRequest, "Invalid image URL: "+req.ImageURL)
		return
	}

	ex, ok := s.extractor(w, r, req.APIKey)
	if !ok {
		return
	}

	start := time.Now()
	result := ex.ExtractFromURL(r.Context(), req.ImageURL)
	respondWithJSON(w, http.StatusOK, newEntityResponse(result, elapsedMS(start)))
}

func (s *Server) handleExtractURLSimple(w http.ResponseWriter, r *http.Request) {
	imageURL := r.FormValue("image_url")
	if imageURL == "" {
		respondWithError(w, r, http.StatusBadRequest, "image_url is required")
		return
	}
	if !validImageURL(imageURL) {
		respondWithError(w, r, http.StatusBadRequest, "Invalid image URL: "+imageURL)
		return
	}

	ex, ok := s.extractor(w, r, "")
	if !ok {
		return
	}

	start := time.Now()
	result := ex.ExtractFromURL(r.Context(), imageURL)
	ms := elapsedMS(start)
	respondWithJSON(w, http.StatusOK, simpleResponse{
		Success:          result.Success,
		Entities:         result.Entities,
		Error:            errorPtr(result.Error),
		ProcessingTimeMS: *ms,
		Timestamp:        timestamp(),
	})
}

func (s *Server) handleExtractFile(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.config.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+maxJSONBody)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, r, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		respondWithError(w, r, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, r, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if header.Size > maxBytes {
		respondWithError(w, r, http.StatusRequestEntityTooLarge, "File too large")
		return
	}
	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		respondWithError(w, r, http.StatusBadRequest, "File must be an image")
		return
	}

	ex, ok := s.extractor(w, r, r.FormValue("api_key"))
	if !ok {
		return
	}

	dir, err := os.MkdirTemp("", "entity-upload-*")
	if err != nil {
		s.logger.Error("failed to create upload directory", zap.Error(err))
		respondWithError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, utils.SanitizeFilename(header.Filename))
	if err := saveUpload(file, path); err != nil {
		s.logger.Error("failed to store upload", zap.Error(err))
		respondWithError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	start := time.Now()
	result := ex.ExtractFromPath(r.Context(), path)
	respondWithJSON(w, http.StatusOK, newEntityResponse(result, elapsedMS(start)))
}

func (s *Server) handleExtractBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.ImageURLs) == 0 {
		respondWithError(w, r, http.StatusBadRequest, "image_urls cannot be empty")
		return
	}
	if len(req.ImageURLs) > s.config.MaxBatchSize {
		respondWithError(w, r, http.StatusBadRequest,
			"Too many image URLs: at most "+strconv.Itoa(s.config.MaxBatchSize)+" per batch")
		return
	}
	for _, u := range req.ImageURLs {
		if !validImageURL(u) {
			respondWithError(w, r, http.StatusBadRequest, "Invalid URL in list: "+u)
			return
		}
	}

	ex, ok := s.extractor(w, r, req.APIKey)
	if !ok {
		return
	}

	batch := ex.ExtractBatch(r.Context(), req.ImageURLs)

	resp := BatchResponse{
		Results:        make([]EntityResponse, 0, len(batch.Results)),
		TotalProcessed: batch.TotalProcessed,
		Successful:     batch.Successful,
		Failed:         batch.Failed,
		Timestamp:      timestamp(),
	}
	for _, res := range batch.Results {
		resp.Results = append(resp.Results, newEntityResponse(res, nil))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// extractor builds the per-request extractor, answering the request itself
// when that fails.
func (s *Server) extractor(w http.ResponseWriter, r *http.Request, apiKey string) (*extraction.Extractor, bool) {
	ex, err := s.extractorFor(apiKey)
	if err == nil {
		return ex, true
	}
	if errors.Is(err, extraction.ErrMissingCredential) {
		respondWithError(w, r, http.StatusBadRequest, err.Error())
		return nil, false
	}
	s.logger.Error("failed to create extractor", zap.Error(err))
	respondWithError(w, r, http.StatusInternalServerError, err.Error())
	return nil, false
}

// --- Helper Functions ---

func validImageURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func saveUpload(src io.Reader, path string) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func newEntityResponse(result types.ExtractionResult, processingMS *float64) EntityResponse {
	return EntityResponse{
		Success:          result.Success,
		Entities:         result.Entities,
		Error:            errorPtr(result.Error),
		ImageInfo:        result.ImageInfo,
		Timestamp:        timestamp(),
		ProcessingTimeMS: processingMS,
		Warnings:         result.Warnings,
	}
}

func errorPtr(msg string) *string {
	if msg == "" {
		return nil
	}
	return &msg
}

func elapsedMS(start time.Time) *float64 {
	ms := float64(time.Since(start).Microseconds()) / 1000
	return &ms
}

func timestamp() string {
	return time.Now().Format(time.RFC3339Nano)
}

func respondWithError(w http.ResponseWriter, r *http.Request, code int, message string) {
	respondWithJSON(w, code, map[string]string{
		"error":     message,
		"timestamp": timestamp(),
		"path":      r.URL.String(),
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
