// Package server provides the HTTP server and API handlers for the IDS
// classification service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/invisible-tech/hybrid-ids/internal/aggregate"
	"github.com/invisible-tech/hybrid-ids/internal/config"
	"github.com/invisible-tech/hybrid-ids/internal/normalize"
	"github.com/invisible-tech/hybrid-ids/internal/types"
	"github.com/invisible-tech/hybrid-ids/internal/version"
)

const welcomeMessage = "Welcome to the Lightweight Hybrid CNN and ConvNeXt-Tiny IDS for IoT Networks API"

// Classifier is the classification surface the handlers depend on.
type Classifier interface {
	ClassifyFile(ctx context.Context, name string, r io.Reader) (*types.BatchSummary, error)
	ClassifyRows(ctx context.Context, rows [][]float64) (*types.BatchSummary, error)
	Predict(ctx context.Context, features []float64) (*types.Prediction, error)
	Info() types.ModelInfo
}

// Server is the HTTP server for the classification API.
type Server struct {
	cfg        config.ServerConfig
	classifier Classifier
	log        *logrus.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a new HTTP server that uses the given classifier.
func New(cfg config.ServerConfig, clf Classifier, log *logrus.Logger) *Server {
	s := &Server{cfg: cfg, classifier: clf, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/", s.handleHome)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", func(api chi.Router) {
		api.Post("/predict", s.handlePredict)
		api.Post("/batch-predict", s.handleBatchPredict)
		api.Get("/model", s.handleModel)
	})
	s.router = r

	s.httpServer = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server. It blocks until the server is closed.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.cfg.HTTPAddr).Info("IDS API listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": welcomeMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version.Version,
	})
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.classifier.Info())
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	var req predictRequest
	if err := decodeJSON(r.Body, predictSchema, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	pred, err := s.classifier.Predict(r.Context(), req.Features)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

// handleBatchPredict accepts either a multipart upload in field "file" or a
// JSON body with a "samples" matrix.
func (s *Server) handleBatchPredict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var (
		summary *types.BatchSummary
		err     error
	)
	// A missing or malformed Content-Type is read as a JSON body.
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		summary, err = s.batchFromUpload(r)
	} else {
		var req batchRequest
		if err = decodeJSON(r.Body, batchSchema, &req); err == nil {
			summary, err = s.classifier.ClassifyRows(r.Context(), req.Samples)
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) batchFromUpload(r *http.Request) (*types.BatchSummary, error) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &requestError{status: http.StatusRequestEntityTooLarge, msg: "upload too large"}
		}
		return nil, badRequest("invalid multipart form")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, badRequest("no file uploaded in field %q", "file")
	}
	defer file.Close()
	return s.classifier.ClassifyFile(r.Context(), header.Filename, file)
}

// writeError maps pipeline and request errors to status codes. Inference
// failures get a generic message; the detail is only logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr    *requestError
		schemaErr *normalize.SchemaError
	)
	switch {
	case errors.As(err, &reqErr):
		writeJSON(w, reqErr.status, errorBody(reqErr.msg))
	case errors.As(err, &schemaErr):
		writeJSON(w, http.StatusBadRequest, errorBody(schemaErr.Error()))
	case errors.Is(err, aggregate.ErrEmptyInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		s.log.WithError(err).WithFields(logrus.Fields{
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("Classification failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("classification failed"))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
