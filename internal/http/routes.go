package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	m "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fireeye-analysis/internal/analysis"
	"fireeye-analysis/internal/auth"
	"fireeye-analysis/internal/fireeye"
	"fireeye-analysis/internal/metrics"
	"fireeye-analysis/internal/schemas"
)

// Service is the analysis core behind both route trees.
type Service interface {
	SubmitFiles(ctx context.Context, tok fireeye.Token, user auth.User, files []analysis.FileRef, envs []int) ([]analysis.ItemStatus, error)
	SubmitURLs(ctx context.Context, tok fireeye.Token, user auth.User, urls []string, envs []int) ([]analysis.ItemStatus, error)
	Statuses(ctx context.Context, tok fireeye.Token, scope auth.Scope, sha256 string, sampleID int64) ([]analysis.ReportStatus, error)
	Report(ctx context.Context, tok fireeye.Token, scope auth.Scope, sha256 string, reportID int64) ([]analysis.ReportResult, error)
	Environments(ctx context.Context, tok fireeye.Token) ([]analysis.Environment, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the router.
type Deps struct {
	Service      Service
	Users        UserLookup
	Health       Pinger
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	FireEyeToken string
}

// scopeFunc picks the sample visibility of a route tree for the caller.
type scopeFunc func(auth.User) auth.Scope

func public(auth.User) auth.Scope { return auth.Unrestricted() }

func privileged(u auth.User) auth.Scope { return auth.OwnedBy(u.ID) }

type Server struct {
	svc Service
	log *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{svc: d.Service, log: log}

	r := chi.NewRouter()
	r.Use(m.RequestID, m.RealIP, RequestLogger(log, d.Metrics), m.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(RequireAPIKey(d.Users, log), FireEyeToken(d.FireEyeToken))
		r.Route("/api/1.0", func(r chi.Router) { s.mount(r, public) })
		r.Route("/cp/1.0", func(r chi.Router) { s.mount(r, privileged) })
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.Health.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "db error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func NewServer(addr string, d Deps) *http.Server {
	return &http.Server{Addr: addr, Handler: NewRouter(d), ReadHeaderTimeout: 10 * time.Second}
}

func (s *Server) mount(r chi.Router, scope scopeFunc) {
	r.Get("/analysis/fireeye/environments", s.environments)
	r.Get("/analysis/fireeye/report/{sha256}/{reportID}", s.report(scope))
	r.Get("/analysis/fireeye/{sha256}/{sampleID}", s.statuses(scope))
	r.Post("/analysis/fireeye", s.submitFiles)
	r.Put("/analysis/fireeye", s.submitFiles)
	r.Post("/analysis/fireeye-url", s.submitURLs)
	r.Put("/analysis/fireeye-url", s.submitURLs)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// fail maps service errors onto status codes. Upstream causes are logged and
// never shown to the caller.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *analysis.ValidationError
	var upErr *analysis.UpstreamError
	switch {
	case errors.Is(err, analysis.ErrNotFound):
		writeJSON(w, http.StatusNotFound, schemas.ErrorResponse{Error: "not found"})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, schemas.ErrorResponse{Error: verr.Message})
	case errors.As(err, &upErr):
		s.log.Error("fireeye request failed",
			slog.String("op", string(upErr.Op)),
			slog.String("request_id", m.GetReqID(r.Context())),
			slog.String("error", upErr.Err.Error()))
		writeJSON(w, http.StatusBadGateway, schemas.ErrorResponse{Error: upErr.Message()})
	default:
		s.log.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", m.GetReqID(r.Context())),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, schemas.ErrorResponse{Error: "internal error"})
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) environments(w http.ResponseWriter, r *http.Request) {
	envs, err := s.svc.Environments(r.Context(), tokenFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schemas.EnvironmentsResponse{Environments: envs})
}

func (s *Server) statuses(scope scopeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sampleID, ok := pathID(r, "sampleID")
		if !ok {
			s.fail(w, r, analysis.ErrNotFound)
			return
		}
		user, _ := auth.UserFrom(r.Context())
		out, err := s.svc.Statuses(r.Context(), tokenFrom(r.Context()), scope(user), chi.URLParam(r, "sha256"), sampleID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, schemas.StatusesResponse{Statuses: out})
	}
}

func (s *Server) report(scope scopeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reportID, ok := pathID(r, "reportID")
		if !ok {
			s.fail(w, r, analysis.ErrNotFound)
			return
		}
		user, _ := auth.UserFrom(r.Context())
		out, err := s.svc.Report(r.Context(), tokenFrom(r.Context()), scope(user), chi.URLParam(r, "sha256"), reportID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, schemas.ResultsResponse{Results: out})
	}
}

func (s *Server) submitFiles(w http.ResponseWriter, r *http.Request) {
	var req schemas.SubmitFilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, schemas.ErrorResponse{Error: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	user, _ := auth.UserFrom(r.Context())
	statuses, err := s.svc.SubmitFiles(r.Context(), tokenFrom(r.Context()), user, req.Refs(), req.DynAnalysis.FireEye)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, schemas.SubmitResponse{Statuses: statuses, Message: schemas.MessageFilesSubmitted})
}

func (s *Server) submitURLs(w http.ResponseWriter, r *http.Request) {
	var req schemas.SubmitURLsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, schemas.ErrorResponse{Error: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	user, _ := auth.UserFrom(r.Context())
	statuses, err := s.svc.SubmitURLs(r.Context(), tokenFrom(r.Context()), user, req.URLs, req.DynAnalysis.FireEye)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, schemas.SubmitResponse{Statuses: statuses, Message: schemas.MessageURLsSubmitted})
}
