package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/config"
	"github.com/radiusdt/adreport/internal/geo"
	"github.com/radiusdt/adreport/internal/metrics"
	"github.com/radiusdt/adreport/internal/middleware"
	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/reportapi"
	"github.com/radiusdt/adreport/internal/session"
	"github.com/radiusdt/adreport/internal/storage"
)

// Directory is the account side of the reporting API. Its listings are the
// source of truth; the local repositories only cache them.
type Directory interface {
	ListAccounts(ctx context.Context, p models.Provider) ([]models.Account, error)
	DeleteAccount(ctx context.Context, p models.Provider, id string) error
	ListSites(ctx context.Context, accountID string) ([]models.Site, error)
	ListAllSites(ctx context.Context) ([]models.Site, error)

	ListWebsites(ctx context.Context) ([]models.Website, error)
	AddWebsite(ctx context.Context, rawURL string) (*models.Website, error)
	DeleteWebsite(ctx context.Context, id string) error

	ListOfflineReports(ctx context.Context, accountID string) ([]models.Snapshot, error)
	ListAllOfflineReports(ctx context.Context) ([]models.Snapshot, error)
}

// Dependencies holds all server dependencies.
type Dependencies struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// Gatherer backs the metrics endpoint; nil means the default registry.
	Gatherer prometheus.Gatherer

	Directory Directory
	Reports   reportapi.Source
	Views     *session.Manager
	Geo       *geo.Resolver

	Accounts  storage.AccountRepo
	Sites     storage.SiteRepo
	Websites  storage.WebsiteRepo
	Snapshots storage.SnapshotArchive

	// RateLimiter is created from Config when nil.
	RateLimiter *middleware.RateLimitMiddleware
}

// Server handles the dashboard's HTTP API.
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	directory Directory
	reports   reportapi.Source
	views     *session.Manager
	geo       *geo.Resolver
	accounts  storage.AccountRepo
	sites     storage.SiteRepo
	websites  storage.WebsiteRepo
	snapshots storage.SnapshotArchive
	validate  *validator.Validate
	now       func() time.Time
}

// NewServer creates the router with all routes and middleware.
func NewServer(deps *Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    logger,
		metrics:   deps.Metrics,
		directory: deps.Directory,
		reports:   deps.Reports,
		views:     deps.Views,
		geo:       deps.Geo,
		accounts:  deps.Accounts,
		sites:     deps.Sites,
		websites:  deps.Websites,
		snapshots: deps.Snapshots,
		validate:  validator.New(),
		now:       time.Now,
	}

	// In-memory fallbacks for anything not backed by a database.
	if s.accounts == nil {
		s.accounts = storage.NewInMemoryAccountRepo()
	}
	if s.sites == nil {
		s.sites = storage.NewInMemorySiteRepo()
	}
	if s.websites == nil {
		s.websites = storage.NewInMemoryWebsiteRepo()
	}
	if s.snapshots == nil {
		s.snapshots = storage.NewInMemorySnapshotArchive()
	}
	if s.geo == nil {
		loc, _ := s.cfg.View.Location()
		s.geo = geo.NewResolver(nil, loc, logger, deps.Metrics)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger).Handler)
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics).Handler)
	if s.cfg.RateLimit.Enabled {
		rl := deps.RateLimiter
		if rl == nil {
			rl = middleware.NewRateLimitMiddleware(s.cfg.RateLimit, logger, deps.Metrics)
		}
		r.Use(rl.Handler)
	}
	r.Use(middleware.NewAuthMiddleware(s.cfg.Auth, logger).Handler)

	r.Get("/health", s.handleHealth)
	if s.cfg.Metrics.Enabled {
		g := deps.Gatherer
		if g == nil {
			g = prometheus.DefaultGatherer
		}
		r.Method(http.MethodGet, s.cfg.Metrics.Path, metrics.Handler(g))
	}

	// Accounts
	r.Get("/accounts", s.handleListAccounts)
	r.Delete("/accounts/{provider}/{id}", s.handleDeleteAccount)
	r.Get("/accounts/adsense/sites", s.handleListAllSites)
	r.Get("/accounts/adsense/{id}/sites", s.handleListSites)

	// Websites
	r.Get("/websites", s.handleListWebsites)
	r.Post("/websites", s.handleAddWebsite)
	r.Delete("/websites/{id}", s.handleDeleteWebsite)

	// Reports
	r.Post("/reports/query", s.handleQueryReport)
	r.Get("/snapshots", s.handleListSnapshots)
	r.Get("/snapshots/all", s.handleListAllSnapshots)

	// Views
	r.Route("/views", func(r chi.Router) {
		r.Post("/", s.handleOpenView)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleRenderView)
			r.Delete("/", s.handleCloseView)
			r.Post("/commands", s.handleViewCommands)
			r.Post("/refresh", s.handleRefreshView)
			r.Get("/options", s.handleViewOptions)
			r.Get("/export", s.handleExportView)
			r.Post("/snapshots", s.handleSnapshotView)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.errorResponse(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	return r
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---- Helpers ----

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.errorResponse(w, validationMessage(err), http.StatusBadRequest)
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s: failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return "invalid request: " + strings.Join(msgs, "; ")
}

// pageParam parses a 1-based page query value. Missing means 0.
func pageParam(r *http.Request, name string) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}

// fail maps err to a status code and writes it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *reportapi.APIError
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		s.errorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, session.ErrInvalid):
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, storage.ErrDuplicate):
		s.errorResponse(w, err.Error(), http.StatusConflict)
	case errors.Is(err, reportapi.ErrUnauthorized):
		s.errorResponse(w, "unauthorized", http.StatusUnauthorized)
	case errors.As(err, &apiErr):
		switch apiErr.Status {
		case http.StatusNotFound, http.StatusConflict:
			s.errorResponse(w, apiErr.Error(), apiErr.Status)
		default:
			s.errorResponse(w, apiErr.Message, http.StatusBadGateway)
		}
	case errors.Is(err, context.DeadlineExceeded):
		s.errorResponse(w, "upstream timeout", http.StatusGatewayTimeout)
	default:
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.RequestIDFrom(r.Context())),
			zap.Error(err),
		)
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	s.jsonResponse(w, code, map[string]string{"error": message})
}
