package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/report"
	"github.com/radiusdt/adreport/internal/reportapi"
	"github.com/radiusdt/adreport/internal/session"
	"github.com/radiusdt/adreport/internal/storage"
)

// ---- One-shot reports ----

type reportQueryRequest struct {
	Provider     models.Provider  `json:"provider" validate:"required,oneof=adsense admanager"`
	AccountID    string           `json:"account_id" validate:"required"`
	DateRange    models.DateRange `json:"date_range,omitempty"`
	StartDate    *time.Time       `json:"start_date,omitempty"`
	EndDate      *time.Time       `json:"end_date,omitempty" validate:"required_with=StartDate"`
	Sites        []string         `json:"sites,omitempty"`
	Countries    []string         `json:"countries,omitempty"`
	SortKey      string           `json:"sort_key,omitempty"`
	SortDir      report.Direction `json:"sort_direction,omitempty" validate:"omitempty,oneof=asc desc"`
	Page         int              `json:"page,omitempty" validate:"omitempty,min=1"`
	PageSize     int              `json:"page_size,omitempty" validate:"omitempty,min=1,max=500"`
	SiteQuery    string           `json:"site_query,omitempty"`
	CountryQuery string           `json:"country_query,omitempty"`
}

func (req reportQueryRequest) filter(def models.DateRange) (report.FilterState, error) {
	f := report.FilterState{
		DateRange:    req.DateRange,
		Sites:        req.Sites,
		Countries:    req.Countries,
		SiteQuery:    req.SiteQuery,
		CountryQuery: req.CountryQuery,
	}
	if f.DateRange == "" {
		f.DateRange = def
		if req.StartDate != nil {
			f.DateRange = models.RangeCustom
		}
	}
	if _, err := models.ParseDateRange(string(f.DateRange)); err != nil {
		return f, err
	}
	if f.DateRange == models.RangeCustom {
		if req.StartDate == nil || req.EndDate == nil {
			return f, fmt.Errorf("custom range needs start_date and end_date")
		}
		start, end := report.Day(*req.StartDate), report.Day(*req.EndDate)
		if end.Before(start) {
			return f, fmt.Errorf("end_date is before start_date")
		}
		f.StartDate, f.EndDate = &start, &end
	}
	return f, nil
}

func (s *Server) handleQueryReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		s.errorResponse(w, "reporting API is not configured", http.StatusServiceUnavailable)
		return
	}
	var req reportQueryRequest
	if !s.decode(w, r, &req) {
		return
	}
	f, err := req.filter(s.views.DefaultRange())
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	layout := report.LayoutFor(req.Provider)
	order := report.SortState{Key: req.SortKey, Direction: req.SortDir}
	if order.Key != "" {
		order.Key = layout.Key(order.Key)
		if _, ok := layout.Column(order.Key); !ok {
			s.errorResponse(w, fmt.Sprintf("unknown sort column %q", req.SortKey), http.StatusBadRequest)
			return
		}
		if order.Direction == "" {
			order.Direction = report.Asc
		}
	}

	q := reportapi.Query{Provider: req.Provider, AccountID: req.AccountID, DateRange: f.DateRange}
	if f.DateRange == models.RangeCustom {
		q.StartDate, q.EndDate = f.StartDate, f.EndDate
	}
	resp, err := s.reports.FetchReport(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := report.Normalize(resp.Headers, resp.Rows, layout)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadGateway)
		return
	}

	size := req.PageSize
	if size <= 0 {
		size = s.cfg.View.PageSize
	}
	today := s.geo.Today(r)
	rows, _ := report.Prepare(t, f, order, today)
	page := report.ClampPage(req.Page, report.PageCount(len(rows), size))

	s.jsonResponse(w, http.StatusOK, report.Build(t, report.Query{
		Filter:   f,
		Sort:     order,
		Page:     page,
		PageSize: size,
	}, today))
}

// ---- Views ----

func (s *Server) handleOpenView(w http.ResponseWriter, r *http.Request) {
	var req session.OpenRequest
	if !s.decode(w, r, &req) {
		return
	}
	st, err := s.views.Open(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.views.Render(r.Context(), st.ID, s.geo.Today(r), 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/views/"+st.ID)
	s.jsonResponse(w, http.StatusCreated, page)
}

func (s *Server) handleRenderView(w http.ResponseWriter, r *http.Request) {
	n, err := pageParam(r, "page")
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.render(w, r, chi.URLParam(r, "id"), n)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, id string, n int) {
	page, err := s.views.Render(r.Context(), id, s.geo.Today(r), n)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, page)
}

type commandsRequest struct {
	Commands []session.Command `json:"commands" validate:"required,min=1,dive"`
}

func (s *Server) handleViewCommands(w http.ResponseWriter, r *http.Request) {
	var req commandsRequest
	if !s.decode(w, r, &req) {
		return
	}
	ts, err := session.Transitions(req.Commands, s.views.DefaultRange())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.views.Apply(r.Context(), id, ts...); err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, r, id, 0)
}

func (s *Server) handleRefreshView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.views.Refresh(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, r, id, 0)
}

func (s *Server) handleViewOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.views.Options(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, opts)
}

func (s *Server) handleExportView(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		s.errorResponse(w, "format must be json or csv", http.StatusBadRequest)
		return
	}

	doc, err := s.views.Export(r.Context(), chi.URLParam(r, "id"), s.geo.Today(r), r.URL.Query().Get("title"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if format == "json" {
		s.jsonResponse(w, http.StatusOK, doc)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(doc.FileName+".csv"))
	if err := doc.WriteCSV(w); err != nil {
		s.logger.Warn("csv export interrupted", zap.Error(err))
	}
}

func (s *Server) handleSnapshotView(w http.ResponseWriter, r *http.Request) {
	snap, err := s.views.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, snap)
}

func (s *Server) handleCloseView(w http.ResponseWriter, r *http.Request) {
	if err := s.views.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- Snapshots ----

type snapshotList struct {
	Snapshots []*models.Snapshot `json:"snapshots"`

	// Stale is set when the upstream offline reports could not be listed
	// and only the local archive was served.
	Stale bool `json:"stale,omitempty"`
}

// handleListSnapshots lists the caller's archived views merged with the
// offline reports the API keeps for AdSense accounts, newest first.
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	f := storage.SnapshotFilter{Owner: reportapi.Owner(ctx), AccountID: q.Get("accountId")}
	if v := q.Get("provider"); v != "" {
		p, err := models.ParseProvider(v)
		if err != nil {
			s.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.Provider = p
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.errorResponse(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	list, err := s.snapshots.List(ctx, f)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var stale bool
	if s.directory != nil && f.Provider != models.ProviderAdManager {
		offline, err := s.directory.ListOfflineReports(ctx, f.AccountID)
		switch {
		case err == nil:
			for i := range offline {
				list = append(list, &offline[i])
			}
		case errors.Is(err, reportapi.ErrUnauthorized):
			s.fail(w, r, err)
			return
		default:
			s.logger.Warn("offline report listing failed, serving archive", zap.Error(err))
			stale = true
		}
	}

	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if n := f.Max(); len(list) > n {
		list = list[:n]
	}
	if list == nil {
		list = []*models.Snapshot{}
	}
	s.jsonResponse(w, http.StatusOK, snapshotList{Snapshots: list, Stale: stale})
}

// handleListAllSnapshots lists the offline reports of every account the
// caller can see.
func (s *Server) handleListAllSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		s.errorResponse(w, "reporting API is not configured", http.StatusServiceUnavailable)
		return
	}
	offline, err := s.directory.ListAllOfflineReports(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list := make([]*models.Snapshot, len(offline))
	for i := range offline {
		list[i] = &offline[i]
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	s.jsonResponse(w, http.StatusOK, snapshotList{Snapshots: list})
}
