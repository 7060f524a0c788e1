package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/metrics"
	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/report"
	"github.com/radiusdt/adreport/internal/reportapi"
	"github.com/radiusdt/adreport/internal/storage"
)

// OpenRequest describes a view at route entry.
type OpenRequest struct {
	Provider  models.Provider  `json:"provider" validate:"required,oneof=adsense admanager"`
	AccountID string           `json:"account_id" validate:"required"`
	DateRange models.DateRange `json:"date_range,omitempty"`
	StartDate *time.Time       `json:"start_date,omitempty"`
	EndDate   *time.Time       `json:"end_date,omitempty"`
	PageSize  int              `json:"page_size,omitempty" validate:"omitempty,min=1,max=500"`
}

// Page is a rendered view together with its fetch status.
type Page struct {
	ID        string             `json:"id"`
	Provider  models.Provider    `json:"provider"`
	AccountID string             `json:"account_id"`
	Filter    report.FilterState `json:"filter"`
	Error     string             `json:"error,omitempty"`
	FetchedAt time.Time          `json:"fetched_at,omitempty"`
	report.View
}

// Config configures a Manager.
type Config struct {
	DefaultRange models.DateRange
	PageSize     int
}

// Manager owns the lifecycle of report views.
type Manager struct {
	store   Store
	fetcher *Fetcher
	archive storage.SnapshotArchive
	opts    Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(store Store, fetcher *Fetcher, archive storage.SnapshotArchive, opts Config, logger *zap.Logger, m *metrics.Metrics) *Manager {
	if opts.DefaultRange == "" {
		opts.DefaultRange = models.RangeLast7Days
	}
	if opts.PageSize <= 0 {
		opts.PageSize = report.DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		fetcher: fetcher,
		archive: archive,
		opts:    opts,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

// DefaultRange is the range new views and filter resets start from.
func (m *Manager) DefaultRange() models.DateRange {
	return m.opts.DefaultRange
}

// Open creates a view and performs its first fetch. A failed fetch is
// recorded on the view and not returned.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*State, error) {
	if _, err := models.ParseProvider(string(req.Provider)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if strings.TrimSpace(req.AccountID) == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalid)
	}

	now := m.now().UTC()
	s := &State{
		ID:        uuid.NewString(),
		Owner:     reportapi.Owner(ctx),
		Provider:  req.Provider,
		AccountID: strings.TrimSpace(req.AccountID),
		Filter:    report.FilterState{DateRange: m.opts.DefaultRange},
		Page:      1,
		PageSize:  m.opts.PageSize,
		SeenRows:  -1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.PageSize > 0 {
		s.PageSize = req.PageSize
	}

	var initial Transition
	switch {
	case req.DateRange == models.RangeCustom || (req.DateRange == "" && req.StartDate != nil):
		if req.StartDate == nil || req.EndDate == nil {
			return nil, fmt.Errorf("%w: custom range needs start_date and end_date", ErrInvalid)
		}
		initial = SetCustomRange(*req.StartDate, *req.EndDate)
	case req.DateRange != "":
		initial = SetDateRange(req.DateRange)
	}
	if initial != nil {
		if err := initial(s); err != nil {
			return nil, err
		}
	}

	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	m.metrics.ViewOpened()
	m.logger.Info("view opened",
		zap.String("view_id", s.ID),
		zap.String("provider", string(s.Provider)),
		zap.String("account_id", s.AccountID),
		zap.String("date_range", string(s.Filter.DateRange)),
	)

	return m.refetch(ctx, s.ID)
}

// Get returns the stored state of a view.
func (m *Manager) Get(ctx context.Context, id string) (*State, error) {
	return m.load(ctx, id)
}

// load returns the view if the caller opened it. Views of other callers
// are reported as ErrNotFound.
func (m *Manager) load(ctx context.Context, id string) (*State, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Owner != reportapi.Owner(ctx) {
		return nil, ErrNotFound
	}
	return s, nil
}

// Apply runs ts in order and saves the result. If the upstream query
// changed, the report is refetched; of concurrent refetches for the same
// view only the latest commits. A transition error leaves the view as it was.
func (m *Manager) Apply(ctx context.Context, id string, ts ...Transition) (*State, error) {
	var refetch bool
	s, err := m.update(ctx, id, func(s *State) error {
		before := s.Query().Key()
		for _, t := range ts {
			if err := t(s); err != nil {
				return err
			}
		}
		refetch = s.Query().Key() != before
		return nil
	})
	if err != nil || !refetch {
		return s, err
	}
	return m.refetch(ctx, id)
}

// Refresh refetches the view's report.
func (m *Manager) Refresh(ctx context.Context, id string) (*State, error) {
	if _, err := m.load(ctx, id); err != nil {
		return nil, err
	}
	return m.refetch(ctx, id)
}

// Render builds the view's current page for the viewer's day. The page
// resets to 1 whenever the filtered row count differs from the previous
// render. A positive page is then applied, and the result is clamped to
// the last page.
func (m *Manager) Render(ctx context.Context, id string, today time.Time, page int) (*Page, error) {
	var out *Page
	_, err := m.update(ctx, id, func(s *State) error {
		t := s.Table()
		rows, _ := report.Prepare(t, s.Filter, s.Sort, today)
		if len(rows) != s.SeenRows {
			s.Page = 1
			s.SeenRows = len(rows)
		}
		if page > 0 {
			s.Page = page
		}
		s.Page = report.ClampPage(s.Page, report.PageCount(len(rows), s.PageSize))

		v := report.Build(t, s.ReportQuery(), today)
		out = &Page{
			ID:        s.ID,
			Provider:  s.Provider,
			AccountID: s.AccountID,
			Filter:    s.Filter,
			Error:     s.Error,
			FetchedAt: s.FetchedAt,
			View:      v,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.metrics.RecordRender(string(out.Provider), out.TotalRows)
	return out, nil
}

// Options returns the filter option lists of the view.
func (m *Manager) Options(ctx context.Context, id string) (report.Options, error) {
	s, err := m.load(ctx, id)
	if err != nil {
		return report.Options{}, err
	}
	t := s.Table()
	if t == nil {
		t = &report.Table{Layout: report.LayoutFor(s.Provider)}
	}
	return report.BuildOptions(t, s.Filter), nil
}

// Export returns the whole filtered, sorted report as a document.
func (m *Manager) Export(ctx context.Context, id string, today time.Time, title string) (report.Document, error) {
	s, err := m.load(ctx, id)
	if err != nil {
		return report.Document{}, err
	}
	t := s.Table()
	if t == nil {
		t = &report.Table{Layout: report.LayoutFor(s.Provider)}
	}
	return report.Export(t, s.ReportQuery(), today, title), nil
}

// Snapshot archives the fetched report of the view, unfiltered.
func (m *Manager) Snapshot(ctx context.Context, id string) (*models.Snapshot, error) {
	if m.archive == nil {
		return nil, errors.New("snapshot archive is not configured")
	}
	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	t := s.Table()
	if t == nil {
		return nil, fmt.Errorf("%w: view has no fetched report", ErrInvalid)
	}

	snap := BuildSnapshot(s, t)
	snap.ID = uuid.NewString()
	snap.Owner = s.Owner
	snap.Source = models.SnapshotView
	snap.CreatedAt = m.now().UTC()

	err = m.archive.Save(ctx, snap)
	m.metrics.RecordSnapshot(string(s.Provider), err)
	if err != nil {
		return nil, fmt.Errorf("failed to archive snapshot: %w", err)
	}
	return snap, nil
}

// BuildSnapshot converts a fetched table into an archive record. Cells hold
// the normalized values in layout column order.
func BuildSnapshot(s *State, t *report.Table) *models.Snapshot {
	l := t.Layout
	keys := l.ColumnKeys()
	rows := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		cells := make([]string, len(keys))
		for j, k := range keys {
			cells[j] = r[k]
		}
		rows[i] = cells
	}

	totals := report.Aggregate(t.Rows, l)
	totalCells := make([]string, len(keys))
	for j, k := range keys {
		if j == 0 {
			totalCells[j] = "TOTAL"
			continue
		}
		totalCells[j], _ = totals.Value(k, l)
	}

	q := s.Query()
	return &models.Snapshot{
		Provider:  s.Provider,
		AccountID: s.AccountID,
		DateRange: s.Filter.DateRange,
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
		Headers:   keys,
		Rows:      rows,
		Totals:    totalCells,
		RowCount:  len(rows),
	}
}

// Close ends the view and aborts its fetch in flight.
func (m *Manager) Close(ctx context.Context, id string) error {
	if _, err := m.load(ctx, id); err != nil {
		return err
	}
	m.fetcher.Cancel(id)
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.locks, id)
	m.mu.Unlock()
	m.metrics.ViewClosed()
	m.logger.Info("view closed", zap.String("view_id", id))
	return nil
}

// refetch fetches the view's current query and commits the result unless
// a newer fetch superseded it. Failures are stored on the view.
func (m *Manager) refetch(ctx context.Context, id string) (*State, error) {
	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	q := s.Query()

	t, fetchErr := m.fetcher.Fetch(ctx, id, q)
	if errors.Is(fetchErr, ErrStale) {
		return m.load(ctx, id)
	}

	return m.update(ctx, id, func(s *State) error {
		if s.Query().Key() != q.Key() {
			return nil
		}
		if fetchErr != nil {
			s.Error = fetchErrorMessage(fetchErr)
			m.metrics.RecordFetchFailure(string(s.Provider))
			m.logger.Warn("report fetch failed",
				zap.String("view_id", id),
				zap.String("query", q.Key()),
				zap.Error(fetchErr),
			)
			return nil
		}
		s.setTable(t, m.now().UTC())
		return nil
	})
}

// update runs fn on the stored state under the view's lock and saves it.
// The stored state is untouched when fn fails.
func (m *Manager) update(ctx context.Context, id string, fn func(*State) error) (*State, error) {
	lock := m.lock(id)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	s.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Manager) lock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func fetchErrorMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Report request timed out"
	case errors.Is(err, context.Canceled):
		return "Report request was cancelled"
	}
	return "Failed to fetch report: " + err.Error()
}
