package reportapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/metrics"
	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/report"
)

// ErrUnauthorized is returned when the reporting API rejects the token.
var ErrUnauthorized = errors.New("reporting api: unauthorized")

// APIError is a non-2xx answer from the reporting API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("reporting api: status %d", e.Status)
	}
	return fmt.Sprintf("reporting api: status %d: %s", e.Status, e.Message)
}

// Is makes 401 errors match ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// HTTPClient is the subset of *http.Client the client needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Query selects one report.
type Query struct {
	Provider  models.Provider  `json:"provider"`
	AccountID string           `json:"account_id"`
	DateRange models.DateRange `json:"date_range"`
	StartDate *time.Time       `json:"start_date,omitempty"`
	EndDate   *time.Time       `json:"end_date,omitempty"`
}

// Key identifies the upstream request a query produces. Custom bounds only
// count for CUSTOM ranges because they are not sent otherwise.
func (q Query) Key() string {
	parts := []string{string(q.Provider), q.AccountID, string(q.DateRange)}
	if q.DateRange == models.RangeCustom {
		parts = append(parts, dateParam(q.StartDate), dateParam(q.EndDate))
	}
	return strings.Join(parts, "|")
}

// Response is a report as the API returns it.
type Response struct {
	Headers  []report.Header `json:"headers"`
	Rows     []report.RawRow `json:"rows"`
	Totals   *report.RawRow  `json:"totals,omitempty"`
	Averages *report.RawRow  `json:"averages,omitempty"`
}

// Source fetches reports.
type Source interface {
	FetchReport(ctx context.Context, q Query) (*Response, error)
}

// Client talks to the dashboard's backend reporting API.
type Client struct {
	baseURL string
	httpc   HTTPClient
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewClient creates a client for baseURL. A nil httpc gets a plain
// *http.Client with timeout.
func NewClient(baseURL string, httpc HTTPClient, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
		logger:  logger,
		metrics: m,
	}
}

var adsenseMetrics = []string{"ESTIMATED_EARNINGS", "CLICKS", "PAGE_VIEWS", "IMPRESSIONS"}
var adsenseDimensions = []string{"DATE", "DOMAIN_NAME", "COUNTRY_NAME"}

// FetchReport fetches one report. Failures are returned as-is; there is no
// retry.
func (c *Client) FetchReport(ctx context.Context, q Query) (*Response, error) {
	if q.AccountID == "" {
		return nil, errors.New("account id is required")
	}
	params := url.Values{}
	params.Set("dateRange", string(q.DateRange))
	if q.DateRange == models.RangeCustom {
		if q.StartDate == nil || q.EndDate == nil {
			return nil, errors.New("custom range needs start and end dates")
		}
		params.Set("startDate", dateParam(q.StartDate))
		params.Set("endDate", dateParam(q.EndDate))
	}

	var path, endpoint string
	switch q.Provider {
	case models.ProviderAdSense:
		path, endpoint = "/adsense/report", "adsense_report"
		params.Set("accountId", q.AccountID)
		for _, d := range adsenseDimensions {
			params.Add("dimensions", d)
		}
		for _, m := range adsenseMetrics {
			params.Add("metrics", m)
		}
	case models.ProviderAdManager:
		path, endpoint = "/admanager/report", "admanager_report"
		params.Set("networkId", q.AccountID)
	default:
		return nil, fmt.Errorf("unknown provider %q", q.Provider)
	}

	var resp Response
	if err := c.do(ctx, http.MethodGet, path+"?"+params.Encode(), endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type accountDTO struct {
	AccountID   string `json:"accountId"`
	NetworkID   string `json:"networkId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	GoogleID    string `json:"googleId"`
}

// ListAccounts returns the accounts connected for provider.
func (c *Client) ListAccounts(ctx context.Context, p models.Provider) ([]models.Account, error) {
	var dtos []accountDTO
	switch p {
	case models.ProviderAdSense:
		var body struct {
			Accounts []accountDTO `json:"accounts"`
		}
		if err := c.do(ctx, http.MethodGet, "/auth/accounts", "adsense_accounts", nil, &body); err != nil {
			return nil, err
		}
		dtos = body.Accounts
	case models.ProviderAdManager:
		if err := c.do(ctx, http.MethodGet, "/admanager/accounts", "admanager_accounts", nil, &dtos); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown provider %q", p)
	}

	now := time.Now().UTC()
	accounts := make([]models.Account, 0, len(dtos))
	for _, d := range dtos {
		id := d.AccountID
		if p == models.ProviderAdManager {
			id = d.NetworkID
		}
		if id == "" {
			continue
		}
		accounts = append(accounts, models.Account{
			Provider:    p,
			ID:          id,
			DisplayName: d.DisplayName,
			Email:       d.Email,
			GoogleID:    d.GoogleID,
			UpdatedAt:   now,
		})
	}
	return accounts, nil
}

// DeleteAccount disconnects an account upstream.
func (c *Client) DeleteAccount(ctx context.Context, p models.Provider, id string) error {
	var path string
	switch p {
	case models.ProviderAdSense:
		path = "/adsense/accounts/" + url.PathEscape(id)
	case models.ProviderAdManager:
		path = "/admanager/accounts/" + url.PathEscape(id)
	default:
		return fmt.Errorf("unknown provider %q", p)
	}
	return c.do(ctx, http.MethodDelete, path, string(p)+"_account_delete", nil, nil)
}

type siteDTO struct {
	AccountID string `json:"accountId"`
	Name      string `json:"name"`
	Domain    string `json:"domain"`
	State     string `json:"state"`
}

func (d siteDTO) site() models.Site {
	return models.Site{AccountID: d.AccountID, Name: d.Name, Domain: d.Domain, State: d.State}
}

// ListSites returns the sites of an AdSense account.
func (c *Client) ListSites(ctx context.Context, accountID string) ([]models.Site, error) {
	var body struct {
		Sites []siteDTO `json:"sites"`
	}
	if err := c.do(ctx, http.MethodGet, "/adsense/sites/"+url.PathEscape(accountID), "adsense_sites", nil, &body); err != nil {
		return nil, err
	}
	sites := make([]models.Site, len(body.Sites))
	for i, d := range body.Sites {
		sites[i] = d.site()
		sites[i].AccountID = accountID
	}
	return sites, nil
}

// ListAllSites returns the sites of every AdSense account of the caller.
func (c *Client) ListAllSites(ctx context.Context) ([]models.Site, error) {
	var body struct {
		Sites []siteDTO `json:"sites"`
	}
	if err := c.do(ctx, http.MethodGet, "/adsense/sites", "adsense_sites_all", nil, &body); err != nil {
		return nil, err
	}
	sites := make([]models.Site, 0, len(body.Sites))
	for _, d := range body.Sites {
		if d.AccountID == "" {
			continue
		}
		sites = append(sites, d.site())
	}
	return sites, nil
}

type websiteDTO struct {
	ID        string    `json:"_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

func (d websiteDTO) website() models.Website {
	return models.Website{ID: d.ID, URL: d.URL, CreatedAt: d.CreatedAt}
}

// ListWebsites returns the websites the caller registered.
func (c *Client) ListWebsites(ctx context.Context) ([]models.Website, error) {
	var dtos []websiteDTO
	if err := c.do(ctx, http.MethodGet, "/web/websites", "websites", nil, &dtos); err != nil {
		return nil, err
	}
	websites := make([]models.Website, len(dtos))
	for i, d := range dtos {
		websites[i] = d.website()
	}
	return websites, nil
}

// AddWebsite registers rawURL for the caller.
func (c *Client) AddWebsite(ctx context.Context, rawURL string) (*models.Website, error) {
	var body struct {
		Website websiteDTO `json:"website"`
	}
	in := map[string]string{"url": rawURL}
	if err := c.do(ctx, http.MethodPost, "/web/websites", "website_add", in, &body); err != nil {
		return nil, err
	}
	if body.Website.ID == "" {
		return nil, errors.New("decode website_add: response has no website id")
	}
	w := body.Website.website()
	return &w, nil
}

// DeleteWebsite removes one of the caller's websites.
func (c *Client) DeleteWebsite(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/web/websites/"+url.PathEscape(id), "website_delete", nil, nil)
}

type offlineReportDTO struct {
	ID               string          `json:"_id"`
	AccountID        string          `json:"accountId"`
	Headers          []string        `json:"headers"`
	Rows             [][]string      `json:"rows"`
	Totals           []string        `json:"totals"`
	Averages         []string        `json:"averages"`
	TotalMatchedRows json.RawMessage `json:"totalMatchedRows"`
	StartDate        string          `json:"startDate"`
	EndDate          string          `json:"endDate"`
	CreatedAt        time.Time       `json:"createdAt"`
}

func (d offlineReportDTO) snapshot() models.Snapshot {
	s := models.Snapshot{
		ID:        d.ID,
		Provider:  models.ProviderAdSense,
		AccountID: d.AccountID,
		DateRange: models.RangeAll,
		Source:    models.SnapshotOffline,
		Headers:   d.Headers,
		Rows:      d.Rows,
		Totals:    d.Totals,
		Averages:  d.Averages,
		RowCount:  matchedRows(d.TotalMatchedRows, len(d.Rows)),
		CreatedAt: d.CreatedAt,
	}
	start, okStart := report.ParseDay(d.StartDate)
	end, okEnd := report.ParseDay(d.EndDate)
	if okStart && okEnd {
		s.DateRange = models.RangeCustom
		s.StartDate, s.EndDate = &start, &end
	}
	return s
}

// matchedRows reads a row count sent either as a number or as a string.
func matchedRows(raw json.RawMessage, fallback int) int {
	v := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return n
	}
	return fallback
}

// ListOfflineReports returns the stored AdSense reports of the caller. An
// empty accountID lists every account.
func (c *Client) ListOfflineReports(ctx context.Context, accountID string) ([]models.Snapshot, error) {
	path := "/adsense/offline/reports"
	if accountID != "" {
		path += "?" + url.Values{"accountId": {accountID}}.Encode()
	}
	return c.offlineReports(ctx, path, "offline_reports")
}

// ListAllOfflineReports returns the stored reports of all users. The API
// only grants it to administrators.
func (c *Client) ListAllOfflineReports(ctx context.Context) ([]models.Snapshot, error) {
	return c.offlineReports(ctx, "/adsense/offline/reports/all", "offline_reports_all")
}

func (c *Client) offlineReports(ctx context.Context, path, endpoint string) ([]models.Snapshot, error) {
	var dtos []offlineReportDTO
	if err := c.do(ctx, http.MethodGet, path, endpoint, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]models.Snapshot, len(dtos))
	for i, d := range dtos {
		out[i] = d.snapshot()
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", endpoint, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.metrics.RecordUpstream(endpoint, 0, time.Since(start))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordUpstream(endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(body)}
		c.logger.Warn("Reporting API error",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message),
		)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

// errorMessage extracts msg, error or message from an error body.
func errorMessage(body []byte) string {
	var e struct {
		Msg     string `json:"msg"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		for _, s := range []string{e.Msg, e.Error, e.Message} {
			if s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(body))
}

func dateParam(t *time.Time) string {
	if t == nil {
		return ""
	}
	return report.DayKey(*t)
}
