package httpserver

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/report"
	"github.com/radiusdt/adreport/internal/reportapi"
	"github.com/radiusdt/adreport/internal/storage"
)

// Accounts per page in the account pickers.
const (
	adsenseAccountsPerPage   = 10
	admanagerAccountsPerPage = 5
)

func accountsPerPage(p models.Provider) int {
	if p == models.ProviderAdSense {
		return adsenseAccountsPerPage
	}
	return admanagerAccountsPerPage
}

type accountList struct {
	Accounts   []*models.Account `json:"accounts"`
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
	Total      int               `json:"total"`

	// Stale is set when the upstream listing failed and the local registry
	// was served instead.
	Stale bool `json:"stale,omitempty"`
}

// ---- Accounts ----

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	p, err := models.ParseProvider(r.URL.Query().Get("provider"))
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	page, err := pageParam(r, "page")
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	list, stale, err := s.syncAccounts(r, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	search := r.URL.Query().Get("search")
	matched := make([]*models.Account, 0, len(list))
	for _, a := range list {
		if a.Matches(search) {
			matched = append(matched, a)
		}
	}

	size := accountsPerPage(p)
	pages := report.PageCount(len(matched), size)
	page = report.ClampPage(page, pages)
	s.jsonResponse(w, http.StatusOK, accountList{
		Accounts:   report.Paginate(matched, page, size),
		Page:       page,
		TotalPages: pages,
		Total:      len(matched),
		Stale:      stale,
	})
}

// syncAccounts refreshes the caller's local registry from the reporting API
// and returns the provider's accounts. When the API is unreachable the
// registry is served as-is; an expired token is always reported.
func (s *Server) syncAccounts(r *http.Request, p models.Provider) ([]*models.Account, bool, error) {
	ctx := r.Context()
	owner := reportapi.Owner(ctx)
	if s.directory == nil {
		list, err := s.accounts.List(ctx, owner, p)
		return list, true, err
	}

	fresh, err := s.directory.ListAccounts(ctx, p)
	if err != nil {
		if errors.Is(err, reportapi.ErrUnauthorized) {
			return nil, false, err
		}
		s.logger.Warn("account listing failed, serving local registry",
			zap.String("provider", string(p)),
			zap.Error(err),
		)
		list, lerr := s.accounts.List(ctx, owner, p)
		if lerr != nil {
			return nil, false, lerr
		}
		return list, true, nil
	}

	now := s.now().UTC()
	for i := range fresh {
		a := fresh[i]
		a.Provider = p
		a.UpdatedAt = now
		if err := s.accounts.Upsert(ctx, owner, &a); err != nil {
			s.logger.Warn("failed to store account",
				zap.String("provider", string(p)),
				zap.String("account_id", a.ID),
				zap.Error(err),
			)
		}
	}
	list, err := s.accounts.List(ctx, owner, p)
	if err != nil {
		return nil, false, err
	}
	return keepListed(list, fresh), false, nil
}

// keepListed drops registry entries the API no longer lists.
func keepListed(stored []*models.Account, listed []models.Account) []*models.Account {
	ids := make(map[string]struct{}, len(listed))
	for _, a := range listed {
		ids[a.ID] = struct{}{}
	}
	out := stored[:0]
	for _, a := range stored {
		if _, ok := ids[a.ID]; ok {
			out = append(out, a)
		}
	}
	return out
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	p, err := models.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")

	if s.directory != nil {
		if err := s.directory.DeleteAccount(r.Context(), p, id); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if err := s.accounts.Delete(r.Context(), reportapi.Owner(r.Context()), p, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.fail(w, r, err)
		return
	}

	s.logger.Info("account deleted", zap.String("provider", string(p)), zap.String("account_id", id))
	w.WriteHeader(http.StatusNoContent)
}

type siteList struct {
	Sites []models.Site `json:"sites"`
	Stale bool          `json:"stale,omitempty"`
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := reportapi.Owner(ctx)
	id := chi.URLParam(r, "id")

	if s.directory != nil {
		sites, err := s.directory.ListSites(ctx, id)
		if err == nil {
			if err := s.sites.ReplaceForAccount(ctx, owner, id, sites); err != nil {
				s.logger.Warn("failed to cache sites", zap.String("account_id", id), zap.Error(err))
			}
			if sites == nil {
				sites = []models.Site{}
			}
			s.jsonResponse(w, http.StatusOK, siteList{Sites: sites})
			return
		}
		if errors.Is(err, reportapi.ErrUnauthorized) {
			s.fail(w, r, err)
			return
		}
		s.logger.Warn("site listing failed, serving cache", zap.String("account_id", id), zap.Error(err))
	}

	cached, err := s.sites.ListByAccount(ctx, owner, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if cached == nil {
		cached = []models.Site{}
	}
	s.jsonResponse(w, http.StatusOK, siteList{Sites: cached, Stale: true})
}

// handleListAllSites lists the sites of every AdSense account the caller
// can see. The listing refreshes the per-account cache.
func (s *Server) handleListAllSites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := reportapi.Owner(ctx)

	if s.directory != nil {
		sites, err := s.directory.ListAllSites(ctx)
		if err == nil {
			for accountID, group := range groupByAccount(sites) {
				if err := s.sites.ReplaceForAccount(ctx, owner, accountID, group); err != nil {
					s.logger.Warn("failed to cache sites", zap.String("account_id", accountID), zap.Error(err))
				}
			}
			if sites == nil {
				sites = []models.Site{}
			}
			s.jsonResponse(w, http.StatusOK, siteList{Sites: sites})
			return
		}
		if errors.Is(err, reportapi.ErrUnauthorized) {
			s.fail(w, r, err)
			return
		}
		s.logger.Warn("site listing failed, serving cache", zap.Error(err))
	}

	cached, err := s.sites.ListAll(ctx, owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if cached == nil {
		cached = []models.Site{}
	}
	s.jsonResponse(w, http.StatusOK, siteList{Sites: cached, Stale: true})
}

func groupByAccount(sites []models.Site) map[string][]models.Site {
	out := make(map[string][]models.Site)
	for _, site := range sites {
		out[site.AccountID] = append(out[site.AccountID], site)
	}
	return out
}

// ---- Websites ----

type addWebsiteRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type websiteList struct {
	Websites []*models.Website `json:"websites"`
	Stale    bool              `json:"stale,omitempty"`
}

// handleListWebsites serves the upstream website list and mirrors it into
// the caller's cache. The cache is served when the API is unreachable.
func (s *Server) handleListWebsites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := reportapi.Owner(ctx)

	if s.directory != nil {
		fresh, err := s.directory.ListWebsites(ctx)
		if err == nil {
			if err := s.websites.Replace(ctx, owner, fresh); err != nil {
				s.logger.Warn("failed to cache websites", zap.Error(err))
			}
			list := make([]*models.Website, len(fresh))
			for i := range fresh {
				list[i] = &fresh[i]
			}
			s.jsonResponse(w, http.StatusOK, websiteList{Websites: list})
			return
		}
		if errors.Is(err, reportapi.ErrUnauthorized) {
			s.fail(w, r, err)
			return
		}
		s.logger.Warn("website listing failed, serving cache", zap.Error(err))
	}

	list, err := s.websites.List(ctx, owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Website{}
	}
	s.jsonResponse(w, http.StatusOK, websiteList{Websites: list, Stale: s.directory != nil})
}

func (s *Server) handleAddWebsite(w http.ResponseWriter, r *http.Request) {
	var req addWebsiteRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	owner := reportapi.Owner(ctx)

	if s.directory == nil {
		site, err := s.websites.Add(ctx, owner, req.URL)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.jsonResponse(w, http.StatusCreated, site)
		return
	}

	site, err := s.directory.AddWebsite(ctx, req.URL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.websites.Put(ctx, owner, *site); err != nil {
		s.logger.Warn("failed to cache website", zap.String("website_id", site.ID), zap.Error(err))
	}
	s.jsonResponse(w, http.StatusCreated, site)
}

func (s *Server) handleDeleteWebsite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := reportapi.Owner(ctx)
	id := chi.URLParam(r, "id")

	if s.directory == nil {
		if err := s.websites.Delete(ctx, owner, id); err != nil {
			s.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.directory.DeleteWebsite(ctx, id); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.websites.Delete(ctx, owner, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("failed to drop cached website", zap.String("website_id", id), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}
