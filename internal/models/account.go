package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider identifies which Google ad product an account belongs to.
type Provider string

const (
	ProviderAdSense   Provider = "adsense"
	ProviderAdManager Provider = "admanager"
)

// ParseProvider accepts the provider name in any case.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderAdSense:
		return ProviderAdSense, nil
	case ProviderAdManager:
		return ProviderAdManager, nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Account is a connected AdSense account or Ad Manager network. For Ad
// Manager the ID is the network code; for AdSense it is the publisher
// account id ("pub-...").
type Account struct {
	Provider    Provider  `json:"provider"`
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	GoogleID    string    `json:"google_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks that the account can be stored.
func (a *Account) Validate() error {
	if a == nil {
		return errors.New("account is nil")
	}
	if a.Provider != ProviderAdSense && a.Provider != ProviderAdManager {
		return fmt.Errorf("unknown provider %q", a.Provider)
	}
	if a.ID == "" {
		return errors.New("id is required")
	}
	return nil
}

// Matches reports whether the account's id, name or email contains q
// (case-insensitive). An empty query matches everything.
func (a *Account) Matches(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	for _, f := range []string{a.ID, a.DisplayName, a.Email} {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// Site is a domain registered under an AdSense account.
type Site struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Domain    string `json:"domain"`
	State     string `json:"state"` // READY, GETTING_READY, REQUIRES_REVIEW, ...
}

// Website is a URL the user registered for tracking.
type Website struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}
