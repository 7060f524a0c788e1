package report

import (
	"strings"

	"github.com/radiusdt/adreport/internal/models"
)

// Unit is how an upstream money column is expressed.
type Unit int

const (
	UnitMicros   Unit = iota // integer millionths of the currency unit
	UnitCurrency             // decimal currency, e.g. "12.34"
)

// Kind drives comparison and formatting of a column.
type Kind int

const (
	KindText Kind = iota
	KindDate
	KindCount
	KindMoney // normalized to micros
	KindPercent
	KindNumber
)

// Column is a display column.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Kind  Kind   `json:"kind"`
}

// Card is a KPI summary card definition.
type Card struct {
	Title string `json:"title"`
	Key   string `json:"key"`
}

// Layout maps a provider's report columns onto the pipeline's roles. It is
// the only provider-specific input the pipeline takes.
type Layout struct {
	Name string

	DateKey    string
	SiteKey    string
	CountryKey string

	ImpressionsKey string
	ClicksKey      string
	RevenueKey     string
	PageViewsKey   string

	// Derived ratio columns, recomputed per row and for totals.
	CTRKey  string
	ECPMKey string
	CPCKey  string

	MoneyUnit Unit

	// Aliases maps upstream header names (display labels, other casings) to
	// column keys.
	Aliases map[string]string
	Columns []Column
	Cards   []Card
}

// Key resolves an upstream header name to a column key.
func (l *Layout) Key(name string) string {
	if k, ok := l.Aliases[name]; ok {
		return k
	}
	lower := strings.ToLower(strings.TrimSpace(name))
	for alias, k := range l.Aliases {
		if strings.ToLower(alias) == lower {
			return k
		}
	}
	return name
}

// Column returns the column definition for key.
func (l *Layout) Column(key string) (Column, bool) {
	for _, c := range l.Columns {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnKeys returns the display column keys in order.
func (l *Layout) ColumnKeys() []string {
	keys := make([]string, len(l.Columns))
	for i, c := range l.Columns {
		keys[i] = c.Key
	}
	return keys
}

func (l *Layout) isDerived(key string) bool {
	return key != "" && (key == l.CTRKey || key == l.ECPMKey || key == l.CPCKey)
}

func (l *Layout) kindOf(key string) Kind {
	if c, ok := l.Column(key); ok {
		return c.Kind
	}
	if key == l.DateKey {
		return KindDate
	}
	return KindText
}

// AdManagerLayout describes Ad Exchange line item reports. Revenue arrives in
// micros.
var AdManagerLayout = &Layout{
	Name:           "admanager",
	DateKey:        "reportDate",
	SiteKey:        "site",
	CountryKey:     "country",
	ImpressionsKey: "adxExchangeLineItemLevelImpressions",
	ClicksKey:      "adxExchangeLineItemLevelClicks",
	RevenueKey:     "adxExchangeLineItemLevelRevenue",
	CTRKey:         "adxExchangeLineItemLevelCtr",
	ECPMKey:        "adxExchangeLineItemLevelAverageECPM",
	CPCKey:         "adxExchangeCostPerClick",
	MoneyUnit:      UnitMicros,
	Aliases: map[string]string{
		"Date":                    "reportDate",
		"Site":                    "site",
		"Country":                 "country",
		"Ad Exchange Impressions": "adxExchangeLineItemLevelImpressions",
		"Ad Exchange Clicks":      "adxExchangeLineItemLevelClicks",
		"Ad Exchange Revenue ($)": "adxExchangeLineItemLevelRevenue",
		"Ad Exchange eCPM ($)":    "adxExchangeLineItemLevelAverageECPM",
		"Ad Exchange CTR (%)":     "adxExchangeLineItemLevelCtr",
		"Ad Exchange CPC ($)":     "adxExchangeCostPerClick",
	},
	Columns: []Column{
		{Key: "reportDate", Label: "Date", Kind: KindDate},
		{Key: "site", Label: "Site", Kind: KindText},
		{Key: "adxExchangeLineItemLevelImpressions", Label: "Ad Exchange Impressions", Kind: KindCount},
		{Key: "adxExchangeLineItemLevelClicks", Label: "Ad Exchange Clicks", Kind: KindCount},
		{Key: "adxExchangeLineItemLevelRevenue", Label: "Ad Exchange Revenue ($)", Kind: KindMoney},
		{Key: "adxExchangeLineItemLevelAverageECPM", Label: "Ad Exchange eCPM ($)", Kind: KindMoney},
		{Key: "adxExchangeLineItemLevelCtr", Label: "Ad Exchange CTR (%)", Kind: KindPercent},
		{Key: "adxExchangeCostPerClick", Label: "Ad Exchange CPC ($)", Kind: KindMoney},
	},
	Cards: []Card{
		{Title: "Gross Revenue", Key: "adxExchangeLineItemLevelRevenue"},
		{Title: "Total AdX Clicks", Key: "adxExchangeLineItemLevelClicks"},
		{Title: "AdX Impressions", Key: "adxExchangeLineItemLevelImpressions"},
		{Title: "CTR", Key: "adxExchangeLineItemLevelCtr"},
	},
}

// AdSenseLayout describes AdSense reports broken down by DATE, DOMAIN_NAME and
// COUNTRY_NAME with the earnings, clicks, page views and impressions metrics.
// Earnings arrive as decimal currency.
var AdSenseLayout = &Layout{
	Name:           "adsense",
	DateKey:        "DATE",
	SiteKey:        "DOMAIN_NAME",
	CountryKey:     "COUNTRY_NAME",
	ImpressionsKey: "IMPRESSIONS",
	ClicksKey:      "CLICKS",
	RevenueKey:     "ESTIMATED_EARNINGS",
	PageViewsKey:   "PAGE_VIEWS",
	CTRKey:         "IMPRESSIONS_CTR",
	ECPMKey:        "IMPRESSIONS_RPM",
	CPCKey:         "COST_PER_CLICK",
	MoneyUnit:      UnitCurrency,
	Aliases: map[string]string{
		"date":        "DATE",
		"Date":        "DATE",
		"domain":      "DOMAIN_NAME",
		"Site":        "DOMAIN_NAME",
		"country":     "COUNTRY_NAME",
		"Country":     "COUNTRY_NAME",
		"earnings":    "ESTIMATED_EARNINGS",
		"clicks":      "CLICKS",
		"pageViews":   "PAGE_VIEWS",
		"impressions": "IMPRESSIONS",
	},
	Columns: []Column{
		{Key: "DATE", Label: "Date", Kind: KindDate},
		{Key: "DOMAIN_NAME", Label: "Site", Kind: KindText},
		{Key: "COUNTRY_NAME", Label: "Country", Kind: KindText},
		{Key: "ESTIMATED_EARNINGS", Label: "Earnings ($)", Kind: KindMoney},
		{Key: "CLICKS", Label: "Clicks", Kind: KindCount},
		{Key: "PAGE_VIEWS", Label: "Page Views", Kind: KindCount},
		{Key: "IMPRESSIONS", Label: "Impressions", Kind: KindCount},
		{Key: "IMPRESSIONS_CTR", Label: "CTR (%)", Kind: KindPercent},
		{Key: "IMPRESSIONS_RPM", Label: "eCPM ($)", Kind: KindMoney},
		{Key: "COST_PER_CLICK", Label: "CPC ($)", Kind: KindMoney},
	},
	Cards: []Card{
		{Title: "Total Earnings", Key: "ESTIMATED_EARNINGS"},
		{Title: "Total Clicks", Key: "CLICKS"},
		{Title: "Total Page Views", Key: "PAGE_VIEWS"},
		{Title: "Total Impressions", Key: "IMPRESSIONS"},
	},
}

// LayoutFor returns the built-in layout of a provider.
func LayoutFor(p models.Provider) *Layout {
	if p == models.ProviderAdSense {
		return AdSenseLayout
	}
	return AdManagerLayout
}
