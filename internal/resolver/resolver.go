// Package resolver probes whether the daily order form is open and extracts
// the offerings it lists.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/coopco/lunchbot/internal/web"
)

const (
	DefaultEntryURL      = "https://linktr.ee/cocina.siete"
	DefaultLinkPhrase    = "Almuerzos del día"
	DefaultFormDomain    = "docs.google.com/forms"
	DefaultClosedPath    = "/closedform"
	DefaultMaxImageDepth = 5
)

// DefaultSoldOutPhrases are checked in order; the first hit is reported.
var DefaultSoldOutPhrases = []string{"agotados", "se han agotado", "no hay", "sin disponibilidad", "sold out"}

// DefaultLabels are the offering headings on the order form.
var DefaultLabels = []string{"MENÚ 1", "MENÚ 2"}

// Fetcher retrieves and parses a page. *web.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*web.Page, error)
}

// AvailabilityResult is the outcome of an availability probe. Detail is
// always set when IsOpen is false.
type AvailabilityResult struct {
	IsOpen  bool
	FormURL string
	Detail  string
}

// Offering is one orderable item from the form.
type Offering struct {
	Label    string
	RawText  string
	Price    string
	ImageRef string
}

// ExtractionError names the offering labels that could not be found.
type ExtractionError struct {
	Missing []string
}

func (e *ExtractionError) Error() string {
	return "could not find: " + strings.Join(e.Missing, ", ")
}

// Config holds resolver settings. Zero fields take defaults.
type Config struct {
	LinkPhrase     string
	FormDomain     string
	ClosedPath     string
	SoldOutPhrases []string
	Labels         []string
	MaxImageDepth  int
	CheckTimeout   time.Duration
	ScrapeTimeout  time.Duration
	Strategies     []LinkStrategy
}

type Resolver struct {
	fetcher Fetcher
	cfg     Config
	query   LinkQuery
	labels  []matcher
}

func New(fetcher Fetcher, cfg Config) *Resolver {
	if cfg.LinkPhrase == "" {
		cfg.LinkPhrase = DefaultLinkPhrase
	}
	if cfg.FormDomain == "" {
		cfg.FormDomain = DefaultFormDomain
	}
	if cfg.ClosedPath == "" {
		cfg.ClosedPath = DefaultClosedPath
	}
	if len(cfg.SoldOutPhrases) == 0 {
		cfg.SoldOutPhrases = DefaultSoldOutPhrases
	}
	if len(cfg.Labels) == 0 {
		cfg.Labels = DefaultLabels
	}
	if cfg.MaxImageDepth <= 0 {
		cfg.MaxImageDepth = DefaultMaxImageDepth
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 10 * time.Second
	}
	if cfg.ScrapeTimeout <= 0 {
		cfg.ScrapeTimeout = 15 * time.Second
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies
	}
	labels := make([]matcher, len(cfg.Labels))
	for i, l := range cfg.Labels {
		labels[i] = newMatcher(l)
	}
	return &Resolver{
		fetcher: fetcher,
		cfg:     cfg,
		query:   NewLinkQuery(cfg.LinkPhrase, cfg.FormDomain),
		labels:  labels,
	}
}

// Labels returns the offering labels in order.
func (r *Resolver) Labels() []string {
	out := make([]string, len(r.cfg.Labels))
	copy(out, r.cfg.Labels)
	return out
}

func (r *Resolver) fetch(ctx context.Context, url string, timeout time.Duration) (*web.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.fetcher.Fetch(ctx, url)
}

// FindLink runs the strategy chain over doc and returns the first candidate
// together with the name of the strategy that found it.
func (r *Resolver) FindLink(doc *html.Node) (href, strategy string) {
	for _, s := range r.cfg.Strategies {
		if href := s.Find(doc, r.query); href != "" {
			return href, s.Name
		}
	}
	return "", ""
}

// CheckAvailability reports whether the form linked from entryURL is open.
// A failure to fetch the form itself is treated as open.
func (r *Resolver) CheckAvailability(ctx context.Context, entryURL string) AvailabilityResult {
	slog.Debug("resolver: checking availability", "entry", entryURL)

	entry, err := r.fetch(ctx, entryURL, r.cfg.CheckTimeout)
	if err != nil {
		slog.Warn("resolver: entry fetch failed", "entry", entryURL, "error", err)
		return AvailabilityResult{Detail: fmt.Sprintf("network error: %v", err)}
	}

	link, strategy := r.FindLink(entry.Doc)
	if link == "" {
		slog.Info("resolver: no form link found", "entry", entryURL, "phrase", r.cfg.LinkPhrase)
		return AvailabilityResult{Detail: "daily menu link not found on the page"}
	}
	slog.Debug("resolver: form link found", "link", link, "strategy", strategy)

	form, err := r.fetch(ctx, link, r.cfg.CheckTimeout)
	if err != nil {
		slog.Warn("resolver: form fetch failed, assuming open", "link", link, "error", err)
		return AvailabilityResult{
			IsOpen:  true,
			FormURL: link,
			Detail:  fmt.Sprintf("could not verify form status: %v", err),
		}
	}

	if strings.Contains(form.FinalURL, r.cfg.ClosedPath) {
		slog.Info("resolver: form redirected to closed form", "link", link, "final", form.FinalURL)
		return AvailabilityResult{FormURL: link, Detail: "form redirected to closed form (sold out)"}
	}

	if phrase := r.soldOutPhrase(form.Text()); phrase != "" {
		slog.Info("resolver: sold out phrase found", "link", link, "phrase", phrase)
		return AvailabilityResult{FormURL: link, Detail: fmt.Sprintf("form shows sold out content: '%s' found", phrase)}
	}

	return AvailabilityResult{IsOpen: true, FormURL: link}
}

func (r *Resolver) soldOutPhrase(text string) string {
	lower := strings.ToLower(text)
	for _, p := range r.cfg.SoldOutPhrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			return p
		}
	}
	return ""
}
