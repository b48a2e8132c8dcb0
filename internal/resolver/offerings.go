package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"

	"golang.org/x/net/html"

	"github.com/coopco/lunchbot/internal/web"
)

var priceRe = regexp.MustCompile(`\$(\d+[,.\d]*)`)

// imageAttrs are tried in order for an image's source.
var imageAttrs = []string{"src", "data-src", "data-lazy-src"}

func imageSrc(img *html.Node) string {
	for _, a := range imageAttrs {
		if v := web.Attr(img, a); v != "" {
			return v
		}
	}
	return ""
}

// ExtractOfferings fetches formURL and extracts one offering per label.
func (r *Resolver) ExtractOfferings(ctx context.Context, formURL string) ([]Offering, error) {
	page, err := r.fetch(ctx, formURL, r.cfg.ScrapeTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch form: %w", err)
	}
	offerings, err := r.ExtractFromDocument(page.Doc)
	if err != nil {
		slog.Warn("resolver: extraction failed", "form", formURL, "error", err)
		return nil, err
	}
	base := page.FinalURL
	if base == "" {
		base = formURL
	}
	for i := range offerings {
		offerings[i].ImageRef = absoluteRef(base, offerings[i].ImageRef)
	}
	slog.Debug("resolver: offerings extracted", "form", formURL, "count", len(offerings))
	return offerings, nil
}

// absoluteRef resolves ref against base. Unparseable input is returned as is.
func absoluteRef(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// ExtractFromDocument extracts offerings from an already parsed form.
// Every label must be found; a partial result is an *ExtractionError.
func (r *Resolver) ExtractFromDocument(doc *html.Node) ([]Offering, error) {
	texts := web.TextNodes(doc)
	images := web.FindAll(doc, func(n *html.Node) bool { return web.IsElement(n, "img") })

	var offerings []Offering
	var missing []string
	for i, label := range r.labels {
		o, ok := r.extractOne(label, texts, images)
		if !ok {
			missing = append(missing, r.cfg.Labels[i])
			continue
		}
		o.Label = r.cfg.Labels[i]
		offerings = append(offerings, o)
	}
	if len(missing) > 0 {
		return nil, &ExtractionError{Missing: missing}
	}
	return offerings, nil
}

func (r *Resolver) extractOne(label matcher, texts, images []*html.Node) (Offering, bool) {
	var heading *html.Node
	for _, t := range texts {
		if t.Parent != nil && label.match(t.Data) {
			heading = t.Parent
			break
		}
	}
	if heading == nil {
		return Offering{}, false
	}

	raw := web.StrippedText(heading)
	o := Offering{RawText: raw}
	if m := priceRe.FindStringSubmatch(raw); m != nil {
		o.Price = m[1]
	}
	o.ImageRef = r.imageFor(label, heading, images)
	return o, true
}

// imageFor looks for the first image whose nearby ancestors mention the
// label, then falls back to the first image in the heading's container.
func (r *Resolver) imageFor(label matcher, heading *html.Node, images []*html.Node) string {
	for _, img := range images {
		src := imageSrc(img)
		if src == "" {
			continue
		}
		for _, p := range web.Ancestors(img, r.cfg.MaxImageDepth) {
			if label.match(web.Text(p)) {
				return src
			}
		}
	}

	container := web.Closest(heading, "li", "div")
	if container == nil {
		return ""
	}
	img := web.FirstDescendant(container, func(n *html.Node) bool { return web.IsElement(n, "img") })
	if img == nil {
		return ""
	}
	return imageSrc(img)
}
