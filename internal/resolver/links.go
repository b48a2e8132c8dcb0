package resolver

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/coopco/lunchbot/internal/web"
)

// LinkQuery is what every link strategy looks for.
type LinkQuery struct {
	phrase matcher
	domain string
}

// NewLinkQuery builds a query for links labelled phrase that point at domain.
func NewLinkQuery(phrase, domain string) LinkQuery {
	return LinkQuery{phrase: newMatcher(phrase), domain: domain}
}

func (q LinkQuery) onDomain(href string) bool {
	return href != "" && strings.Contains(href, q.domain)
}

// LinkStrategy finds a candidate form link in doc, or returns "".
type LinkStrategy struct {
	Name string
	Find func(doc *html.Node, q LinkQuery) string
}

// DefaultStrategies are tried in order; the first hit wins.
var DefaultStrategies = []LinkStrategy{
	{Name: "anchor-text", Find: findAnchorText},
	{Name: "link-container", Find: findLinkContainer},
	{Name: "text-ancestor", Find: findTextAncestor},
}

func isAnchor(n *html.Node) bool {
	return web.IsElement(n, "a") && web.Attr(n, "href") != ""
}

// findAnchorText matches any <a href> whose own text contains the phrase.
func findAnchorText(doc *html.Node, q LinkQuery) string {
	for _, a := range web.FindAll(doc, isAnchor) {
		href := web.Attr(a, "href")
		if q.phrase.match(web.StrippedText(a)) && q.onDomain(href) {
			return href
		}
	}
	return ""
}

// findLinkContainer matches linktr.ee style blocks: a data-testid="Link"
// container holding a text div with the phrase and an <a href>.
func findLinkContainer(doc *html.Node, q LinkQuery) string {
	containers := web.FindAll(doc, func(n *html.Node) bool {
		return web.IsElement(n, "div") && web.Attr(n, "data-testid") == "Link"
	})
	for _, c := range containers {
		label := web.FirstDescendant(c, func(n *html.Node) bool {
			return web.IsElement(n, "div") && q.phrase.match(web.Text(n))
		})
		if label == nil {
			continue
		}
		a := web.FirstDescendant(c, isAnchor)
		if a == nil {
			continue
		}
		if href := web.Attr(a, "href"); q.onDomain(href) {
			return href
		}
	}
	return ""
}

// findTextAncestor matches any text node with the phrase and walks up to
// the nearest enclosing <a href> on the form domain.
func findTextAncestor(doc *html.Node, q LinkQuery) string {
	for _, t := range web.TextNodes(doc) {
		if !q.phrase.match(t.Data) {
			continue
		}
		for _, p := range web.Ancestors(t, 0) {
			if isAnchor(p) && q.onDomain(web.Attr(p, "href")) {
				return web.Attr(p, "href")
			}
		}
	}
	return ""
}
