package web

import (
	"strings"

	"golang.org/x/net/html"
)

// hidden elements never contribute text.
var hidden = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}

// IsElement reports whether n is an element with one of the given tag names.
// With no names it matches any element.
func IsElement(n *html.Node, tags ...string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if n.Data == t {
			return true
		}
	}
	return false
}

// Attr returns the value of attribute key, or "".
func Attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// Text returns the concatenated visible text below n.
func Text(n *html.Node) string {
	var b strings.Builder
	walkText(n, func(s string) { b.WriteString(s) })
	return b.String()
}

// StrippedText joins the trimmed text fragments below n with no separator.
func StrippedText(n *html.Node) string {
	var b strings.Builder
	walkText(n, func(s string) { b.WriteString(strings.TrimSpace(s)) })
	return b.String()
}

func walkText(n *html.Node, emit func(string)) {
	if n == nil {
		return
	}
	if n.Type == html.TextNode {
		emit(n.Data)
		return
	}
	if n.Type == html.ElementNode && hidden[n.Data] {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, emit)
	}
}

// FindAll returns the nodes below root, in document order, for which match is true.
func FindAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

// FirstDescendant returns the first node strictly below root that matches.
func FirstDescendant(root *html.Node, match func(*html.Node) bool) *html.Node {
	if root == nil {
		return nil
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			return c
		}
		if n := FirstDescendant(c, match); n != nil {
			return n
		}
	}
	return nil
}

// TextNodes returns the visible text nodes below root.
func TextNodes(root *html.Node) []*html.Node {
	return FindAll(root, func(n *html.Node) bool {
		if n.Type != html.TextNode {
			return false
		}
		return n.Parent == nil || !hidden[n.Parent.Data]
	})
}

// Ancestors returns n's ancestors, nearest first, stopping after max levels.
// max <= 0 walks to the root.
func Ancestors(n *html.Node, max int) []*html.Node {
	var out []*html.Node
	for p := n.Parent; p != nil; p = p.Parent {
		if max > 0 && len(out) == max {
			break
		}
		out = append(out, p)
	}
	return out
}

// Closest returns the nearest ancestor of n with one of the given tags.
func Closest(n *html.Node, tags ...string) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if IsElement(p, tags...) {
			return p
		}
	}
	return nil
}
