package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/coopco/lunchbot/internal/submitter"
)

// dryRunConfig skips the settle pauses and fills a placeholder when no
// contact is configured.
func dryRunConfig(c *submitter.Config) {
	c.Sleep = func(context.Context, time.Duration) error { return nil }
	if c.Contact == "" {
		c.Contact = "<contact>"
	}
}

// planBrowser prints each page action instead of driving a browser. Its
// listbox shows only the requested quantity, so every step succeeds.
type planBrowser struct {
	w        io.Writer
	quantity string
}

func (b *planBrowser) Open(context.Context) (submitter.Page, error) {
	fmt.Fprintln(b.w, "open browser")
	return &planPage{b: b}, nil
}

type planPage struct {
	b    *planBrowser
	step int
}

func (p *planPage) printf(format string, args ...any) {
	p.step++
	fmt.Fprintf(p.b.w, "%2d. "+format+"\n", append([]any{p.step}, args...)...)
}

func (p *planPage) Navigate(_ context.Context, url string) error {
	p.printf("navigate %s", url)
	return nil
}

func (p *planPage) WaitVisible(_ context.Context, selector string) error {
	p.printf("wait for %s", selector)
	return nil
}

func (p *planPage) Fill(_ context.Context, selector string, index int, value string) error {
	p.printf("fill %s[%d] with %q", selector, index, value)
	return nil
}

func (p *planPage) Click(_ context.Context, selector string, index int) error {
	p.printf("click %s[%d]", selector, index)
	return nil
}

func (p *planPage) ClickText(_ context.Context, selector, text string) error {
	p.printf("click %s with text %q", selector, text)
	return nil
}

func (p *planPage) VisibleTexts(_ context.Context, selector string) ([]string, error) {
	p.printf("read visible %s", selector)
	return []string{p.b.quantity}, nil
}

func (p *planPage) ClickVisible(_ context.Context, selector string, index int) error {
	p.printf("click visible %s[%d]", selector, index)
	return nil
}

func (p *planPage) Close() error {
	fmt.Fprintln(p.b.w, "close browser")
	return nil
}
