package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/coopco/lunchbot/internal/submitter"
)

func TestPickScriptQuotesSelector(t *testing.T) {
	s := pickScript(`div[role="option"]`, 3, true, `it's "x"`)
	if !strings.Contains(s, `"div[role=\"option\"]"`) {
		t.Errorf("selector not quoted as JS string:\n%s", s)
	}
	if !strings.Contains(s, `"it's \"x\""`) {
		t.Errorf("text not quoted as JS string:\n%s", s)
	}
	if !strings.Contains(s, "els[3]") {
		t.Errorf("index missing:\n%s", s)
	}
	if !strings.Contains(s, "if (true) els = els.filter(visible)") {
		t.Errorf("visible filter missing:\n%s", s)
	}
}

func findChrome(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("chrome not installed")
	return ""
}

const fakeForm = `<html><body>
<input type="text" id="contact">
<div role="listbox" onclick="document.getElementById('opts').style.display='block'">Menu 1</div>
<div id="opts" style="display:none">
  <div role="option" onclick="document.title='picked '+this.innerText">Choose</div>
  <div role="option" onclick="document.title='picked '+this.innerText">1</div>
  <div role="option" onclick="document.title='picked '+this.innerText">2</div>
</div>
<div role="option" style="display:none">hidden</div>
<div role="button" onclick="document.body.dataset.sent='yes'"><span>Enviar</span></div>
</body></html>`

func TestChromeAgainstFakeForm(t *testing.T) {
	exe := findChrome(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fakeForm)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var b submitter.Browser = New(Config{Headless: true, ExecPath: exe})
	p, err := b.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	if err := p.Navigate(ctx, srv.URL); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if err := p.WaitVisible(ctx, `input[type="text"]`); err != nil {
		t.Fatalf("WaitVisible: %v", err)
	}
	if err := p.Fill(ctx, `input[type="text"]`, 0, "300"); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if err := p.Click(ctx, `div[role="listbox"]`, 0); err != nil {
		t.Fatalf("Click: %v", err)
	}
	texts, err := p.VisibleTexts(ctx, `div[role="option"]`)
	if err != nil {
		t.Fatalf("VisibleTexts: %v", err)
	}
	if want := []string{"Choose", "1", "2"}; !reflect.DeepEqual(texts, want) {
		t.Fatalf("VisibleTexts = %v, want %v", texts, want)
	}
	if err := p.ClickVisible(ctx, `div[role="option"]`, 1); err != nil {
		t.Fatalf("ClickVisible: %v", err)
	}
	if err := p.ClickText(ctx, `div[role="button"]`, "enviar"); err != nil {
		t.Fatalf("ClickText: %v", err)
	}
	if err := p.Click(ctx, `div[role="listbox"]`, 5); err == nil {
		t.Error("expected error for missing element")
	}
}
