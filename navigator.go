package pagecap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/chromedp/chromedp"
)

// Selectors locate the host reader's pagination controls. The defaults
// match the pdf.js viewer.
type Selectors struct {
	// PageNumber is the current-page indicator: an input's value or an
	// element's text.
	PageNumber string

	// PageCount shows the total page count, e.g. "of 120".
	PageCount string

	// Next is the next-page control. A disabled control marks the last
	// page.
	Next string
}

// DefaultSelectors returns the pdf.js viewer selectors.
func DefaultSelectors() Selectors {
	return Selectors{
		PageNumber: "#pageNumber",
		PageCount:  "#numPages",
		Next:       "#next",
	}
}

func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	if s.PageNumber == "" {
		s.PageNumber = d.PageNumber
	}
	if s.PageCount == "" {
		s.PageCount = d.PageCount
	}
	if s.Next == "" {
		s.Next = d.Next
	}
	return s
}

var firstInt = regexp.MustCompile(`\d+`)

// parsePageCount extracts the first integer from an indicator's text, as in
// "12", "Page 12" or "of 120".
func parsePageCount(text string) (int, bool) {
	m := firstInt.FindString(text)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// chromeNavigator drives the top-level document of a tab via chromedp.
type chromeNavigator struct {
	tabCtx context.Context
	sel    Selectors
}

func newChromeNavigator(tabCtx context.Context, sel Selectors) *chromeNavigator {
	return &chromeNavigator{tabCtx: tabCtx, sel: sel.withDefaults()}
}

// run executes actions on the tab, bounded by ctx.
func (n *chromeNavigator) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(n.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (n *chromeNavigator) indicator(ctx context.Context, selector string) (int, error) {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return "";
		return ("value" in el && el.value !== "") ? String(el.value) : el.textContent;
	})()`, jsString(selector))

	var text string
	if err := n.run(ctx, chromedp.Evaluate(js, &text)); err != nil {
		return 0, fmt.Errorf("pagecap: reading %s: %w", selector, err)
	}
	v, ok := parsePageCount(text)
	if !ok {
		return 0, fmt.Errorf("pagecap: no number in %s (%q)", selector, text)
	}
	return v, nil
}

func (n *chromeNavigator) CurrentPage(ctx context.Context) (int, error) {
	return n.indicator(ctx, n.sel.PageNumber)
}

func (n *chromeNavigator) TotalPages(ctx context.Context) (int, bool) {
	v, err := n.indicator(ctx, n.sel.PageCount)
	return v, err == nil
}

const (
	nextClicked  = "clicked"
	nextDisabled = "disabled"
	nextMissing  = "missing"
)

func (n *chromeNavigator) Next(ctx context.Context) error {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return %q;
		if (el.disabled || el.getAttribute("aria-disabled") === "true" || el.classList.contains("disabled")) return %q;
		el.click();
		return %q;
	})()`, jsString(n.sel.Next), nextMissing, nextDisabled, nextClicked)

	var res string
	if err := n.run(ctx, chromedp.Evaluate(js, &res)); err != nil {
		return fmt.Errorf("pagecap: next page: %w", err)
	}
	switch res {
	case nextClicked:
		return nil
	case nextDisabled:
		return ErrEndOfDocument
	case nextMissing:
		return ErrNoNavigation
	}
	return errors.New("pagecap: next page: unexpected result " + res)
}

func (n *chromeNavigator) Title(ctx context.Context) string {
	var title string
	if err := n.run(ctx, chromedp.Title(&title)); err != nil {
		return ""
	}
	return title
}
