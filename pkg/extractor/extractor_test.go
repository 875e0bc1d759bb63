// File: pkg/extractor/extractor_test.go
package extractor

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Checkout - ACME</title><script>var secret = 1;</script></head>
<body>
  <nav class="top-nav"><a href="/home">Home</a></nav>
  <h1>Your Cart</h1>
  <p>Review your order below.</p>
  <form id="checkout">
    <input type="email" name="email" placeholder="Email address" required>
    <input type="hidden" name="csrf" value="tok123">
    <select name="qty" aria-label="Quantity">
      <option value="1">One</option>
      <option value="2">Two</option>
      <option value="3"></option>
    </select>
    <textarea name="notes"></textarea>
    <button id="buy" type="submit">Buy now</button>
  </form>
  <div role="button" class="fake-btn primary">Apply coupon</div>
  <span onclick="openChat()">Chat with us</span>
  <div style="display: none"><a href="/hidden">Secret link</a></div>
</body>
</html>`

func newTestExtractor(maxElements, maxChars int) *Extractor {
	return New(maxElements, maxChars, zap.NewNop())
}

func TestExtractSamplePage(t *testing.T) {
	view := newTestExtractor(0, 0).Extract(samplePage, ModeAllFields, nil)
	require.Len(t, view.Elements, 10)

	for i, el := range view.Elements {
		assert.Equal(t, fmt.Sprintf("e%d", i+1), el.ShortID, "short ids follow document order")
		assert.True(t, el.IsInteractive)
	}

	email := view.Elements[2]
	assert.Equal(t, "input", email.Tag)
	assert.Equal(t, "email", email.Type)
	assert.Equal(t, "email", email.Name)
	assert.Equal(t, "Email address", email.Placeholder)
	assert.True(t, email.IsRequired)
	assert.Equal(t, `input[name="email"]`, email.CSSSelector)
	assert.Equal(t, "//input[@name='email']", email.XPath)
	assert.True(t, email.Editable())

	csrf := view.Elements[3]
	assert.Equal(t, "csrf", csrf.Name)
	assert.True(t, csrf.IsHidden, "type=hidden inputs are hidden")
	assert.False(t, csrf.Editable())

	qty := view.Elements[4]
	assert.Equal(t, "select", qty.Tag)
	assert.Equal(t, []string{"One", "Two", "3"}, qty.Options, "option text first, value fallback")
	assert.True(t, qty.Selectable())
	assert.Equal(t, "//select[@name='qty']", qty.XPath)

	buy := view.Elements[6]
	assert.Equal(t, "#buy", buy.CSSSelector)
	assert.Equal(t, "//button[@id='buy']", buy.XPath)
	assert.Equal(t, "Buy now", buy.Text)

	coupon := view.Elements[7]
	assert.Equal(t, "div", coupon.Tag)
	assert.Equal(t, "button", coupon.Role)
	assert.Equal(t, "div.fake-btn.primary", coupon.CSSSelector)
	assert.Equal(t, "//div[contains(text(), 'Apply coupon')]", coupon.XPath)

	chat := view.Elements[8]
	assert.Equal(t, "span", chat.Tag, "onclick handler makes the span interactive")

	secret := view.Elements[9]
	assert.Equal(t, "a", secret.Tag)
	assert.True(t, secret.IsHidden, "display:none on the parent hides the child")
}

func TestExtractContentSummary(t *testing.T) {
	view := newTestExtractor(0, 0).Extract(samplePage, ModeAllFields, nil)

	assert.True(t, strings.HasPrefix(view.ContentSummary, "Page Title: Checkout - ACME"))
	assert.Contains(t, view.ContentSummary, "Your Cart")
	assert.Contains(t, view.ContentSummary, "Review your order below.")
	assert.NotContains(t, view.ContentSummary, "var secret", "script bodies never reach the summary")
	assert.NotContains(t, view.ContentSummary, "Home", "nav boilerplate is stripped")
}

func TestExtractSummaryTruncation(t *testing.T) {
	long := "<html><body><p>" + strings.Repeat("lorem ipsum ", 500) + "</p></body></html>"
	view := newTestExtractor(0, 100).Extract(long, ModeAllFields, nil)
	assert.LessOrEqual(t, len([]rune(view.ContentSummary)), 100)
	assert.True(t, strings.HasSuffix(view.ContentSummary, "…"))
}

func TestExtractModes(t *testing.T) {
	tests := []struct {
		name     string
		mode     Mode
		expected int
	}{
		// All ten candidates.
		{"all_fields", ModeAllFields, 10},
		// Inputs, select, textarea, button, plus the role/onclick elements.
		{"input_fields", ModeInputFields, 7},
		// Two anchors, the button, plus the role/onclick elements.
		{"links_only", ModeLinksOnly, 5},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			view := newTestExtractor(0, 0).Extract(samplePage, tc.mode, nil)
			assert.Len(t, view.Elements, tc.expected)
		})
	}
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeInputFields, ParseMode("input_fields"))
	assert.Equal(t, ModeLinksOnly, ParseMode("links_only"))
	assert.Equal(t, ModeAllFields, ParseMode("all_fields"))
	assert.Equal(t, ModeAllFields, ParseMode("bogus"))
	assert.Equal(t, ModeAllFields, ParseMode(""))
}

func buttonFarm(n int) string {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, `<button id="b%d">Button %d</button>`, i, i)
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

func TestExtractElementCap(t *testing.T) {
	view := newTestExtractor(4, 0).Extract(buttonFarm(10), ModeAllFields, nil)
	require.Len(t, view.Elements, 4)
	for i, el := range view.Elements {
		assert.Equal(t, fmt.Sprintf("e%d", i+1), el.ShortID)
		assert.Equal(t, fmt.Sprintf("b%d", i+1), el.ID, "truncation keeps document order")
	}
}

func TestExtractForcedInclusion(t *testing.T) {
	tests := []struct {
		name    string
		matcher string
	}{
		{"xpath locator", "//button[@id='b9']"},
		{"id selector", "#b9"},
		{"attribute selector", `button[id="b9"]`},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			view := newTestExtractor(4, 0).Extract(buttonFarm(10), ModeAllFields, []string{tc.matcher})
			require.Len(t, view.Elements, 4, "forced elements displace, never exceed the cap")

			ids := make([]string, len(view.Elements))
			for i, el := range view.Elements {
				ids[i] = el.ID
				assert.Equal(t, fmt.Sprintf("e%d", i+1), el.ShortID)
			}
			assert.Equal(t, []string{"b1", "b2", "b3", "b9"}, ids, "document order with the forced tail")
		})
	}
}

func TestExtractForcedInclusionSurvivesModeFilter(t *testing.T) {
	page := `<html><body><input name="q"><a id="next" href="/next">Next page</a></body></html>`
	view := newTestExtractor(0, 0).Extract(page, ModeInputFields, []string{"#next"})
	require.Len(t, view.Elements, 2)
	assert.Equal(t, "a", view.Elements[1].Tag)
}

func TestExtractInvalidMatcherIgnored(t *testing.T) {
	view := newTestExtractor(4, 0).Extract(buttonFarm(10), ModeAllFields, []string{"//button[@id='b9'", "   "})
	assert.Len(t, view.Elements, 4, "broken locators never block extraction")
}

func TestVisibilityDetection(t *testing.T) {
	tests := []struct {
		name   string
		html   string
		hidden bool
	}{
		{"plain button", `<button id="x">Go</button>`, false},
		{"display none", `<button id="x" style="display: none">Go</button>`, true},
		{"visibility hidden", `<button id="x" style="visibility:hidden">Go</button>`, true},
		{"opacity zero", `<button id="x" style="opacity: 0">Go</button>`, true},
		{"pointer events none", `<button id="x" style="pointer-events: none">Go</button>`, true},
		{"hidden attribute", `<button id="x" hidden>Go</button>`, true},
		{"aria hidden", `<button id="x" aria-hidden="true">Go</button>`, true},
		{"hidden input", `<input id="x" type="hidden">`, true},
		{"ancestor three levels up", `<div style="display:none"><div><div><button id="x">Go</button></div></div></div>`, true},
		{"visible nested", `<div><div><div><button id="x">Go</button></div></div></div>`, false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			view := newTestExtractor(0, 0).Extract("<html><body>"+tc.html+"</body></html>", ModeAllFields, nil)
			require.Len(t, view.Elements, 1)
			assert.Equal(t, tc.hidden, view.Elements[0].IsHidden)
		})
	}
}

func TestExtractDeduplicatesBySelector(t *testing.T) {
	page := `<html><body>
		<a class="nav-link" href="/a">First</a>
		<a class="nav-link" href="/b">Second</a>
		<a href="/c">Third</a>
		<a href="/d">Fourth</a>
	</body></html>`
	view := newTestExtractor(0, 0).Extract(page, ModeAllFields, nil)
	require.Len(t, view.Elements, 3, "same class selector collapses, bare tags do not")
	assert.Equal(t, "First", view.Elements[0].Text)
	assert.Equal(t, "Third", view.Elements[1].Text)
	assert.Equal(t, "Fourth", view.Elements[2].Text)
}

func TestExtractDegradedInput(t *testing.T) {
	t.Run("empty snapshot", func(t *testing.T) {
		view := newTestExtractor(0, 0).Extract("   ", ModeAllFields, nil)
		assert.Empty(t, view.Elements)
		assert.Empty(t, view.ContentSummary)
	})

	t.Run("plain text", func(t *testing.T) {
		view := newTestExtractor(0, 0).Extract("not markup at all", ModeAllFields, nil)
		assert.Empty(t, view.Elements)
		assert.Contains(t, view.ContentSummary, "not markup at all")
	})
}

func TestBuildXPathPriorities(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{"id wins", `<button id="buy" name="n" class="c">Buy</button>`, "//button[@id='buy']"},
		{"name next", `<input name="q" class="c">`, "//input[@name='q']"},
		{"aria label next", `<button aria-label="Close dialog" class="c">x</button>`, "//button[@aria-label='Close dialog']"},
		{"short text", `<button class="c">Add to cart</button>`, "//button[contains(text(), 'Add to cart')]"},
		{"quoted text falls to class", `<button class="c">Don't click</button>`, "//button[contains(@class, 'c')]"},
		{"long text falls to class", `<button class="c">` + strings.Repeat("x ", 40) + `</button>`, "//button[contains(@class, 'c')]"},
		{"bare tag", `<textarea></textarea>`, "//textarea"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			view := newTestExtractor(0, 0).Extract("<html><body>"+tc.html+"</body></html>", ModeAllFields, nil)
			require.Len(t, view.Elements, 1)
			assert.Equal(t, tc.expected, view.Elements[0].XPath)
		})
	}
}

func TestTruncRunes(t *testing.T) {
	assert.Equal(t, "short", truncRunes("short", 10))
	assert.Equal(t, "exact", truncRunes("exact", 5))
	assert.Equal(t, "long…", truncRunes("longer", 5))
	assert.Equal(t, "héll…", truncRunes("héllo wörld", 5), "truncation counts runes, not bytes")
	assert.Equal(t, "", truncRunes("   ", 5))
}
