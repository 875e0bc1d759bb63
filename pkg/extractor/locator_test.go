// File: pkg/extractor/locator_test.go
package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCSSToXPath(t *testing.T) {
	tests := []struct {
		name     string
		css      string
		expected string
	}{
		{"empty", "", ""},
		{"whitespace", "   ", ""},
		{"xpath passthrough", "//button[@id='buy']", "//button[@id='buy']"},
		{"rooted xpath passthrough", "/html/body/div[2]", "/html/body/div[2]"},
		{"id selector", "#cart-count", "//*[@id='cart-count']"},
		{"attribute with tag", `input[name="email"]`, "//input[@name='email']"},
		{"attribute single quotes", `input[name='email']`, "//input[@name='email']"},
		{"attribute without tag", `[data-test="submit"]`, "//*[@data-test='submit']"},
		{"single class", "button.primary", "//button[contains(@class, 'primary')]"},
		{"chained classes", "div.fake-btn.primary", "//div[contains(@class, 'fake-btn primary')]"},
		{"bare tag", "textarea", "//textarea"},
		{"too complex returned unchanged", "div > span.item", "div > span.item"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, CSSToXPath(tc.css))
		})
	}
}
