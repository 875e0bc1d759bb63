// File: pkg/extractor/locator.go
package extractor

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	attrSelectorPattern  = regexp.MustCompile(`^(\w+)?\[(\w[\w-]*)=["']([^"']+)["']\]$`)
	classSelectorPattern = regexp.MustCompile(`^(\w+)\.(.+)$`)
	bareTagPattern       = regexp.MustCompile(`^\w+$`)
)

// CSSToXPath approximates simple CSS selectors as XPath. Locators that are
// already XPath pass through untouched; selectors too complex to
// approximate come back unchanged so callers can tell nothing was done.
func CSSToXPath(css string) string {
	css = strings.TrimSpace(css)
	if css == "" {
		return ""
	}
	if strings.HasPrefix(css, "/") {
		return css
	}
	if strings.HasPrefix(css, "#") {
		return fmt.Sprintf("//*[@id='%s']", css[1:])
	}
	if m := attrSelectorPattern.FindStringSubmatch(css); m != nil {
		tag := m[1]
		if tag == "" {
			tag = "*"
		}
		return fmt.Sprintf("//%s[@%s='%s']", tag, m[2], m[3])
	}
	if m := classSelectorPattern.FindStringSubmatch(css); m != nil {
		return fmt.Sprintf("//%s[contains(@class, '%s')]", m[1], strings.ReplaceAll(m[2], ".", " "))
	}
	if bareTagPattern.MatchString(css) {
		return "//" + css
	}
	return css
}
