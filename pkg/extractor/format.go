// File: pkg/extractor/format.go
package extractor

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/iwa/api/schemas"
)

const maxRenderedOptions = 8

// CompactLine renders one element as a single prompt line. Attribute values
// are truncated individually so one verbose element cannot dominate the
// model's view of the page.
func CompactLine(el schemas.ElementDescriptor) string {
	parts := []string{fmt.Sprintf("[%s] %s", el.ShortID, el.Tag)}
	if el.Type != "" {
		parts = append(parts, fmt.Sprintf(`type="%s"`, el.Type))
	}
	if el.Name != "" {
		parts = append(parts, fmt.Sprintf(`name="%s"`, el.Name))
	}
	if el.Role != "" {
		parts = append(parts, fmt.Sprintf(`role="%s"`, el.Role))
	}
	if el.Placeholder != "" {
		parts = append(parts, fmt.Sprintf(`placeholder="%s"`, el.Placeholder))
	}
	if el.Value != "" {
		parts = append(parts, fmt.Sprintf(`value="%s"`, truncRunes(el.Value, 40)))
	}
	if el.Href != "" {
		parts = append(parts, fmt.Sprintf(`href="%s"`, truncRunes(el.Href, 60)))
	}
	if el.AriaLabel != "" {
		parts = append(parts, fmt.Sprintf(`aria="%s"`, truncRunes(el.AriaLabel, 40)))
	}
	if el.Text != "" {
		parts = append(parts, fmt.Sprintf(`text="%s"`, truncRunes(el.Text, 50)))
	}
	if len(el.Options) > 0 {
		opts := el.Options
		if len(opts) > maxRenderedOptions {
			opts = opts[:maxRenderedOptions]
		}
		parts = append(parts, fmt.Sprintf(`options=["%s"]`, strings.Join(opts, `", "`)))
	}
	if el.IsRequired {
		parts = append(parts, "[required]")
	}
	if el.IsHidden {
		parts = append(parts, "[hidden]")
	}
	parts = append(parts, fmt.Sprintf(`xpath="%s"`, el.XPath))
	return strings.Join(parts, " ")
}

// FormatElements renders the full element list, visible first, hidden in a
// counted trailer so the model knows they exist without being tempted by
// them.
func FormatElements(elements []schemas.ElementDescriptor) string {
	if len(elements) == 0 {
		return "No interactive elements found on the page."
	}
	var visible, hidden []schemas.ElementDescriptor
	for _, el := range elements {
		if el.IsHidden {
			hidden = append(hidden, el)
		} else {
			visible = append(visible, el)
		}
	}
	lines := []string{"Interactive elements:"}
	for _, el := range visible {
		lines = append(lines, "  "+CompactLine(el))
	}
	if len(hidden) > 0 {
		lines = append(lines, fmt.Sprintf("\nHidden elements (%d):", len(hidden)))
		for _, el := range hidden {
			lines = append(lines, "  "+CompactLine(el))
		}
	}
	return strings.Join(lines, "\n")
}
