// File: pkg/extractor/diff.go
package extractor

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/iwa/api/schemas"
)

const (
	maxNewInDiff     = 10
	maxRemovedInDiff = 5
)

// DiffElements describes what appeared, vanished, and changed between two
// consecutive snapshots. An empty previous snapshot yields an empty diff;
// the first step has nothing to compare against. Output order follows
// document order, so the same pair of snapshots always renders the same
// diff.
func DiffElements(prev, curr []schemas.ElementDescriptor) string {
	if len(prev) == 0 {
		return ""
	}

	prevByKey := make(map[string]schemas.ElementDescriptor, len(prev))
	for _, el := range prev {
		prevByKey[diffKey(el)] = el
	}
	currByKey := make(map[string]schemas.ElementDescriptor, len(curr))
	for _, el := range curr {
		currByKey[diffKey(el)] = el
	}

	var lines []string

	var added []schemas.ElementDescriptor
	for _, el := range curr {
		if _, ok := prevByKey[diffKey(el)]; !ok {
			added = append(added, el)
		}
	}
	for i, el := range added {
		if i >= maxNewInDiff {
			lines = append(lines, fmt.Sprintf("  + ... and %d more new elements", len(added)-maxNewInDiff))
			break
		}
		lines = append(lines, fmt.Sprintf("  + NEW [%s] %s", el.ShortID, briefDesc(el, true)))
	}

	var removed []schemas.ElementDescriptor
	for _, el := range prev {
		if _, ok := currByKey[diffKey(el)]; !ok {
			removed = append(removed, el)
		}
	}
	for i, el := range removed {
		if i >= maxRemovedInDiff {
			lines = append(lines, fmt.Sprintf("  - ... and %d more removed", len(removed)-maxRemovedInDiff))
			break
		}
		lines = append(lines, fmt.Sprintf("  - REMOVED [%s] %s", el.ShortID, briefDesc(el, false)))
	}

	for _, el := range curr {
		prevEl, ok := prevByKey[diffKey(el)]
		if !ok {
			continue
		}
		var changes []string
		if prevEl.Value != el.Value {
			changes = append(changes, fmt.Sprintf(`value: "%s" -> "%s"`,
				truncRunes(prevEl.Value, 20), truncRunes(el.Value, 20)))
		}
		// Anchor text churns with URLs and counters; reporting it would
		// drown the signal.
		if prevEl.Text != el.Text && el.Tag != "a" {
			changes = append(changes, fmt.Sprintf(`text: "%s" -> "%s"`,
				truncRunes(prevEl.Text, 20), truncRunes(el.Text, 20)))
		}
		if prevEl.IsHidden != el.IsHidden {
			state := "visible"
			if el.IsHidden {
				state = "hidden"
			}
			changes = append(changes, "visibility: "+state)
		}
		if len(changes) == 0 {
			continue
		}
		desc := el.Tag
		if el.Name != "" {
			desc += fmt.Sprintf(` name="%s"`, el.Name)
		}
		lines = append(lines, fmt.Sprintf("  ~ CHANGED [%s] %s: %s", el.ShortID, desc, strings.Join(changes, "; ")))
	}

	if len(lines) == 0 {
		return ""
	}
	return "## Page Changes Since Last Step\n" + strings.Join(lines, "\n")
}

// diffKey is a stable identity across steps. Short ids shift whenever the
// page reflows, so identity comes from the selector plus differentiators
// that survive reordering.
func diffKey(el schemas.ElementDescriptor) string {
	extra := el.Name
	if extra == "" {
		extra = el.ID
	}
	if extra == "" {
		extra = el.Placeholder
	}
	if extra == "" {
		extra = truncRunes(el.Text, 20)
	}
	return el.Tag + "|" + el.CSSSelector + "|" + extra
}

func briefDesc(el schemas.ElementDescriptor, withPlaceholder bool) string {
	desc := el.Tag
	switch {
	case el.Text != "":
		desc += fmt.Sprintf(` "%s"`, truncRunes(el.Text, 30))
	case withPlaceholder && el.Placeholder != "":
		desc += fmt.Sprintf(` placeholder="%s"`, el.Placeholder)
	case el.Name != "":
		desc += fmt.Sprintf(` name="%s"`, el.Name)
	}
	return desc
}
