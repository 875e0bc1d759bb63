// File: pkg/criteria/criteria.go

// Package criteria turns a task's evaluator tests into success criteria
// the rest of the pipeline can act on: prompt priming, force-included
// extraction, and the early-completion check.
package criteria

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"

	"github.com/xkilldash9x/iwa/api/schemas"
	"github.com/xkilldash9x/iwa/pkg/extractor"
)

// TaskType labels what kind of interaction the instruction describes. It
// only steers prompt wording, never control flow.
type TaskType string

const (
	TypeLogin      TaskType = "login"
	TypeFormFill   TaskType = "form_fill"
	TypeSearch     TaskType = "search"
	TypeCart       TaskType = "cart"
	TypeNavigation TaskType = "navigation"
	TypeMultiStep  TaskType = "multi_step"
)

// SuccessCriteria is the normalized view of a task's tests. Analyze is a
// pure function of the instruction and tests, so recomputing per step is
// safe and always yields the same result.
type SuccessCriteria struct {
	TaskType                TaskType
	Instruction             string
	TargetURLPatterns       []string
	RequiredTexts           []string
	RequiredElementMatchers []string
	CompletionHints         []string
}

// HasCriteria reports whether the tests yielded anything checkable.
func (c SuccessCriteria) HasCriteria() bool {
	return len(c.TargetURLPatterns) > 0 || len(c.RequiredTexts) > 0 || len(c.RequiredElementMatchers) > 0
}

// Analyze extracts success criteria from the task. Unknown test shapes
// contribute nothing; they never fail the pipeline.
func Analyze(task schemas.Task) SuccessCriteria {
	instruction := task.Goal()
	c := SuccessCriteria{
		TaskType:    inferTaskType(instruction),
		Instruction: instruction,
	}

	for _, test := range task.Tests {
		extractFromTest(test, &c)
	}

	if len(c.CompletionHints) == 0 {
		c.CompletionHints = append(c.CompletionHints, "Complete the task: "+instruction)
	}

	c.TargetURLPatterns = dedupe(c.TargetURLPatterns)
	c.RequiredTexts = dedupe(c.RequiredTexts)
	c.RequiredElementMatchers = dedupe(c.RequiredElementMatchers)
	c.CompletionHints = dedupe(c.CompletionHints)
	return c
}

// extractFromTest pulls criteria out of one test object. Tests usually
// carry a type field naming what the evaluator checks; tests without one
// are scanned by key name as a last resort.
func extractFromTest(test map[string]interface{}, c *SuccessCriteria) {
	if test == nil {
		return
	}
	testType := strings.ToLower(stringField(test, "type", "test_type"))
	matched := false

	if strings.Contains(testType, "url") {
		if url := stringField(test, "url", "expected_url", "value"); url != "" {
			c.TargetURLPatterns = append(c.TargetURLPatterns, url)
			c.CompletionHints = append(c.CompletionHints, "Navigate to URL matching: "+url)
			matched = true
		}
	}
	if strings.Contains(testType, "text") || strings.Contains(testType, "content") {
		if text := stringField(test, "text", "expected_text", "value"); text != "" {
			c.RequiredTexts = append(c.RequiredTexts, text)
			c.CompletionHints = append(c.CompletionHints, "Page should contain text: "+text)
			matched = true
		}
	}
	if strings.Contains(testType, "element") || strings.Contains(testType, "selector") {
		if sel := stringField(test, "selector", "css_selector", "xpath", "value"); sel != "" {
			c.RequiredElementMatchers = append(c.RequiredElementMatchers, sel)
			c.CompletionHints = append(c.CompletionHints, "Element should exist: "+sel)
			matched = true
		}
	}
	if matched {
		return
	}

	// No recognized type. Take a describable condition if one exists, then
	// scan key names for criteria-shaped fields: tests without a type at
	// all are key-shaped (e.g. {"url_contains": "/cart"}), and typed tests
	// may hide criteria one level down in config/params.
	for _, key := range []string{"description", "name", "condition", "check"} {
		if val := stringField(test, key); val != "" {
			c.CompletionHints = append(c.CompletionHints, "Test condition: "+val)
			break
		}
	}

	if testType == "" {
		scanKeyed(test, c)
	}
	for _, nested := range []string{"config", "params"} {
		if sub, ok := test[nested].(map[string]interface{}); ok {
			scanKeyed(sub, c)
		}
	}
}

// scanKeyed inspects field names for url/text/selector shapes. Keys are
// visited in sorted order so the result is stable across runs.
func scanKeyed(fields map[string]interface{}, c *SuccessCriteria) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		val := stringify(fields[k])
		if val == "" {
			continue
		}
		lower := strings.ToLower(k)
		switch {
		case strings.Contains(lower, "url"):
			c.TargetURLPatterns = append(c.TargetURLPatterns, val)
			c.CompletionHints = append(c.CompletionHints, "Target URL: "+val)
		case strings.Contains(lower, "text"):
			c.RequiredTexts = append(c.RequiredTexts, val)
			c.CompletionHints = append(c.CompletionHints, "Expected text: "+val)
		case strings.Contains(lower, "selector"):
			c.RequiredElementMatchers = append(c.RequiredElementMatchers, val)
		}
	}
}

// SatisfiedBy reports whether the page already meets every criterion: any
// URL pattern present in the current URL, all required texts present, and
// all element matchers resolving to at least one node. Tasks with no
// criteria are never considered satisfied.
func (c SuccessCriteria) SatisfiedBy(currentURL, html string) bool {
	if !c.HasCriteria() {
		return false
	}

	if len(c.TargetURLPatterns) > 0 {
		matched := false
		for _, target := range c.TargetURLPatterns {
			if strings.Contains(currentURL, target) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(c.RequiredTexts) > 0 {
		htmlLower := strings.ToLower(html)
		for _, text := range c.RequiredTexts {
			if !strings.Contains(htmlLower, strings.ToLower(text)) {
				return false
			}
		}
	}

	if len(c.RequiredElementMatchers) > 0 {
		doc, err := htmlquery.Parse(strings.NewReader(html))
		if err != nil || doc == nil {
			return false
		}
		for _, matcher := range c.RequiredElementMatchers {
			expr := extractor.CSSToXPath(matcher)
			if !strings.HasPrefix(expr, "/") {
				return false
			}
			nodes, err := htmlquery.QueryAll(doc, expr)
			if err != nil || len(nodes) == 0 {
				return false
			}
		}
	}

	return true
}

// PromptSection renders the criteria for the prompt, goals first.
func (c SuccessCriteria) PromptSection() string {
	lines := []string{"## Success Criteria"}

	for _, hint := range c.CompletionHints {
		lines = append(lines, "- "+hint)
	}
	if len(c.TargetURLPatterns) > 0 {
		lines = append(lines, "\nTarget URLs:")
		for _, url := range c.TargetURLPatterns {
			lines = append(lines, "  - "+url)
		}
	}
	if len(c.RequiredTexts) > 0 {
		lines = append(lines, "\nRequired text on page:")
		for _, text := range c.RequiredTexts {
			lines = append(lines, fmt.Sprintf(`  - "%s"`, text))
		}
	}
	if len(c.RequiredElementMatchers) > 0 {
		lines = append(lines, "\nRequired elements:")
		for _, matcher := range c.RequiredElementMatchers {
			lines = append(lines, "  - "+matcher)
		}
	}
	lines = append(lines, fmt.Sprintf("\nInferred task type: %s", c.TaskType))

	return strings.Join(lines, "\n")
}

// -- Helpers --

var taskTypePatterns = []struct {
	taskType TaskType
	pattern  *regexp.Regexp
}{
	{TypeLogin, regexp.MustCompile(`\b(log\s*in|sign\s*in|authenticate)\b`)},
	{TypeFormFill, regexp.MustCompile(`\b(fill|enter|type|input|form|register|sign\s*up|create\s*account)\b`)},
	{TypeSearch, regexp.MustCompile(`\b(search|find|look\s*for|query)\b`)},
	{TypeCart, regexp.MustCompile(`\b(cart|add\s*to\s*cart|basket|buy|purchase|checkout|order)\b`)},
	{TypeNavigation, regexp.MustCompile(`\b(navigate|go\s*to|visit|open|click\s*on|select)\b`)},
}

func inferTaskType(instruction string) TaskType {
	lower := strings.ToLower(instruction)
	for _, entry := range taskTypePatterns {
		if entry.pattern.MatchString(lower) {
			return entry.taskType
		}
	}
	return TypeMultiStep
}

// stringField returns the first non-empty stringified value among keys.
func stringField(fields map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if val := stringify(fields[key]); val != "" {
			return val
		}
	}
	return ""
}

// stringify renders scalars the way they would read in a hint. Maps and
// slices are not criteria values and come back empty.
func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case bool:
		if val {
			return "true"
		}
		return ""
	case float64:
		if val == 0 {
			return ""
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		if val == 0 {
			return ""
		}
		return strconv.Itoa(val)
	default:
		return ""
	}
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
