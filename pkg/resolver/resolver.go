// File: pkg/resolver/resolver.go

// Package resolver turns raw model output into a validated, executable
// action. Parsing is defensive: strict JSON first, recovery from
// surrounding prose second. Every action that leaves this package has
// passed alias normalization, short-id resolution, the required-field
// audit, the affordance audit, and (when needed) similarity-based locator
// repair.
package resolver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/iwa/api/schemas"
	"github.com/xkilldash9x/iwa/pkg/extractor"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultThreshold is the minimum Score a repair candidate must reach
// before it may replace an unmatched locator.
const DefaultThreshold = 62

// Aliases that models use for canonical verbs. 'noop' and friends mean a
// deliberate no-op; anything not in this table and not canonical is
// rejected as unknown.
var actionAliases = map[string]string{
	"input":         "fill",
	"enter_text":    "fill",
	"enter":         "fill",
	"write":         "fill",
	"set_value":     "fill",
	"type_text":     "type",
	"append":        "type",
	"go_to":         "navigate",
	"goto":          "navigate",
	"go":            "navigate",
	"open":          "navigate",
	"visit":         "navigate",
	"press":         "click",
	"tap":           "click",
	"choose":        "select_option",
	"select":        "select_option",
	"dropdown":      "select_option",
	"scroll_down":   "scroll",
	"scroll_up":     "scroll",
	"mouse_over":    "hover",
	"mouseover":     "hover",
	"hover_over":    "hover",
	"keys":          "send_keys",
	"press_key":     "send_keys",
	"key":           "send_keys",
	"keyboard":      "send_keys",
	"press_enter":   "send_keys",
	"dblclick":      "double_click",
	"pause":         "wait",
	"sleep":         "wait",
	"drag_and_drop": "drag",
}

var noopAliases = map[string]bool{
	"noop": true, "none": true, "done": true, "complete": true,
	"no_op": true, "no_action": true,
}

// Resolution is a successfully parsed model decision. Action is nil when
// the model deliberately chose to do nothing.
type Resolution struct {
	Action     *schemas.Action
	Fallback   *schemas.Action
	Thinking   string
	Confidence int
	Plan       []string
}

// RejectionError explains why a model response could not become an action.
// The reason is phrased so the orchestrator can feed it straight into the
// next prompt's recovery hint.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return e.Reason }

func reject(format string, args ...interface{}) *RejectionError {
	return &RejectionError{Reason: fmt.Sprintf(format, args...)}
}

// Resolver validates and repairs model decisions against the current page.
type Resolver struct {
	threshold int
	logger    *zap.Logger
}

func New(threshold int, logger *zap.Logger) *Resolver {
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{threshold: threshold, logger: logger.Named("resolver")}
}

// envelope mirrors the response contract the system prompt requests.
// Confidence and plan entries are loosely typed; models drift between
// integers, floats, and mixed arrays, and none of that should fail the
// parse.
type envelope struct {
	Thinking       string                 `json:"thinking"`
	Action         map[string]interface{} `json:"action"`
	Confidence     float64                `json:"confidence"`
	FallbackAction map[string]interface{} `json:"fallback_action"`
	Plan           []interface{}          `json:"plan"`
}

func (e *envelope) planSteps() []string {
	if len(e.Plan) == 0 {
		return nil
	}
	steps := make([]string, 0, len(e.Plan))
	for _, entry := range e.Plan {
		if s := asString(entry); s != "" {
			steps = append(steps, s)
		}
	}
	return steps
}

// Resolve parses the raw model output and returns a validated resolution,
// or a RejectionError describing what was wrong with it. The fallback
// action, when present, goes through the same audits as the primary; a bad
// fallback is dropped rather than failing the step.
func (r *Resolver) Resolve(raw string, view schemas.PageView) (*Resolution, error) {
	env, err := parseEnvelope(raw)
	if err != nil {
		return nil, err
	}

	res := &Resolution{
		Thinking:   env.Thinking,
		Confidence: int(env.Confidence),
		Plan:       env.planSteps(),
	}

	action, err := r.resolveAction(env.Action, view)
	if err != nil {
		return nil, err
	}
	res.Action = action

	if env.FallbackAction != nil {
		fallback, fbErr := r.resolveAction(env.FallbackAction, view)
		if fbErr != nil {
			r.logger.Debug("Dropping invalid fallback action", zap.Error(fbErr))
		} else if fallback != nil {
			res.Fallback = fallback
		}
	}
	return res, nil
}

// -- Parsing --

var embeddedObjectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)\{[^{}]*"action"\s*:\s*\{[^{}]*\}[^{}]*\}`),
	regexp.MustCompile(`(?s)\{[^{}]*"type"\s*:[^{}]*\}`),
}

// parseEnvelope runs the defensive parse cascade: strip code fences, try
// strict JSON, then pattern recovery, then the outermost brace pair.
func parseEnvelope(raw string) (*envelope, error) {
	text := stripCodeFences(strings.TrimSpace(raw))
	if text == "" {
		return nil, reject("model returned an empty response")
	}

	if env, ok := tryEnvelope(text); ok {
		return env, nil
	}
	for _, pattern := range embeddedObjectPatterns {
		if match := pattern.FindString(text); match != "" {
			if env, ok := tryEnvelope(match); ok {
				return env, nil
			}
		}
	}
	if start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}'); start >= 0 && end > start {
		if env, ok := tryEnvelope(text[start : end+1]); ok {
			return env, nil
		}
	}
	return nil, reject("model response contained no parsable action JSON")
}

// tryEnvelope unmarshals one candidate JSON string. A bare action object
// (a map with a type but no action key) is wrapped into an envelope.
func tryEnvelope(text string) (*envelope, bool) {
	var env envelope
	if err := json.UnmarshalFromString(text, &env); err == nil && env.Action != nil {
		return &env, true
	}
	var bare map[string]interface{}
	if err := json.UnmarshalFromString(text, &bare); err == nil && bare["type"] != nil {
		return &envelope{Action: bare}, true
	}
	return nil, false
}

func stripCodeFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// -- Action resolution --

var (
	shortIDPattern  = regexp.MustCompile(`(?i)^#?e(\d+)$`)
	embeddedIDMatch = regexp.MustCompile(`\be(\d+)\b`)
)

// resolveAction normalizes one raw action object into a validated
// schemas.Action. A nil, nil return means the model chose a deliberate
// no-op.
func (r *Resolver) resolveAction(raw map[string]interface{}, view schemas.PageView) (*schemas.Action, error) {
	if raw == nil {
		return nil, reject("model response carried no action object")
	}

	original := strings.ToLower(strings.TrimSpace(asString(raw["type"])))
	if original == "" {
		return nil, reject("action object is missing its type field")
	}
	if noopAliases[original] {
		return nil, nil
	}
	canonical := original
	if alias, ok := actionAliases[original]; ok {
		canonical = alias
	}
	actionType := schemas.InteractionAction(canonical)
	if !actionType.Valid() {
		return nil, reject("unsupported action type %q", original)
	}

	action := &schemas.Action{Type: actionType}
	action.XPath = r.resolveLocator(raw, view)
	action.Text = asString(raw["text"])
	action.URL = asString(raw["url"])

	switch actionType {
	case schemas.ActionScroll:
		action.Direction = asString(raw["direction"])
		switch original {
		case "scroll_up":
			action.Direction = "up"
		case "scroll_down":
			action.Direction = "down"
		}
		if action.Direction == "" {
			action.Direction = "down"
		}
	case schemas.ActionSendKeys:
		action.Keys = firstString(raw, "keys", "key", "text")
		if action.Keys == "" && original == "press_enter" {
			action.Keys = "Enter"
		}
		action.Text = ""
	case schemas.ActionWait:
		action.DurationMs = asInt(firstValue(raw, "duration_ms", "duration", "ms", "timeout"))
		if action.DurationMs <= 0 {
			action.DurationMs = 1000
		}
	case schemas.ActionDrag:
		action.SourceXPath = r.resolveOneLocator(asString(firstValue(raw, "source_xpath", "source")), view)
		action.TargetXPath = r.resolveOneLocator(asString(firstValue(raw, "target_xpath", "target")), view)
	}

	if err := action.Validate(); err != nil {
		return nil, reject("invalid %s action: %v", actionType, err)
	}
	if err := r.auditTarget(action, view); err != nil {
		return nil, err
	}
	return action, nil
}

// resolveLocator picks the best locator reference from the raw action and
// resolves it to a concrete xpath: short ids first, then css conversion.
func (r *Resolver) resolveLocator(raw map[string]interface{}, view schemas.PageView) string {
	for _, field := range []string{"xpath", "selector", "css_selector", "css", "target", "element"} {
		val := strings.TrimSpace(asString(raw[field]))
		if val == "" {
			continue
		}
		if m := shortIDPattern.FindStringSubmatch(val); m != nil {
			if el := view.ElementByShortID("e" + m[1]); el != nil {
				return el.XPath
			}
			continue
		}
		return r.resolveOneLocator(val, view)
	}
	return ""
}

// resolveOneLocator converts a single locator string to xpath, catching
// short ids embedded where an xpath should be (e.g. "[e3]" or "e3").
func (r *Resolver) resolveOneLocator(locator string, view schemas.PageView) string {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return ""
	}
	if !strings.HasPrefix(locator, "/") {
		if m := embeddedIDMatch.FindStringSubmatch(locator); m != nil {
			if el := view.ElementByShortID("e" + m[1]); el != nil {
				return el.XPath
			}
		}
	}
	return extractor.CSSToXPath(locator)
}

// auditTarget checks the action against the element it addresses: the
// affordance must fit and the element must be actionable. An unmatched
// locator goes through similarity repair before the action is rejected.
func (r *Resolver) auditTarget(action *schemas.Action, view schemas.PageView) error {
	if !action.Type.NeedsLocator() {
		return nil
	}

	el := view.ElementByLocator(action.XPath)
	if el == nil {
		repaired, err := r.repairLocator(action, view)
		if err != nil {
			return err
		}
		el = repaired
	}
	if el == nil {
		// The model constructed its own xpath for an element outside the
		// compacted view. Let it through; the sandbox reports failures and
		// the next step's history feeds the tracker.
		return nil
	}

	switch action.Type {
	case schemas.ActionFill, schemas.ActionType:
		if el.IsHidden {
			return reject("%s target %s is hidden and cannot be interacted with", action.Type, el.ShortID)
		}
		if !el.Editable() {
			return reject("%s target %s is a %s, not an editable control", action.Type, el.ShortID, el.Tag)
		}
	case schemas.ActionSelectOption:
		if el.IsHidden {
			return reject("select_option target %s is hidden and cannot be interacted with", el.ShortID)
		}
		if !el.Selectable() {
			return reject("select_option target %s is a %s, not a select-like control", el.ShortID, el.Tag)
		}
	case schemas.ActionClick, schemas.ActionDoubleClick, schemas.ActionTripleClick,
		schemas.ActionHover, schemas.ActionSubmit:
		if el.IsHidden {
			return reject("%s target %s is hidden and cannot be interacted with", action.Type, el.ShortID)
		}
	}
	return nil
}

// repairLocator substitutes the closest visible element when the action's
// locator matches nothing in the view. Returns (nil, nil) when the locator
// looks like hand-built xpath with no usable hint, leaving the action
// untouched.
func (r *Resolver) repairLocator(action *schemas.Action, view schemas.PageView) (*schemas.ElementDescriptor, error) {
	hint := locatorHint(action.XPath)
	if hint == "" {
		hint = action.Text
	}
	if hint == "" {
		return nil, nil
	}

	var best *schemas.ElementDescriptor
	bestScore := 0
	for i := range view.Elements {
		el := &view.Elements[i]
		if el.IsHidden {
			continue
		}
		score := scoreElement(hint, el)
		if score > bestScore {
			best, bestScore = el, score
		}
	}
	if best == nil || bestScore < r.threshold {
		return nil, reject("no element on the page matches locator %q (best similarity %d below threshold %d)",
			action.XPath, bestScore, r.threshold)
	}

	r.logger.Debug("Repaired unmatched locator",
		zap.String("original", action.XPath),
		zap.String("repaired", best.XPath),
		zap.Int("score", bestScore),
	)
	action.XPath = best.XPath
	action.Selector = best.CSSSelector
	return best, nil
}

// scoreElement rates one candidate against the hint, field by field, so a
// strong match on any single human-facing attribute wins.
func scoreElement(hint string, el *schemas.ElementDescriptor) int {
	best := 0
	for _, field := range []string{el.Text, el.Name, el.AriaLabel, el.Placeholder, el.ID, el.Value} {
		if field == "" {
			continue
		}
		if s := Score(hint, field); s > best {
			best = s
		}
	}
	return best
}

var quotedValuePattern = regexp.MustCompile(`['"]([^'"]+)['"]`)

// locatorHint extracts the human-meaningful part of a locator: quoted
// attribute values from xpath predicates, or the trailing id/class token
// of a css selector.
func locatorHint(locator string) string {
	if locator == "" {
		return ""
	}
	if matches := quotedValuePattern.FindAllStringSubmatch(locator, -1); len(matches) > 0 {
		parts := make([]string, 0, len(matches))
		for _, m := range matches {
			parts = append(parts, m[1])
		}
		return strings.Join(parts, " ")
	}
	// A quoteless xpath is positional; it carries nothing worth scoring.
	if strings.HasPrefix(locator, "/") {
		return ""
	}
	trimmed := strings.TrimLeft(locator, "#.")
	if trimmed != locator && trimmed != "" {
		return trimmed
	}
	return ""
}

// -- Raw value coercion --

func asString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func asInt(v interface{}) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(val))
		return n
	default:
		return 0
	}
}

func firstString(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s := asString(raw[key]); s != "" {
			return s
		}
	}
	return ""
}

func firstValue(raw map[string]interface{}, keys ...string) interface{} {
	for _, key := range keys {
		if v, ok := raw[key]; ok && v != nil {
			return v
		}
	}
	return nil
}
