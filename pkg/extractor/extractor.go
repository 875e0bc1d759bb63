// File: pkg/extractor/extractor.go
package extractor

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/iwa/api/schemas"
)

// Mode narrows the candidate tag set before truncation, so pages heavy in
// one element class don't crowd out the kind the task needs.
type Mode string

const (
	ModeAllFields   Mode = "all_fields"
	ModeInputFields Mode = "input_fields"
	ModeLinksOnly   Mode = "links_only"
)

// ParseMode maps a config string onto a Mode, defaulting to all_fields.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeInputFields, ModeLinksOnly:
		return Mode(s)
	default:
		return ModeAllFields
	}
}

// tagFilter returns the allowed-tag set for the mode, or nil for no filter.
func (m Mode) tagFilter() map[string]bool {
	switch m {
	case ModeInputFields:
		return map[string]bool{"input": true, "select": true, "textarea": true, "button": true}
	case ModeLinksOnly:
		return map[string]bool{"a": true, "button": true}
	default:
		return nil
	}
}

const (
	defaultMaxElements     = 150
	defaultMaxContentChars = 12000
	maxTextLen             = 80
)

// Tags that are always candidates.
var interactiveTags = map[string]bool{
	"input": true, "button": true, "select": true, "textarea": true, "a": true, "nav": true,
}

// Attributes that make any element a candidate when non-empty.
var interactiveAttrs = []string{"onclick", "onsubmit", "onchange", "ng-click", "v-on:click", "@click"}

// Roles that imply interactivity.
var interactiveRoles = map[string]bool{
	"button": true, "link": true, "tab": true, "menuitem": true, "checkbox": true,
	"radio": true, "switch": true, "combobox": true, "listbox": true, "option": true,
	"textbox": true,
}

// Subtrees skipped entirely during extraction.
var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "svg": true, "head": true, "template": true,
}

// Extractor compacts a raw HTML snapshot into a bounded PageView. It is
// stateless; one instance serves any number of steps and tasks.
type Extractor struct {
	maxElements     int
	maxContentChars int
	logger          *zap.Logger
}

// New creates an Extractor. Non-positive limits fall back to the defaults.
func New(maxElements, maxContentChars int, logger *zap.Logger) *Extractor {
	if maxElements <= 0 {
		maxElements = defaultMaxElements
	}
	if maxContentChars <= 0 {
		maxContentChars = defaultMaxContentChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		maxElements:     maxElements,
		maxContentChars: maxContentChars,
		logger:          logger.Named("extractor"),
	}
}

// Extract parses the snapshot and returns the ordered element list plus the
// content summary. Elements matching any of the required locators survive
// mode filtering and truncation. Malformed input degrades to an empty
// element list and a raw-text summary; Extract never fails.
func (x *Extractor) Extract(rawHTML string, mode Mode, required []string) schemas.PageView {
	view := schemas.PageView{Elements: []schemas.ElementDescriptor{}}
	if strings.TrimSpace(rawHTML) == "" {
		return view
	}

	doc, err := htmlquery.Parse(strings.NewReader(rawHTML))
	if err != nil || doc == nil {
		x.logger.Warn("Snapshot did not parse; falling back to raw text summary.", zap.Error(err))
		view.ContentSummary = truncRunes(stripTags(rawHTML), x.maxContentChars)
		return view
	}

	forced := x.matchRequired(doc, required)
	view.Elements = x.extractElements(doc, mode, forced)
	view.ContentSummary = x.pageSummary(doc)
	return view
}

// candidate pairs a node with its built descriptor before truncation.
type candidate struct {
	node   *html.Node
	el     schemas.ElementDescriptor
	forced bool
}

func (x *Extractor) extractElements(doc *html.Node, mode Mode, forced map[*html.Node]bool) []schemas.ElementDescriptor {
	filter := mode.tagFilter()
	seenSelectors := map[string]bool{}
	var candidates []candidate

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if skipTags[tag] {
				return
			}
			if isInteractive(n, tag) {
				keep := true
				// Mode filter: drop tags outside the allowed set unless the
				// element is interactive via role/attr/tabindex, or a
				// required locator names it.
				if filter != nil && !filter[tag] && !hasNonTagInteractivity(n) && !forced[n] {
					keep = false
				}
				if keep {
					cssSel := buildCSSSelector(n, tag)
					// Deduplicate by selector; bare tag selectors are exempt
					// since they carry no identity.
					if !seenSelectors[cssSel] || cssSel == tag {
						seenSelectors[cssSel] = true
						candidates = append(candidates, candidate{
							node:   n,
							el:     buildDescriptor(n, tag, cssSel),
							forced: forced[n],
						})
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	selected := selectWithinCap(candidates, x.maxElements)

	elements := make([]schemas.ElementDescriptor, len(selected))
	for i, c := range selected {
		c.el.ShortID = fmt.Sprintf("e%d", i+1)
		elements[i] = c.el
	}
	return elements
}

// selectWithinCap truncates by document order while keeping every forced
// candidate. Forced candidates displace unforced ones from the tail; the
// result stays in document order and never exceeds the limit.
func selectWithinCap(candidates []candidate, limit int) []candidate {
	if len(candidates) <= limit {
		return candidates
	}
	forcedCount := 0
	for _, c := range candidates {
		if c.forced {
			forcedCount++
		}
	}
	unforcedBudget := limit - forcedCount
	selected := make([]candidate, 0, limit)
	for _, c := range candidates {
		if len(selected) >= limit {
			break
		}
		if c.forced {
			selected = append(selected, c)
			continue
		}
		if unforcedBudget > 0 {
			selected = append(selected, c)
			unforcedBudget--
		}
	}
	return selected
}

// matchRequired evaluates the task's required element locators against the
// parsed document and returns the set of nodes they select. Invalid
// locators are ignored; criteria must never block extraction.
func (x *Extractor) matchRequired(doc *html.Node, required []string) map[*html.Node]bool {
	if len(required) == 0 {
		return nil
	}
	forced := map[*html.Node]bool{}
	for _, matcher := range required {
		expr := CSSToXPath(matcher)
		if !strings.HasPrefix(expr, "/") {
			// Too complex to approximate as XPath; nothing to evaluate.
			continue
		}
		nodes, err := htmlquery.QueryAll(doc, expr)
		if err != nil {
			x.logger.Debug("Required element locator did not compile; skipping.",
				zap.String("locator", matcher), zap.Error(err))
			continue
		}
		for _, n := range nodes {
			forced[n] = true
		}
	}
	return forced
}

// -- Interactivity and Visibility --

func isInteractive(n *html.Node, tag string) bool {
	if interactiveTags[tag] {
		return true
	}
	return hasNonTagInteractivity(n)
}

// hasNonTagInteractivity reports interactivity conferred by attributes
// rather than the tag itself: handlers, ARIA roles, contenteditable, and a
// reachable tabindex.
func hasNonTagInteractivity(n *html.Node) bool {
	for _, attr := range interactiveAttrs {
		if htmlquery.SelectAttr(n, attr) != "" {
			return true
		}
	}
	if interactiveRoles[strings.ToLower(htmlquery.SelectAttr(n, "role"))] {
		return true
	}
	if v, ok := lookupAttr(n, "contenteditable"); ok && (v == "true" || v == "") {
		return true
	}
	if v, ok := lookupAttr(n, "tabindex"); ok && v != "-1" {
		return true
	}
	return false
}

// isHiddenNode checks the element and its ancestor chain for hiding
// signals. Ancestors are only consulted for style-based hiding; attributes
// like type="hidden" do not inherit.
func isHiddenNode(n *html.Node) bool {
	if hasHiddenStyle(n) {
		return true
	}
	if _, ok := lookupAttr(n, "hidden"); ok {
		return true
	}
	if strings.ToLower(htmlquery.SelectAttr(n, "type")) == "hidden" {
		return true
	}
	if htmlquery.SelectAttr(n, "aria-hidden") == "true" {
		return true
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(p.Data)
		if tag == "html" || tag == "body" {
			continue
		}
		if hasHiddenStyle(p) {
			return true
		}
	}
	return false
}

func hasHiddenStyle(n *html.Node) bool {
	style := strings.ReplaceAll(strings.ToLower(htmlquery.SelectAttr(n, "style")), " ", "")
	return strings.Contains(style, "display:none") ||
		strings.Contains(style, "visibility:hidden") ||
		strings.Contains(style, "opacity:0") ||
		strings.Contains(style, "pointer-events:none")
}

// -- Descriptor Construction --

func buildDescriptor(n *html.Node, tag, cssSel string) schemas.ElementDescriptor {
	var options []string
	if tag == "select" {
		options = selectOptions(n)
	}
	ariaRequired := strings.ToLower(htmlquery.SelectAttr(n, "aria-required")) == "true"
	_, hasRequired := lookupAttr(n, "required")

	return schemas.ElementDescriptor{
		Tag:           tag,
		Type:          strings.ToLower(htmlquery.SelectAttr(n, "type")),
		Name:          htmlquery.SelectAttr(n, "name"),
		ID:            htmlquery.SelectAttr(n, "id"),
		Classes:       strings.Join(classList(n), " "),
		Text:          truncRunes(textContent(n), maxTextLen),
		Placeholder:   htmlquery.SelectAttr(n, "placeholder"),
		Value:         htmlquery.SelectAttr(n, "value"),
		Href:          htmlquery.SelectAttr(n, "href"),
		AriaLabel:     htmlquery.SelectAttr(n, "aria-label"),
		Role:          strings.ToLower(htmlquery.SelectAttr(n, "role")),
		Options:       options,
		CSSSelector:   cssSel,
		XPath:         buildXPath(n, tag),
		IsHidden:      isHiddenNode(n),
		IsRequired:    hasRequired || ariaRequired,
		IsInteractive: true,
	}
}

// buildCSSSelector prefers id over name over aria-label over classes, so
// the selector survives cosmetic DOM churn as long as possible.
func buildCSSSelector(n *html.Node, tag string) string {
	if id := htmlquery.SelectAttr(n, "id"); id != "" {
		return "#" + id
	}
	if name := htmlquery.SelectAttr(n, "name"); name != "" {
		return fmt.Sprintf(`%s[name="%s"]`, tag, name)
	}
	if aria := htmlquery.SelectAttr(n, "aria-label"); aria != "" {
		return fmt.Sprintf(`%s[aria-label="%s"]`, tag, aria)
	}
	if classes := classList(n); len(classes) > 0 {
		return tag + "." + strings.Join(classes, ".")
	}
	return tag
}

// buildXPath mirrors the CSS priority order. Text predicates are only used
// when the text is short and quote-free, otherwise they would not be valid
// XPath string literals.
func buildXPath(n *html.Node, tag string) string {
	if tag == "" {
		tag = "*"
	}
	if id := htmlquery.SelectAttr(n, "id"); id != "" {
		return fmt.Sprintf("//%s[@id='%s']", tag, id)
	}
	if name := htmlquery.SelectAttr(n, "name"); name != "" {
		return fmt.Sprintf("//%s[@name='%s']", tag, name)
	}
	if aria := htmlquery.SelectAttr(n, "aria-label"); aria != "" {
		return fmt.Sprintf("//%s[@aria-label='%s']", tag, aria)
	}
	text := textContent(n)
	if text != "" && utf8.RuneCountInString(text) < 50 && !strings.ContainsAny(text, `"'`) {
		return fmt.Sprintf("//%s[contains(text(), '%s')]", tag, truncRunes(text, 40))
	}
	if classes := classList(n); len(classes) > 0 {
		return fmt.Sprintf("//%s[contains(@class, '%s')]", tag, classes[0])
	}
	return "//" + tag
}

func selectOptions(n *html.Node) []string {
	var options []string
	var walk func(c *html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.ElementNode && strings.ToLower(c.Data) == "option" {
			if text := textContent(c); text != "" {
				options = append(options, text)
			} else if val := htmlquery.SelectAttr(c, "value"); val != "" {
				options = append(options, val)
			}
		}
		for child := c.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return options
}

// -- Node Helpers --

// lookupAttr distinguishes an absent attribute from an empty one.
func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func classList(n *html.Node) []string {
	return strings.Fields(htmlquery.SelectAttr(n, "class"))
}

// textContent joins the subtree's text nodes with single spaces.
func textContent(n *html.Node) string {
	var parts []string
	var walk func(c *html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			if t := strings.TrimSpace(c.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for child := c.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

// -- Content Summary --

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(` {2,}`)
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
)

// Tags excluded from the readable-text reduction. Navigation chrome is
// boilerplate for the model's purposes; its links still appear in the
// element list.
var summarySkipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "head": true,
	"template": true, "svg": true, "nav": true, "iframe": true,
}

var blockTags = map[string]bool{
	"p": true, "div": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "li": true, "ul": true, "ol": true, "table": true,
	"tr": true, "section": true, "article": true, "header": true, "footer": true,
	"form": true, "blockquote": true, "pre": true, "br": true, "main": true,
	"aside": true, "fieldset": true,
}

// pageSummary reduces the document to readable text within the char budget,
// prefixed with the page title when one exists.
func (x *Extractor) pageSummary(doc *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteString(" ")
			}
			return
		case html.ElementNode:
			tag := strings.ToLower(n.Data)
			if summarySkipTags[tag] || tag == "title" {
				return
			}
			if blockTags[tag] {
				sb.WriteString("\n")
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c)
				}
				sb.WriteString("\n")
				return
			}
		case html.CommentNode, html.DoctypeNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text := sb.String()
	text = strings.ReplaceAll(text, " \n", "\n")
	text = multiSpace.ReplaceAllString(text, " ")
	text = multiNewline.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	if title := pageTitle(doc); title != "" {
		text = fmt.Sprintf("Page Title: %s\n\n%s", title, text)
	}
	return truncRunes(text, x.maxContentChars)
}

func pageTitle(doc *html.Node) string {
	node := htmlquery.FindOne(doc, "//title")
	if node == nil {
		return ""
	}
	return strings.TrimSpace(textContent(node))
}

// stripTags is the last-resort summary for snapshots that defeat the
// parser: drop everything in angle brackets and keep the rest.
func stripTags(raw string) string {
	text := tagPattern.ReplaceAllString(raw, " ")
	text = multiSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// truncRunes caps s at max runes, marking the cut with an ellipsis.
func truncRunes(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
