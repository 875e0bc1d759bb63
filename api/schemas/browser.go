package schemas

import (
	"fmt"
	"strings"
)

// -- Browser Action Schemas --

// InteractionAction defines the verb of a single browser action. The
// vocabulary is closed: the resolver normalizes aliases into it and rejects
// anything that still falls outside, so an unknown verb never reaches the
// executor.
type InteractionAction string

const (
	ActionClick        InteractionAction = "click"
	ActionFill         InteractionAction = "fill"
	ActionType         InteractionAction = "type"
	ActionSelectOption InteractionAction = "select_option"
	ActionNavigate     InteractionAction = "navigate"
	ActionScroll       InteractionAction = "scroll"
	ActionHover        InteractionAction = "hover"
	ActionSendKeys     InteractionAction = "send_keys"
	ActionDoubleClick  InteractionAction = "double_click"
	ActionWait         InteractionAction = "wait"
	ActionSubmit       InteractionAction = "submit"
	ActionTripleClick  InteractionAction = "triple_click"
	ActionDrag         InteractionAction = "drag"
)

// String implements fmt.Stringer.
func (a InteractionAction) String() string { return string(a) }

// Valid reports whether the verb belongs to the closed vocabulary.
func (a InteractionAction) Valid() bool {
	switch a {
	case ActionClick, ActionFill, ActionType, ActionSelectOption,
		ActionNavigate, ActionScroll, ActionHover, ActionSendKeys,
		ActionDoubleClick, ActionWait, ActionSubmit, ActionTripleClick,
		ActionDrag:
		return true
	}
	return false
}

// NeedsLocator reports whether the verb targets a single page element and
// therefore requires a resolved locator before it can be emitted.
func (a InteractionAction) NeedsLocator() bool {
	switch a {
	case ActionClick, ActionFill, ActionType, ActionSelectOption,
		ActionHover, ActionDoubleClick, ActionSubmit, ActionTripleClick:
		return true
	}
	return false
}

// Action is one executable browser step, tagged by Type. Only the fields the
// verb requires are populated; empty fields are omitted from the wire form.
type Action struct {
	Type        InteractionAction `json:"type"`
	XPath       string            `json:"xpath,omitempty"`
	Selector    string            `json:"selector,omitempty"`
	Text        string            `json:"text,omitempty"`
	URL         string            `json:"url,omitempty"`
	Direction   string            `json:"direction,omitempty"`
	Keys        string            `json:"keys,omitempty"`
	DurationMs  int               `json:"duration_ms,omitempty"`
	SourceXPath string            `json:"source_xpath,omitempty"`
	TargetXPath string            `json:"target_xpath,omitempty"`
}

// Validate checks that the action carries every field its verb requires.
// It is the single audit point for variant completeness; the resolver calls
// it before any action is allowed out of the pipeline.
func (a *Action) Validate() error {
	if !a.Type.Valid() {
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	if a.Type.NeedsLocator() && a.XPath == "" {
		return fmt.Errorf("%s action requires a locator", a.Type)
	}
	switch a.Type {
	case ActionFill, ActionType, ActionSelectOption:
		if a.Text == "" {
			return fmt.Errorf("%s action requires text", a.Type)
		}
	case ActionNavigate:
		if a.URL == "" {
			return fmt.Errorf("navigate action requires a url")
		}
	case ActionScroll:
		if a.Direction == "" {
			return fmt.Errorf("scroll action requires a direction")
		}
	case ActionSendKeys:
		if a.Keys == "" {
			return fmt.Errorf("send_keys action requires keys")
		}
	case ActionWait:
		if a.DurationMs <= 0 {
			return fmt.Errorf("wait action requires a positive duration_ms")
		}
	case ActionDrag:
		if a.SourceXPath == "" || a.TargetXPath == "" {
			return fmt.Errorf("drag action requires source and target locators")
		}
	}
	return nil
}

// -- Page Snapshot Schemas --

// ElementDescriptor is the compact projection of one candidate interactive
// element. ShortID labels the element for the model within a single step;
// it is reassigned on every snapshot, so anything that must survive across
// steps keys on XPath or CSSSelector instead.
type ElementDescriptor struct {
	ShortID       string   `json:"short_id"`
	Tag           string   `json:"tag"`
	Type          string   `json:"type,omitempty"`
	Name          string   `json:"name,omitempty"`
	ID            string   `json:"id,omitempty"`
	Classes       string   `json:"classes,omitempty"`
	Text          string   `json:"text,omitempty"`
	Placeholder   string   `json:"placeholder,omitempty"`
	Value         string   `json:"value,omitempty"`
	Href          string   `json:"href,omitempty"`
	AriaLabel     string   `json:"aria_label,omitempty"`
	Role          string   `json:"role,omitempty"`
	Options       []string `json:"options,omitempty"`
	CSSSelector   string   `json:"css_selector"`
	XPath         string   `json:"xpath"`
	IsHidden      bool     `json:"is_hidden,omitempty"`
	IsRequired    bool     `json:"is_required,omitempty"`
	IsInteractive bool     `json:"is_interactive"`
}

// Editable reports whether the element accepts typed text. Buttons and
// button-like inputs do not.
func (e *ElementDescriptor) Editable() bool {
	switch e.Tag {
	case "textarea":
		return true
	case "select":
		return false
	case "input":
		switch e.Type {
		case "button", "submit", "reset", "image", "checkbox", "radio", "file", "hidden":
			return false
		}
		return true
	}
	if e.Role == "textbox" || e.Role == "combobox" || e.Role == "searchbox" {
		return true
	}
	return false
}

// Selectable reports whether the element is a select-like control.
func (e *ElementDescriptor) Selectable() bool {
	return e.Tag == "select" || e.Role == "listbox" || e.Role == "combobox"
}

// SearchText is the concatenation of the element's human-facing fields,
// used as the candidate side of similarity scoring during locator repair.
func (e *ElementDescriptor) SearchText() string {
	parts := make([]string, 0, 6)
	for _, p := range []string{e.Text, e.Name, e.AriaLabel, e.Placeholder, e.ID, e.Value} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// PageView is the bounded projection of one HTML snapshot: the ordered
// element list plus a readable content summary. It is rebuilt from scratch
// every step and owned by that step alone.
type PageView struct {
	URL            string              `json:"url"`
	Elements       []ElementDescriptor `json:"elements"`
	ContentSummary string              `json:"content_summary"`
	StepIndex      int                 `json:"step_index"`
}

// ElementByShortID returns the element labelled by the given short id, or
// nil when the id is unknown in this view.
func (p *PageView) ElementByShortID(id string) *ElementDescriptor {
	for i := range p.Elements {
		if p.Elements[i].ShortID == id {
			return &p.Elements[i]
		}
	}
	return nil
}

// ElementByLocator returns the element whose xpath or css selector equals
// the given locator, or nil when none matches.
func (p *PageView) ElementByLocator(locator string) *ElementDescriptor {
	for i := range p.Elements {
		if p.Elements[i].XPath == locator || p.Elements[i].CSSSelector == locator {
			return &p.Elements[i]
		}
	}
	return nil
}
