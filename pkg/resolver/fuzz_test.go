// File: pkg/resolver/fuzz_test.go
package resolver

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"go.uber.org/zap"

	"github.com/xkilldash9x/iwa/api/schemas"
)

// FuzzResolve hammers the defensive parse cascade with arbitrary model
// output. The contract under test: Resolve never panics, and anything it
// accepts passes the action's own validation.
func FuzzResolve(f *testing.F) {
	f.Add(`{"thinking": "x", "action": {"type": "click", "xpath": "//button[@id='buy']"}}`)
	f.Add("```json\n{\"action\": {\"type\": \"scroll\"}}\n```")
	f.Add(`prose before {"type": "navigate", "url": "https://a.b"} prose after`)
	f.Add(`{"action": {"type": "noop"}}`)
	f.Add(`{"action": {"type": "fill", "xpath": "e1", "text": "v"}}`)
	f.Add("{")
	f.Add("")
	f.Add(`[1, 2, 3]`)
	f.Add(`{"action": {"type": 42}}`)

	r := New(DefaultThreshold, zap.NewNop())
	view := schemas.PageView{
		Elements: []schemas.ElementDescriptor{
			{ShortID: "e1", Tag: "input", Type: "text", Name: "q",
				CSSSelector: `input[name="q"]`, XPath: "//input[@name='q']", IsInteractive: true},
		},
	}

	f.Fuzz(func(t *testing.T, raw string) {
		res, err := r.Resolve(raw, view)
		if err != nil {
			return
		}
		if res.Action != nil {
			if vErr := res.Action.Validate(); vErr != nil {
				t.Errorf("resolved action failed validation: %v (raw %q)", vErr, raw)
			}
		}
	})
}

// FuzzResolveStructured fuzzes the page view alongside the raw response,
// so locator repair sees arbitrary element content too.
func FuzzResolveStructured(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte, raw string) {
		consumer := fuzz.NewConsumer(data)
		var view schemas.PageView
		if err := consumer.GenerateStruct(&view); err != nil {
			return
		}

		r := New(DefaultThreshold, zap.NewNop())
		defer func() {
			if rec := recover(); rec != nil {
				t.Errorf("panic during structured resolve fuzzing: %v", rec)
			}
		}()
		_, _ = r.Resolve(raw, view)
	})
}
