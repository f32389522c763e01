package evaluation

import (
	"encoding/json"
	"strings"
)

// Failure is the error-shaped variant returned when the model reply is
// not parseable JSON. It is surfaced to the caller as a normal response
// body, not as a request failure.
type Failure struct {
	Error string `json:"error"`
	Raw   string `json:"raw"`
}

// Result is the reconciled model reply. Exactly one of Fields or Failure
// is set.
type Result struct {
	Fields  map[string]any
	Failure *Failure
}

func (r Result) Malformed() bool {
	return r.Failure != nil
}

// Payload returns the JSON-ready body for either variant.
func (r Result) Payload() map[string]any {
	if r.Failure != nil {
		return map[string]any{
			"error": r.Failure.Error,
			"raw":   r.Failure.Raw,
		}
	}
	if r.Fields == nil {
		// A literal JSON null parses into a nil map.
		return map[string]any{}
	}
	return r.Fields
}

// Reconcile parses the raw model reply into a structured result. The
// model is instructed to emit pure JSON but may wrap it in prose or
// markdown fencing, so the parse is two-step: the whole string first,
// then the slice between the first '{' and the last '}'. The slice is
// deliberately not nesting-aware; a reply holding several JSON fragments
// fails both steps and comes back error-shaped.
func Reconcile(raw string) Result {
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err == nil {
		return Result{Fields: fields}
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 {
		return Result{Failure: &Failure{Error: "Invalid response", Raw: raw}}
	}

	var sliced map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &sliced); err != nil {
		return Result{Failure: &Failure{Error: "Could not parse GPT response", Raw: raw}}
	}
	return Result{Fields: sliced}
}
