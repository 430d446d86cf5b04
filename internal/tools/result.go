package tools

// Result is the unified return type from tool execution.
type Result struct {
	ForLLM  string `json:"for_llm"`  // observation sent back to the model
	IsError bool   `json:"is_error"` // marks a failed invocation
	Err     error  `json:"-"`        // internal error (not serialized)

	// Data carries the structured payload (places, itinerary) for turn
	// metadata; it never goes to the model directly.
	Data any `json:"-"`
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}

func (r *Result) WithData(data any) *Result {
	r.Data = data
	return r
}
