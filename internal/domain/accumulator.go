package domain

import "strings"

// Accumulator folds a canonical event stream into the final response carried
// by StreamEnd. Decoders use it to materialize the terminal event; consumers
// that only want the final answer can drive it directly.
//
// One accumulator serves one request and is not safe for concurrent use.
type Accumulator struct {
	meta     StreamMeta
	finish   FinishReason
	usage    Usage
	warnings []Warning

	text      map[int]*strings.Builder
	thinking  strings.Builder
	toolOrder []string
	toolArgs  map[string]*strings.Builder
	toolNames map[string]string
	toolIndex map[string]int
	maxChoice int
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		finish:    FinishUnknown,
		text:      make(map[int]*strings.Builder),
		toolArgs:  make(map[string]*strings.Builder),
		toolNames: make(map[string]string),
		toolIndex: make(map[string]int),
	}
}

// Add folds one event into the accumulated state. Terminal events are
// ignored; the accumulator exists to produce them.
func (a *Accumulator) Add(ev StreamEvent) {
	switch ev.Type {
	case EventStreamStart:
		if ev.Meta != nil {
			a.meta = *ev.Meta
		}
	case EventContentDelta:
		b, ok := a.text[ev.ChoiceIndex]
		if !ok {
			b = &strings.Builder{}
			a.text[ev.ChoiceIndex] = b
		}
		b.WriteString(ev.Text)
		if ev.ChoiceIndex > a.maxChoice {
			a.maxChoice = ev.ChoiceIndex
		}
	case EventThinkingDelta:
		a.thinking.WriteString(ev.Text)
	case EventToolCallDelta:
		tc := ev.ToolCall
		if tc == nil {
			return
		}
		b, ok := a.toolArgs[tc.CallID]
		if !ok {
			b = &strings.Builder{}
			a.toolArgs[tc.CallID] = b
			a.toolOrder = append(a.toolOrder, tc.CallID)
			a.toolIndex[tc.CallID] = tc.ChoiceIndex
		}
		if tc.Name != "" {
			a.toolNames[tc.CallID] = tc.Name
		}
		b.WriteString(tc.ArgumentsFragment)
	case EventUsage:
		if ev.Usage != nil {
			a.usage.Merge(*ev.Usage)
		}
	}
}

// SetFinish records the canonical finish reason.
func (a *Accumulator) SetFinish(reason FinishReason) {
	a.finish = reason
}

// AddWarning appends a response warning.
func (a *Accumulator) AddWarning(w Warning) {
	a.warnings = append(a.warnings, w)
}

// Usage returns the usage merged so far.
func (a *Accumulator) Usage() Usage {
	return a.usage
}

// Response materializes the accumulated state into a CanonicalResponse.
func (a *Accumulator) Response() *CanonicalResponse {
	a.usage.FillTotal()

	n := a.maxChoice + 1
	choices := make([]Choice, n)
	for i := 0; i < n; i++ {
		choices[i] = Choice{
			Index:        i,
			Message:      Message{Role: "assistant"},
			FinishReason: a.finish,
		}
		if b, ok := a.text[i]; ok {
			choices[i].Message.Content = b.String()
		}
	}
	choices[0].Thinking = a.thinking.String()
	for _, id := range a.toolOrder {
		idx := a.toolIndex[id]
		if idx >= n {
			idx = 0
		}
		choices[idx].ToolCalls = append(choices[idx].ToolCalls, ToolCall{
			ID:        id,
			Name:      a.toolNames[id],
			Arguments: a.toolArgs[id].String(),
		})
	}

	resp := &CanonicalResponse{
		ID:       a.meta.ID,
		Provider: a.meta.Provider,
		Model:    a.meta.Model,
		Choices:  choices,
		Usage:    a.usage,
		Warnings: a.warnings,
	}
	if !a.meta.Timestamp.IsZero() {
		resp.Created = a.meta.Timestamp.Unix()
	}
	return resp
}
