package domain

// Usage is token accounting read defensively from vendor payloads. Fields are
// pointers so downstream aggregation can distinguish "not reported" from
// "reported as zero".
type Usage struct {
	PromptTokens     *int `json:"prompt_tokens,omitempty"`
	CompletionTokens *int `json:"completion_tokens,omitempty"`
	TotalTokens      *int `json:"total_tokens,omitempty"`
	CachedTokens     *int `json:"cached_tokens,omitempty"`
	ReasoningTokens  *int `json:"reasoning_tokens,omitempty"`
}

// Int returns a pointer to v, for building Usage literals.
func Int(v int) *int { return &v }

// Empty reports whether no field was reported.
func (u Usage) Empty() bool {
	return u.PromptTokens == nil && u.CompletionTokens == nil &&
		u.TotalTokens == nil && u.CachedTokens == nil && u.ReasoningTokens == nil
}

// Merge overlays reported fields of other onto u, leaving unreported fields
// untouched. Vendors that emit usage per step report step values, not
// cumulative ones, so later reports replace earlier ones field by field.
func (u *Usage) Merge(other Usage) {
	if other.PromptTokens != nil {
		u.PromptTokens = other.PromptTokens
	}
	if other.CompletionTokens != nil {
		u.CompletionTokens = other.CompletionTokens
	}
	if other.TotalTokens != nil {
		u.TotalTokens = other.TotalTokens
	}
	if other.CachedTokens != nil {
		u.CachedTokens = other.CachedTokens
	}
	if other.ReasoningTokens != nil {
		u.ReasoningTokens = other.ReasoningTokens
	}
}

// FillTotal computes TotalTokens from prompt and completion counts when the
// vendor reported both but no total.
func (u *Usage) FillTotal() {
	if u.TotalTokens == nil && u.PromptTokens != nil && u.CompletionTokens != nil {
		u.TotalTokens = Int(*u.PromptTokens + *u.CompletionTokens)
	}
}
