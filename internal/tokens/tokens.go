// Package tokens estimates prompt token counts locally with tiktoken
// encodings. Estimates fill the gap when a vendor reports no usage; they are
// close for OpenAI models and approximate elsewhere, so estimated usage is
// always flagged with a response warning.
package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/polywire/polywire/internal/domain"
)

// WarnEstimatedUsage marks usage computed locally instead of vendor-reported.
const WarnEstimatedUsage = "estimated_usage"

// perMessageOverhead approximates the chat-format framing tokens each
// message costs on top of its content.
const perMessageOverhead = 4

// Estimator counts tokens for canonical messages. Safe for concurrent use.
type Estimator struct {
	mu     sync.RWMutex
	codecs map[tokenizer.Encoding]tokenizer.Codec
}

// NewEstimator returns an estimator with an empty codec cache.
func NewEstimator() *Estimator {
	return &Estimator{codecs: make(map[tokenizer.Encoding]tokenizer.Codec)}
}

// encodingFor picks a tiktoken encoding by model family. Non-OpenAI models
// get the o200k_base encoding as a rough approximation.
func encodingFor(model string) tokenizer.Encoding {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-5"),
		strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}

func (e *Estimator) codec(model string) (tokenizer.Codec, error) {
	enc := encodingFor(model)

	e.mu.RLock()
	cached, ok := e.codecs[enc]
	e.mu.RUnlock()
	if ok {
		return cached, nil
	}

	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("tokenizer encoding %s: %w", enc, err)
	}
	e.mu.Lock()
	e.codecs[enc] = codec
	e.mu.Unlock()
	return codec, nil
}

// CountText returns the token count of one text under the model's encoding.
func (e *Estimator) CountText(model, text string) (int, error) {
	codec, err := e.codec(model)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}
	return len(ids), nil
}

// CountMessages estimates the prompt token cost of a message list, including
// per-message framing overhead.
func (e *Estimator) CountMessages(model string, messages []domain.Message) (int, error) {
	total := 0
	for _, m := range messages {
		n, err := e.CountText(model, m.Content)
		if err != nil {
			return 0, err
		}
		total += n + perMessageOverhead
		if m.Name != "" {
			nameTokens, err := e.CountText(model, m.Name)
			if err != nil {
				return 0, err
			}
			total += nameTokens
		}
	}
	return total, nil
}

// FillEstimate populates missing usage on a response from a local count and
// attaches the estimated-usage warning. Vendor-reported fields are never
// overwritten. A tokenizer failure leaves the response unchanged.
func (e *Estimator) FillEstimate(req *domain.CanonicalRequest, resp *domain.CanonicalResponse) {
	if resp == nil || !resp.Usage.Empty() {
		return
	}
	prompt, err := e.CountMessages(req.Model, req.Messages)
	if err != nil {
		return
	}
	completion, err := e.CountText(req.Model, resp.Text())
	if err != nil {
		return
	}
	resp.Usage = domain.Usage{
		PromptTokens:     domain.Int(prompt),
		CompletionTokens: domain.Int(completion),
	}
	resp.Usage.FillTotal()
	resp.Warnings = append(resp.Warnings, domain.Warning{
		Code:    WarnEstimatedUsage,
		Message: "usage not reported by vendor; token counts estimated locally",
	})
}
