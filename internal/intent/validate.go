package intent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/seenimoa/macroquery/internal/index"
	"github.com/seenimoa/macroquery/internal/llm"
	"github.com/seenimoa/macroquery/internal/ref"
)

// ValidateCandidate decides whether an index hit really answers the
// requested label. High-confidence hits pass directly; known
// false-friend pairs fail directly; low-confidence hits go to the LLM
// for a yes/no judgment. An LLM failure rejects the candidate rather
// than failing the query.
func (r *Resolver) ValidateCandidate(ctx context.Context, label string, candidate index.ScoredRecord) bool {
	if ref.AreNotSynonyms(label, candidate.DisplayName) {
		return false
	}
	if !candidate.LowConfidence {
		return true
	}

	user := fmt.Sprintf("User asked for: %q\nCandidate series: %q (%s)\nDescription: %s\nDoes the candidate measure what the user asked for?",
		label, candidate.DisplayName, candidate.Code, candidate.Description)
	completion, err := r.llm.Complete(ctx, llm.Request{
		System:      validatePrompt,
		User:        user,
		Temperature: 0,
		MaxTokens:   4,
	})
	if err != nil {
		r.log.Warn().Err(err).Str("candidate", candidate.Code).Msg("candidate validation failed, rejecting")
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(completion.Content))
	return strings.HasPrefix(answer, "yes")
}

// SelectDataflow picks the catalog entry answering the label from a
// numbered option list, or declines when the model answers none or
// nonsense. An LLM failure declines rather than guessing.
func (r *Resolver) SelectDataflow(ctx context.Context, label string, options []string) (int, bool) {
	if len(options) == 0 {
		return 0, false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Request: %q\nOptions:\n", label)
	for i, opt := range options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, opt)
	}
	completion, err := r.llm.Complete(ctx, llm.Request{
		System:      selectPrompt,
		User:        b.String(),
		Temperature: 0,
		MaxTokens:   4,
	})
	if err != nil {
		r.log.Warn().Err(err).Str("label", label).Msg("dataflow selection failed, declining")
		return 0, false
	}

	answer := strings.ToLower(strings.TrimSpace(completion.Content))
	if answer == "" || strings.HasPrefix(answer, "none") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.Fields(answer)[0])
	if err != nil || n < 1 || n > len(options) {
		return 0, false
	}
	return n - 1, true
}
