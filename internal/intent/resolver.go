// Package intent turns natural-language queries into ParsedIntent: an
// LLM call constrained to a JSON schema, one re-emit retry on malformed
// output, then deterministic post-processing of countries, groups, and
// relative time ranges.
package intent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seenimoa/macroquery/internal/infra"
	"github.com/seenimoa/macroquery/internal/llm"
	"github.com/seenimoa/macroquery/pkg/models"
)

// resolverTTL caches resolved intents briefly; identical queries in a
// conversation re-resolve to identical intents.
const resolverTTL = 10 * time.Minute

// conversationTail is how many trailing conversation turns participate
// in the cache key and the prompt context.
const conversationTail = 3

// Resolver resolves queries through the LLM router.
type Resolver struct {
	llm   *llm.Router
	cache *infra.Cache
	now   func() time.Time
	log   zerolog.Logger
}

// NewResolver creates a resolver. cache may be shared with the response
// cache or dedicated.
func NewResolver(router *llm.Router, cache *infra.Cache, log zerolog.Logger) *Resolver {
	return &Resolver{
		llm:   router,
		cache: cache,
		now:   time.Now,
		log:   log.With().Str("component", "intent").Logger(),
	}
}

// rawIntent is the schema the model emits. Geography arrives as names;
// post-processing turns them into selectors.
type rawIntent struct {
	Providers  []string `json:"providers"`
	Indicators []struct {
		Label        string   `json:"label"`
		ExplicitCode string   `json:"explicit_code"`
		Qualifiers   []string `json:"qualifiers"`
	} `json:"indicators"`
	Geography []struct {
		Kind  string `json:"kind"`
		Value string `json:"value"`
	} `json:"geography"`
	TimeRange struct {
		Start    string `json:"start"`
		End      string `json:"end"`
		Relative *struct {
			Kind string `json:"kind"`
			N    int    `json:"n"`
			Year int    `json:"year"`
		} `json:"relative"`
	} `json:"time_range"`
	Frequency      string `json:"frequency"`
	IsTradeQuery   bool   `json:"is_trade_query"`
	IsComparison   bool   `json:"is_comparison"`
	IsExchangeRate bool   `json:"is_exchange_rate"`
	IsCrypto       bool   `json:"is_crypto"`
}

// Resolve parses a query, consulting the resolver cache first. The
// conversation slice carries prior user turns for follow-up questions.
func (r *Resolver) Resolve(ctx context.Context, query string, conversation []string) (*models.ParsedIntent, error) {
	key := cacheKey(query, conversation)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			return v.(*models.ParsedIntent), nil
		}
	}

	intent, err := r.resolveUncached(ctx, query, conversation)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Set(key, intent, resolverTTL)
	}
	return intent, nil
}

func (r *Resolver) resolveUncached(ctx context.Context, query string, conversation []string) (*models.ParsedIntent, error) {
	user := buildUserTurn(query, conversation)

	req := llm.Request{
		System:      systemPrompt,
		User:        user,
		ForceJSON:   true,
		Temperature: 0.1,
		MaxTokens:   1024,
	}
	completion, err := r.llm.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("intent: llm: %w", err)
	}

	raw, parseErr := parseRaw(completion.Content)
	if parseErr != nil {
		// One corrective re-emit, then give up.
		r.log.Warn().Err(parseErr).Msg("unparseable intent, retrying once")
		req.User = user + "\n\n" + retryPrompt
		completion, err = r.llm.Complete(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("intent: llm retry: %w", err)
		}
		raw, parseErr = parseRaw(completion.Content)
		if parseErr != nil {
			return nil, &UnparseableError{Detail: parseErr.Error()}
		}
	}

	intent, err := r.postprocess(raw)
	if err != nil {
		return nil, err
	}
	r.log.Debug().
		Str("backend", completion.Provider).
		Int("indicators", len(intent.Indicators)).
		Int("geos", len(intent.Geography)).
		Msg("intent resolved")
	return intent, nil
}

// parseRaw extracts the JSON object from the completion text, tolerant
// of surrounding fences or prose.
func parseRaw(content string) (*rawIntent, error) {
	s := strings.TrimSpace(content)
	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	}
	if i := strings.LastIndex(s, "}"); i >= 0 {
		s = s[:i+1]
	}
	var raw rawIntent
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	if len(raw.Indicators) == 0 {
		return nil, fmt.Errorf("no indicators in intent")
	}
	return &raw, nil
}

func buildUserTurn(query string, conversation []string) string {
	if len(conversation) == 0 {
		return query
	}
	tail := conversation
	if len(tail) > conversationTail {
		tail = tail[len(tail)-conversationTail:]
	}
	var b strings.Builder
	b.WriteString("Earlier turns:\n")
	for _, turn := range tail {
		b.WriteString("- ")
		b.WriteString(turn)
		b.WriteByte('\n')
	}
	b.WriteString("\nCurrent question: ")
	b.WriteString(query)
	return b.String()
}

func cacheKey(query string, conversation []string) string {
	h := sha256.New()
	h.Write([]byte(query))
	tail := conversation
	if len(tail) > conversationTail {
		tail = tail[len(tail)-conversationTail:]
	}
	for _, turn := range tail {
		h.Write([]byte{0})
		h.Write([]byte(turn))
	}
	return "intent:" + hex.EncodeToString(h.Sum(nil))
}

// UnparseableError means the model failed to emit valid intent JSON
// twice. The API maps it to a client-visible 422.
type UnparseableError struct {
	Detail string
}

func (e *UnparseableError) Error() string {
	return "intent: model output unparseable: " + e.Detail
}

// UnknownGeographyError means a mentioned place could not be resolved.
type UnknownGeographyError struct {
	Name string
}

func (e *UnknownGeographyError) Error() string {
	return fmt.Sprintf("intent: unknown geography %q", e.Name)
}
