package orchestrator

import (
	"context"

	"github.com/seenimoa/macroquery/pkg/models"
)

// EventType enumerates the closed set of progress events. Clients must
// tolerate unknown future types.
type EventType string

const (
	EventStep    EventType = "step"
	EventData    EventType = "data"
	EventWarning EventType = "warning"
	EventError   EventType = "error"
	EventDone    EventType = "done"
)

// Step statuses reported on step events.
const (
	StatusStarted  = "started"
	StatusOK       = "ok"
	StatusFailed   = "failed"
	StatusCacheHit = "cache-hit"
)

// Pipeline stage names, in execution order.
const (
	StepParse       = "parse"
	StepIndexLookup = "index-lookup"
	StepRoute       = "route"
	StepFetch       = "fetch"
	StepNormalize   = "normalize"
	StepCacheStore  = "cache-store"
)

// Event is one progress message on the stream. Fields beyond Type are
// populated per type: step events carry Step/Status/DurationMS, data
// events carry Result, warning events carry Message, error events carry
// Kind/Message/Provider.
type Event struct {
	Type       EventType           `json:"type"`
	Step       string              `json:"step,omitempty"`
	Status     string              `json:"status,omitempty"`
	DurationMS int64               `json:"duration_ms,omitempty"`
	Provider   string              `json:"provider,omitempty"`
	Kind       string              `json:"kind,omitempty"`
	Message    string              `json:"message,omitempty"`
	Result     *models.QueryResult `json:"result,omitempty"`
}

// emitter delivers events to an optional channel. A nil channel makes
// every emit a no-op, so the non-streaming path shares the pipeline
// code. Sends block until the consumer reads or the context ends;
// slow consumers slow the pipeline rather than losing events.
type emitter struct {
	ch chan<- Event
}

func (e emitter) emit(ctx context.Context, ev Event) {
	if e.ch == nil {
		return
	}
	select {
	case e.ch <- ev:
	case <-ctx.Done():
	}
}
