package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/seenimoa/macroquery/pkg/models"
)

// fakeAdapter is a minimal adapter for registry tests.
type fakeAdapter struct {
	info Info
}

func (f *fakeAdapter) Info() Info { return f.info }

func (f *fakeAdapter) Fetch(ctx context.Context, q Query) ([]models.NormalizedSeries, error) {
	return nil, &DataNotAvailableError{Provider: f.info.Name, Indicator: q.Indicator.Label}
}

func (f *fakeAdapter) Ping(ctx context.Context) error { return nil }

func newFake(name string, domains ...string) *fakeAdapter {
	return &fakeAdapter{info: Info{Name: name, Domains: domains}}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(newFake(FRED, DomainMacro)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	a, err := r.Get(FRED)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.Info().Name != FRED {
		t.Errorf("got %q, want %q", a.Info().Name, FRED)
	}

	_, err = r.Get("nope")
	var notReg *ErrNotRegistered
	if !errors.As(err, &notReg) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
	if err := r.Register(&fakeAdapter{}); err == nil {
		t.Error("empty adapter name should be rejected")
	}
}

func TestRegistryDomainIndexOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{WorldBank, IMF, Eurostat} {
		if err := r.Register(newFake(name, DomainMacro)); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}

	got := r.ProvidersFor(DomainMacro)
	want := []string{WorldBank, IMF, Eurostat}
	if len(got) != len(want) {
		t.Fatalf("ProvidersFor = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ProvidersFor[%d] = %q, want %q (registration order)", i, got[i], want[i])
		}
	}

	// Re-registering must not duplicate the domain index.
	if err := r.Register(newFake(IMF, DomainMacro)); err != nil {
		t.Fatalf("re-Register: %v", err)
	}
	if got := r.ProvidersFor(DomainMacro); len(got) != 3 {
		t.Errorf("re-registration duplicated the index: %v", got)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(newFake(OECD, DomainMacro))
	r.Register(newFake(CoinGecko, DomainCrypto))
	r.Register(newFake(BIS, DomainMacro))

	infos := r.List()
	if len(infos) != 3 {
		t.Fatalf("List returned %d entries", len(infos))
	}
	for i := 1; i < len(infos); i++ {
		if infos[i-1].Name > infos[i].Name {
			t.Errorf("List not sorted: %q before %q", infos[i-1].Name, infos[i].Name)
		}
	}
}

func TestRecoverable(t *testing.T) {
	recoverable := []error{
		&DataNotAvailableError{Provider: FRED, Indicator: "gdp"},
		&IndicatorUnknownError{Provider: WorldBank, Indicator: "x"},
		&UpstreamError{Provider: IMF, Status: 500},
		&RateLimitError{Provider: OECD},
		&NetworkError{Provider: BIS, Err: errors.New("refused")},
		&TimeoutError{Provider: Eurostat, Err: context.DeadlineExceeded},
		&CircuitOpenError{Provider: StatCan},
		fmt.Errorf("wrapped: %w", &DataNotAvailableError{Provider: FRED}),
	}
	for _, err := range recoverable {
		if !Recoverable(err) {
			t.Errorf("Recoverable(%v) = false, want true", err)
		}
	}
	if Recoverable(errors.New("programming mistake")) {
		t.Error("untyped errors must not be recoverable")
	}
	if Recoverable(context.Canceled) {
		t.Error("context cancellation must not be recoverable")
	}
}

func TestBreakerFailure(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&NetworkError{Provider: FRED, Err: errors.New("refused")}, true},
		{&TimeoutError{Provider: FRED, Err: context.DeadlineExceeded}, true},
		{&UpstreamError{Provider: FRED, Status: 503}, true},
		{&RateLimitError{Provider: FRED, RetryAfter: time.Second}, true},
		{&UpstreamError{Provider: FRED, Status: 400}, false},
		{&UpstreamError{Provider: FRED, Status: 404}, false},
		{&DataNotAvailableError{Provider: FRED}, false},
		{&IndicatorUnknownError{Provider: FRED}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := BreakerFailure(tt.err); got != tt.want {
			t.Errorf("BreakerFailure(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
