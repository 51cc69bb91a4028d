package infra

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/seenimoa/macroquery/internal/provider"
)

func testBreakers(threshold uint32) *Breakers {
	return NewBreakers(BreakerConfig{
		FailureThreshold: threshold,
		OpenTimeout:      time.Minute,
		HalfOpenMax:      1,
	}, zerolog.Nop())
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := testBreakers(3)
	fail := func() (any, error) {
		return nil, &provider.NetworkError{Provider: provider.FRED, Err: errors.New("refused")}
	}

	for i := 0; i < 3; i++ {
		if _, err := b.Do(provider.FRED, fail); err == nil {
			t.Fatal("expected failure")
		}
	}
	if !b.Open(provider.FRED) {
		t.Fatal("breaker should be open after 3 consecutive failures")
	}

	// Open breaker short-circuits without invoking fn.
	invoked := false
	_, err := b.Do(provider.FRED, func() (any, error) {
		invoked = true
		return "data", nil
	})
	var co *provider.CircuitOpenError
	if !errors.As(err, &co) {
		t.Errorf("err = %v, want CircuitOpenError", err)
	}
	if invoked {
		t.Error("open breaker must not invoke fn")
	}
}

func TestBreakerIgnoresDataErrors(t *testing.T) {
	b := testBreakers(2)
	dna := func() (any, error) {
		return nil, &provider.DataNotAvailableError{Provider: provider.WorldBank, Indicator: "x"}
	}

	for i := 0; i < 10; i++ {
		_, err := b.Do(provider.WorldBank, dna)
		var d *provider.DataNotAvailableError
		if !errors.As(err, &d) {
			t.Fatalf("taxonomy error must pass through, got %v", err)
		}
	}
	if b.Open(provider.WorldBank) {
		t.Error("data-not-available answers must not trip the breaker")
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := testBreakers(3)
	fail := func() (any, error) {
		return nil, &provider.TimeoutError{Provider: provider.IMF, Err: errors.New("deadline")}
	}
	ok := func() (any, error) { return "data", nil }

	b.Do(provider.IMF, fail)
	b.Do(provider.IMF, fail)
	if v, err := b.Do(provider.IMF, ok); err != nil || v != "data" {
		t.Fatalf("Do = %v, %v", v, err)
	}
	b.Do(provider.IMF, fail)
	b.Do(provider.IMF, fail)
	if b.Open(provider.IMF) {
		t.Error("success should have reset the consecutive-failure count")
	}
}

func TestBreakerStatesIsolatedPerProvider(t *testing.T) {
	b := testBreakers(1)
	b.Do(provider.OECD, func() (any, error) {
		return nil, &provider.UpstreamError{Provider: provider.OECD, Status: 503}
	})

	if !b.Open(provider.OECD) {
		t.Fatal("oecd breaker should be open")
	}
	if b.Open(provider.FRED) {
		t.Error("fred breaker must be unaffected")
	}

	states := b.States()
	if states[provider.OECD] != "open" {
		t.Errorf("states = %v", states)
	}
}
