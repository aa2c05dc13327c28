package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
)

func fastSchedule() Schedule {
	return Schedule{
		Delays:  []time.Duration{time.Millisecond, time.Millisecond},
		Ceiling: 5 * time.Millisecond,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), "op", fastSchedule(), func() (int, error) {
		calls++
		return 42, nil
	})
	if err != nil || got != 42 || calls != 1 {
		t.Fatalf("got %d, err %v, calls %d", got, err, calls)
	}
}

func TestDo_NonTransientErrorNotRetried(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), "op", fastSchedule(), func() (int, error) {
		calls++
		return 0, errors.New("invalid shape")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected one call and a propagated error, got calls=%d err=%v", calls, err)
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), "op", fastSchedule(), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("429 rate limit")
		}
		return 7, nil
	})
	if err != nil || got != 7 || calls != 2 {
		t.Fatalf("got %d, err %v, calls %d", got, err, calls)
	}
}

func TestDo_ExhaustsAfterAllAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), "op", fastSchedule(), func() (int, error) {
		calls++
		return 0, errors.New("429 too many requests")
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(nil) {
		t.Fatal("nil should not be transient")
	}
	if !IsTransient(errors.New("RESOURCE_EXHAUSTED")) {
		t.Fatal("RESOURCE_EXHAUSTED should be transient")
	}
	if IsTransient(errors.New("invalid json")) {
		t.Fatal("parse errors should not be transient")
	}
	if !IsTransient(fmt.Errorf("embed: %w", &googleapi.Error{Code: 429, Message: "quota"})) {
		t.Fatal("wrapped googleapi 429 should be transient")
	}
	if IsTransient(&googleapi.Error{Code: 400, Message: "bad request"}) {
		t.Fatal("googleapi 400 should not be transient")
	}
}
