package sourcefetch

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeLister struct {
	sets  []map[string]struct{}
	errs  []error
	calls int
}

func (f *fakeLister) MonitoredExternalIDs(ctx context.Context, sourceType string) (map[string]struct{}, error) {
	i := f.calls
	if i >= len(f.sets) {
		i = len(f.sets) - 1
	}
	f.calls++
	return f.sets[i], f.errs[i]
}

func TestChannelMonitor_FailsClosedBeforeFirstRefresh(t *testing.T) {
	m := &ChannelMonitor{Lister: &fakeLister{}, SourceType: "discord"}
	if m.IsMonitored("guild-1", "chan-1") {
		t.Fatal("expected no channel monitored before the first refresh")
	}
}

func TestChannelMonitor_RefreshPopulatesSet(t *testing.T) {
	lister := &fakeLister{
		sets: []map[string]struct{}{{"chan-1": {}}},
		errs: []error{nil},
	}
	m := &ChannelMonitor{Lister: lister, SourceType: "discord"}

	m.refreshOnce(context.Background())

	if !m.IsMonitored("guild-1", "chan-1") {
		t.Fatal("expected chan-1 to be monitored after refresh")
	}
	if m.IsMonitored("guild-1", "chan-2") {
		t.Fatal("expected chan-2 to stay unmonitored")
	}
}

func TestChannelMonitor_FailedRefreshKeepsPreviousSet(t *testing.T) {
	lister := &fakeLister{
		sets: []map[string]struct{}{{"chan-1": {}}, nil},
		errs: []error{nil, errors.New("database unavailable")},
	}
	m := &ChannelMonitor{Lister: lister, SourceType: "discord"}

	m.refreshOnce(context.Background())
	m.refreshOnce(context.Background())

	if !m.IsMonitored("guild-1", "chan-1") {
		t.Fatal("expected a failed refresh to keep the previous set")
	}
}

func TestChannelMonitor_RunRespectsContextCancellation(t *testing.T) {
	lister := &fakeLister{
		sets: []map[string]struct{}{{"chan-1": {}}},
		errs: []error{nil},
	}
	m := &ChannelMonitor{Lister: lister, SourceType: "discord", RefreshPeriod: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if !m.IsMonitored("guild-1", "chan-1") {
		t.Fatal("expected the initial refresh to have run before cancellation")
	}
}
