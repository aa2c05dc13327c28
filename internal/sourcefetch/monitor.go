package sourcefetch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ChannelLister supplies the monitored channel set for one source type.
// *repository.ChannelRepo satisfies it.
type ChannelLister interface {
	MonitoredExternalIDs(ctx context.Context, sourceType string) (map[string]struct{}, error)
}

// ChannelMonitor keeps an in-memory copy of the monitored channel set for
// one source type, refreshed periodically from the channel registry, and
// exposes the IsMonitored predicate both chat ingress paths gate on.
// Until the first successful refresh the set is empty and the gate fails
// closed — an unregistered deployment ingests nothing, the same posture
// the consent filter takes. A failed refresh keeps the previous set.
type ChannelMonitor struct {
	Lister     ChannelLister
	SourceType string

	// RefreshPeriod is how often the set is re-fetched. Defaults to
	// 5 minutes when unset.
	RefreshPeriod time.Duration

	mu  sync.RWMutex
	set map[string]struct{}
}

// IsMonitored reports whether channelID is currently opted in to
// ingestion. serverID is accepted to match the ingress predicate shape
// but unused — channels are registered by (source_type, external_id),
// and an external id never moves between servers.
func (m *ChannelMonitor) IsMonitored(serverID, channelID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.set[channelID]
	return ok
}

// Run refreshes the set immediately and then on every RefreshPeriod tick
// until ctx is canceled.
func (m *ChannelMonitor) Run(ctx context.Context) error {
	period := m.RefreshPeriod
	if period <= 0 {
		period = 5 * time.Minute
	}

	m.refreshOnce(ctx)

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.refreshOnce(ctx)
		}
	}
}

func (m *ChannelMonitor) refreshOnce(ctx context.Context) {
	set, err := m.Lister.MonitoredExternalIDs(ctx, m.SourceType)
	if err != nil {
		slog.Error("sourcefetch.ChannelMonitor: refresh failed, keeping previous set",
			"source_type", m.SourceType, "error", err)
		return
	}

	m.mu.Lock()
	m.set = set
	m.mu.Unlock()
	slog.Debug("sourcefetch.ChannelMonitor: refreshed monitored channels",
		"source_type", m.SourceType, "count", len(set))
}
