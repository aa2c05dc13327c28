package sourcefetch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/threadloom/threadloom/internal/worker"
)

// BatchProcessor runs one fully-assembled batch through consent
// filtering, anonymization, and the extraction graph. *worker.Processor
// satisfies it; tests substitute a recording stub.
type BatchProcessor interface {
	Process(ctx context.Context, batch worker.Batch) error
}

// ForumPoller periodically pulls discussions for a fixed set of
// owner/repo scopes and feeds each one straight to a BatchProcessor. A
// discussion is already a complete, pre-threaded conversation by the time
// ToMessages produces it, so there is no accumulate-over-time reason to
// route it through the stream buffer the way chat messages are — it is
// dispatched as one whole batch per poll.
type ForumPoller struct {
	Fetcher    *ForumFetcher
	Repos      []string // "owner/repo" scopes to poll
	PollPeriod time.Duration
	Processor  BatchProcessor

	// FetchLimit bounds how many discussions are pulled per repo per
	// poll tick (newest first, per FetchDiscussions' orderBy). Defaults
	// to 25 when unset.
	FetchLimit int
}

// Run polls every repo in Repos on PollPeriod until ctx is canceled. A
// fetch or dispatch failure for one repo is logged and does not stop the
// poller from trying the remaining repos or the next tick.
func (p *ForumPoller) Run(ctx context.Context) error {
	period := p.PollPeriod
	if period <= 0 {
		period = 15 * time.Minute
	}
	limit := p.FetchLimit
	if limit <= 0 {
		limit = 25
	}

	p.pollOnce(ctx, limit)

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.pollOnce(ctx, limit)
		}
	}
}

func (p *ForumPoller) pollOnce(ctx context.Context, limit int) {
	for _, scope := range p.Repos {
		owner, repo, ok := splitScope(scope)
		if !ok {
			slog.Warn("sourcefetch.ForumPoller: skipping malformed repo scope", "scope", scope)
			continue
		}

		discussions, err := p.Fetcher.FetchDiscussions(ctx, owner, repo, "", limit)
		if err != nil {
			slog.Error("sourcefetch.ForumPoller: fetch failed", "scope", scope, "error", err)
			continue
		}

		for _, d := range discussions {
			batch := worker.Batch{
				SourceType:   SourceTypeGitHub,
				ServerScope:  scope,
				ChannelScope: fmt.Sprintf("%s#%s", scope, d.ID),
				Messages:     d.ToMessages(),
			}
			if err := p.Processor.Process(ctx, batch); err != nil {
				slog.Error("sourcefetch.ForumPoller: process failed",
					"scope", scope, "discussion", d.ID, "error", err)
			}
		}
	}
}

func splitScope(s string) (owner, repo string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(s), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ParseRepoList splits a comma-separated FORUM_REPOS value into
// individual "owner/repo" scopes, trimming whitespace and dropping empty
// entries.
func ParseRepoList(s string) []string {
	var repos []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			repos = append(repos, part)
		}
	}
	return repos
}
