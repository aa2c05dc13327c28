package sourcefetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/threadloom/threadloom/internal/worker"
)

type recordingProcessor struct {
	mu      sync.Mutex
	batches []worker.Batch
}

func (p *recordingProcessor) Process(ctx context.Context, batch worker.Batch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, batch)
	return nil
}

func (p *recordingProcessor) snapshot() []worker.Batch {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]worker.Batch, len(p.batches))
	copy(out, p.batches)
	return out
}

const onePageDiscussion = `{"data":{"repository":{"discussions":{
	"pageInfo": {"hasNextPage": false, "endCursor": ""},
	"nodes": [
		{"id":"d1","title":"Build fails","body":"npm ci fails","url":"https://x/1",
		 "createdAt":"2026-01-01T00:00:00Z","author":{"login":"alice"},
		 "answer":null,
		 "comments":{"nodes":[{"id":"c1","body":"fixed it, use node 20","author":{"login":"bob"},"createdAt":"2026-01-01T01:00:00Z"}]}}
	]
}}}}`

func TestForumPoller_PollOnceDispatchesOneBatchPerDiscussion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(onePageDiscussion))
	}))
	defer srv.Close()

	f := NewForumFetcher("tok")
	f.HTTPClient = srv.Client()
	f.HTTPClient.Transport = rewriteHostTransport{target: srv.URL}

	proc := &recordingProcessor{}
	poller := &ForumPoller{
		Fetcher:   f,
		Repos:     []string{"acme/widgets"},
		Processor: proc,
	}

	poller.pollOnce(context.Background(), 10)

	batches := proc.snapshot()
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	b := batches[0]
	if b.SourceType != SourceTypeGitHub {
		t.Errorf("SourceType = %q, want %q", b.SourceType, SourceTypeGitHub)
	}
	if b.ServerScope != "acme/widgets" {
		t.Errorf("ServerScope = %q, want acme/widgets", b.ServerScope)
	}
	if b.ChannelScope != "acme/widgets#d1" {
		t.Errorf("ChannelScope = %q, want acme/widgets#d1", b.ChannelScope)
	}
	if len(b.Messages) != 2 {
		t.Fatalf("got %d messages, want 2 (OP + comment)", len(b.Messages))
	}
}

func TestForumPoller_SkipsMalformedRepoScope(t *testing.T) {
	proc := &recordingProcessor{}
	poller := &ForumPoller{
		Fetcher:   NewForumFetcher("tok"),
		Repos:     []string{"not-owner-slash-repo"},
		Processor: proc,
	}

	poller.pollOnce(context.Background(), 10)

	if len(proc.snapshot()) != 0 {
		t.Fatalf("expected no batches dispatched for a malformed repo scope")
	}
}

func TestForumPoller_RunRespectsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"repository":{"discussions":{"pageInfo":{"hasNextPage":false,"endCursor":""},"nodes":[]}}}}`))
	}))
	defer srv.Close()

	f := NewForumFetcher("tok")
	f.HTTPClient = srv.Client()
	f.HTTPClient.Transport = rewriteHostTransport{target: srv.URL}

	poller := &ForumPoller{
		Fetcher:    f,
		Repos:      []string{"acme/widgets"},
		Processor:  &recordingProcessor{},
		PollPeriod: time.Hour,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := poller.Run(ctx)
	if err == nil {
		t.Fatal("expected Run to return an error when ctx is canceled")
	}
}

func TestParseRepoList(t *testing.T) {
	got := ParseRepoList(" acme/widgets ,, acme/gadgets,")
	want := []string{"acme/widgets", "acme/gadgets"}
	if len(got) != len(want) {
		t.Fatalf("ParseRepoList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ParseRepoList()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
