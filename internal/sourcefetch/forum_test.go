package sourcefetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchDiscussions_ConvertsAndPaginates(t *testing.T) {
	pages := [][]byte{
		[]byte(`{"data":{"repository":{"discussions":{
			"pageInfo": {"hasNextPage": true, "endCursor": "cursor1"},
			"nodes": [
				{"id":"d1","title":"Crash on startup","body":"It crashes","url":"https://x/1",
				 "createdAt":"2026-01-01T00:00:00Z","author":{"login":"alice"},
				 "answer":{"id":"a1","body":"Upgrade the driver","author":{"login":"bob"},"createdAt":"2026-01-02T00:00:00Z"},
				 "comments":{"nodes":[{"id":"c1","body":"Same here","author":{"login":"carol"},"createdAt":"2026-01-01T01:00:00Z"}]}}
			]
		}}}}`),
		[]byte(`{"data":{"repository":{"discussions":{
			"pageInfo": {"hasNextPage": false, "endCursor": ""},
			"nodes": [
				{"id":"d2","title":"Second","body":"Body two","url":"https://x/2",
				 "createdAt":"2026-01-03T00:00:00Z","author":null,
				 "answer":null, "comments":{"nodes":[]}}
			]
		}}}}`),
	}
	call := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Fatalf("missing auth header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(pages[call])
		call++
	}))
	defer srv.Close()

	f := NewForumFetcher("tok")
	f.HTTPClient = srv.Client()
	// redirect the fetcher at the test server by overriding the URL via a
	// transport that rewrites the host, since githubGraphQLURL is a const.
	f.HTTPClient.Transport = rewriteHostTransport{target: srv.URL}

	discussions, err := f.FetchDiscussions(context.Background(), "owner", "repo", "", 2)
	if err != nil {
		t.Fatalf("FetchDiscussions: %v", err)
	}
	if len(discussions) != 2 {
		t.Fatalf("expected 2 discussions, got %d", len(discussions))
	}

	d1 := discussions[0]
	if d1.Author != "alice" {
		t.Fatalf("author = %q", d1.Author)
	}
	if len(d1.Comments) != 1 || d1.Comments[0].Author != "carol" {
		t.Fatalf("unexpected comments: %+v", d1.Comments)
	}
	if d1.Answer == nil || d1.Answer.Author != "bob" {
		t.Fatalf("unexpected answer: %+v", d1.Answer)
	}

	msgs := d1.ToMessages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages (OP+comment+answer), got %d", len(msgs))
	}
	if msgs[0].MessageID != "d1" {
		t.Fatalf("first message should be the OP, got %q", msgs[0].MessageID)
	}
	if msgs[2].Content[:17] != "[ACCEPTED ANSWER]" {
		t.Fatalf("last message missing accepted-answer marker: %q", msgs[2].Content)
	}

	d2 := discussions[1]
	if d2.Author != "ghost" {
		t.Fatalf("missing author should default to ghost, got %q", d2.Author)
	}
	if d2.Answer != nil {
		t.Fatalf("expected no answer for d2")
	}
}

func TestFetchDiscussions_StopsAtLimitEvenWithMorePages(t *testing.T) {
	page := []byte(`{"data":{"repository":{"discussions":{
		"pageInfo": {"hasNextPage": true, "endCursor": "c"},
		"nodes": [
			{"id":"d1","title":"t","body":"b","url":"u","createdAt":"2026-01-01T00:00:00Z",
			 "author":{"login":"a"},"answer":null,"comments":{"nodes":[]}}
		]
	}}}}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(page)
	}))
	defer srv.Close()

	f := NewForumFetcher("tok")
	f.HTTPClient = srv.Client()
	f.HTTPClient.Transport = rewriteHostTransport{target: srv.URL}

	discussions, err := f.FetchDiscussions(context.Background(), "owner", "repo", "", 1)
	if err != nil {
		t.Fatalf("FetchDiscussions: %v", err)
	}
	if len(discussions) != 1 {
		t.Fatalf("expected fetch to stop at limit, got %d", len(discussions))
	}
}

func TestFetchDiscussions_GraphQLErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"errors": []map[string]any{{"message": "bad query"}}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer srv.Close()

	f := NewForumFetcher("tok")
	f.HTTPClient = srv.Client()
	f.HTTPClient.Transport = rewriteHostTransport{target: srv.URL}

	_, err := f.FetchDiscussions(context.Background(), "owner", "repo", "", 1)
	if err == nil {
		t.Fatalf("expected graphql error to propagate")
	}
}

func TestToMessages_SkipsAnswerAlreadyInComments(t *testing.T) {
	d := Discussion{
		ID: "d1", Title: "t", Body: "b", Author: "a",
		Comments: []discussionComment{{ID: "shared", Body: "x", Author: "c"}},
		Answer:   &discussionComment{ID: "shared", Body: "x", Author: "c"},
	}
	msgs := d.ToMessages()
	if len(msgs) != 2 {
		t.Fatalf("expected OP+comment only (answer already present), got %d", len(msgs))
	}
}

// rewriteHostTransport redirects every request to target regardless of the
// original URL, letting tests point the fetcher's hardcoded GraphQL URL at
// an httptest server.
type rewriteHostTransport struct {
	target string
}

func (t rewriteHostTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	u, err := req.URL.Parse(t.target)
	if err != nil {
		return nil, err
	}
	req.URL = u
	req.Host = u.Host
	return http.DefaultTransport.RoundTrip(req)
}
