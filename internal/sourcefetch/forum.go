package sourcefetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/threadloom/threadloom/internal/identity"
	"github.com/threadloom/threadloom/internal/model"
)

// SourceTypeGitHub is the source_type published for forum-platform
// (GitHub Discussions) batches.
const SourceTypeGitHub = "github"

const (
	githubGraphQLURL = "https://api.github.com/graphql"

	discussionsQuery = `
query($owner: String!, $repo: String!, $first: Int!, $after: String, $categoryId: ID) {
  repository(owner: $owner, name: $repo) {
    discussions(first: $first, after: $after, categoryId: $categoryId, orderBy: {field: UPDATED_AT, direction: DESC}) {
      pageInfo { hasNextPage, endCursor }
      nodes {
        id
        title
        body
        url
        createdAt
        author { login }
        answer { id, body, author { login }, createdAt }
        category { id, name }
        comments(first: 50) {
          nodes { id, body, author { login }, createdAt }
        }
      }
    }
  }
}`

	categoriesQuery = `
query($owner: String!, $repo: String!) {
  repository(owner: $owner, name: $repo) {
    discussionCategories(first: 25) {
      nodes { id, name }
    }
  }
}`
)

// DiscussionCategory is one discussion category returned by FetchCategories.
type DiscussionCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Discussion is one fetched GitHub Discussion, including its comments and
// accepted answer if any.
type Discussion struct {
	ID        string
	Title     string
	Body      string
	URL       string
	Author    string
	CreatedAt string
	Comments  []discussionComment
	Answer    *discussionComment
}

type discussionComment struct {
	ID        string
	Body      string
	Author    string
	CreatedAt string
}

// ForumFetcher pulls GitHub Discussions via the GraphQL API and converts
// them into pre-threaded RawMessage batches.
type ForumFetcher struct {
	Token      string
	HTTPClient *http.Client
}

// NewForumFetcher creates a ForumFetcher with a default HTTP client.
func NewForumFetcher(token string) *ForumFetcher {
	return &ForumFetcher{Token: token, HTTPClient: http.DefaultClient}
}

func (f *ForumFetcher) graphql(ctx context.Context, query string, variables map[string]any) (map[string]any, error) {
	body, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return nil, fmt.Errorf("sourcefetch.ForumFetcher: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, githubGraphQLURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sourcefetch.ForumFetcher: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sourcefetch.ForumFetcher: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sourcefetch.ForumFetcher: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sourcefetch.ForumFetcher: unexpected status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var decoded struct {
		Data   map[string]any   `json:"data"`
		Errors []map[string]any `json:"errors"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("sourcefetch.ForumFetcher: decode response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("sourcefetch.ForumFetcher: graphql errors: %v", decoded.Errors)
	}
	return decoded.Data, nil
}

// FetchCategories lists the discussion categories for owner/repo.
func (f *ForumFetcher) FetchCategories(ctx context.Context, owner, repo string) ([]DiscussionCategory, error) {
	data, err := f.graphql(ctx, categoriesQuery, map[string]any{"owner": owner, "repo": repo})
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("sourcefetch.ForumFetcher.FetchCategories: %w", err)
	}
	var parsed struct {
		Repository struct {
			DiscussionCategories struct {
				Nodes []DiscussionCategory `json:"nodes"`
			} `json:"discussionCategories"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("sourcefetch.ForumFetcher.FetchCategories: %w", err)
	}
	return parsed.Repository.DiscussionCategories.Nodes, nil
}

type ghAuthor struct {
	Login string `json:"login"`
}

type discussionNode struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	URL       string     `json:"url"`
	CreatedAt string     `json:"createdAt"`
	Author    *ghAuthor  `json:"author"`
	Answer    *struct {
		ID        string    `json:"id"`
		Body      string    `json:"body"`
		Author    *ghAuthor `json:"author"`
		CreatedAt string    `json:"createdAt"`
	} `json:"answer"`
	Comments struct {
		Nodes []struct {
			ID        string    `json:"id"`
			Body      string    `json:"body"`
			Author    *ghAuthor `json:"author"`
			CreatedAt string    `json:"createdAt"`
		} `json:"nodes"`
	} `json:"comments"`
}

// FetchDiscussions fetches up to limit discussions from owner/repo,
// optionally filtered to categoryID, paginating automatically.
func (f *ForumFetcher) FetchDiscussions(ctx context.Context, owner, repo, categoryID string, limit int) ([]Discussion, error) {
	var discussions []Discussion
	var cursor string
	remaining := limit

	for remaining > 0 {
		pageSize := remaining
		if pageSize > 50 {
			pageSize = 50
		}

		variables := map[string]any{"owner": owner, "repo": repo, "first": pageSize}
		if categoryID != "" {
			variables["categoryId"] = categoryID
		}
		if cursor != "" {
			variables["after"] = cursor
		}

		data, err := f.graphql(ctx, discussionsQuery, variables)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("sourcefetch.ForumFetcher.FetchDiscussions: %w", err)
		}
		var parsed struct {
			Repository struct {
				Discussions struct {
					PageInfo struct {
						HasNextPage bool   `json:"hasNextPage"`
						EndCursor   string `json:"endCursor"`
					} `json:"pageInfo"`
					Nodes []discussionNode `json:"nodes"`
				} `json:"discussions"`
			} `json:"repository"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("sourcefetch.ForumFetcher.FetchDiscussions: %w", err)
		}

		nodes := parsed.Repository.Discussions.Nodes
		if len(nodes) == 0 {
			break
		}

		for _, n := range nodes {
			if n.Body == "" {
				continue
			}
			d := Discussion{
				ID:        n.ID,
				Title:     n.Title,
				Body:      n.Body,
				URL:       n.URL,
				Author:    login(n.Author),
				CreatedAt: n.CreatedAt,
			}
			for _, c := range n.Comments.Nodes {
				if c.Body == "" {
					continue
				}
				d.Comments = append(d.Comments, discussionComment{
					ID: c.ID, Body: c.Body, Author: login(c.Author), CreatedAt: c.CreatedAt,
				})
			}
			if n.Answer != nil {
				d.Answer = &discussionComment{
					ID: n.Answer.ID, Body: n.Answer.Body, Author: login(n.Answer.Author), CreatedAt: n.Answer.CreatedAt,
				}
			}
			discussions = append(discussions, d)
		}

		remaining -= len(nodes)
		if parsed.Repository.Discussions.PageInfo.HasNextPage && remaining > 0 {
			cursor = parsed.Repository.Discussions.PageInfo.EndCursor
		} else {
			break
		}
	}

	return discussions, nil
}

func login(author *ghAuthor) string {
	if author == nil {
		return "ghost"
	}
	return author.Login
}

// ToMessages converts a Discussion into a pre-threaded RawMessage batch:
// the OP becomes the first message, each comment follows in order, and an
// accepted answer not already present among the comments is appended with
// an "[ACCEPTED ANSWER]" marker, matching the forum's own UI convention.
func (d Discussion) ToMessages() []model.RawMessage {
	messages := make([]model.RawMessage, 0, len(d.Comments)+2)

	messages = append(messages, model.RawMessage{
		MessageID:    d.ID,
		AuthorHandle: identity.Hash(d.Author),
		Content:      fmt.Sprintf("# %s\n\n%s", d.Title, d.Body),
		Timestamp:    parseGitHubTime(d.CreatedAt),
		HasCode:      containsCodeFence(d.Body),
	})

	seen := map[string]bool{d.ID: true}
	for _, c := range d.Comments {
		messages = append(messages, model.RawMessage{
			MessageID:    c.ID,
			AuthorHandle: identity.Hash(c.Author),
			Content:      c.Body,
			Timestamp:    parseGitHubTime(c.CreatedAt),
			ReplyTo:      d.ID,
			HasCode:      containsCodeFence(c.Body),
		})
		seen[c.ID] = true
	}

	if d.Answer != nil && !seen[d.Answer.ID] {
		content := "[ACCEPTED ANSWER]\n\n" + d.Answer.Body
		messages = append(messages, model.RawMessage{
			MessageID:    d.Answer.ID,
			AuthorHandle: identity.Hash(d.Answer.Author),
			Content:      content,
			Timestamp:    parseGitHubTime(d.Answer.CreatedAt),
			ReplyTo:      d.ID,
			HasCode:      containsCodeFence(content),
		})
	}

	return messages
}

// parseGitHubTime parses the RFC3339 timestamps the GraphQL API returns
// for createdAt fields. An unparseable or empty value yields the zero
// time rather than an error — timestamp ordering degrades gracefully
// since skip_disentangle already preserves forum batches as one thread.
func parseGitHubTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
