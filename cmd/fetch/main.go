// Command fetch is the operational CLI for the forum-platform pull
// fetcher: it queries a discussion host's GraphQL surface
// for one repository's discussions and republishes each as a
// pre-threaded batch into the stream buffer, so a slow or skipped
// scheduled poll can be backfilled by hand. The periodic poller in
// internal/sourcefetch does not use the buffer; it hands each discussion
// to the batch processor directly.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/threadloom/threadloom/internal/sourcefetch"
	"github.com/threadloom/threadloom/internal/streambuffer"
)

const (
	exitOK            = 0
	exitInvalidArgs   = 1
	exitMissingCreds  = 2
	sourceTypeGitHub  = "github"
	defaultFetchLimit = 100
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		limit    int
		all      bool
		category string
		dryRun   bool
	)

	exitCode := exitOK
	cmd := &cobra.Command{
		Use:           "fetch <owner/repo>",
		Short:         "Pull discussions from a repository and publish them into the ingestion buffer",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, fetchArgs []string) error {
			ownerRepo := fetchArgs[0]
			owner, repo, ok := splitOwnerRepo(ownerRepo)
			if !ok {
				exitCode = exitInvalidArgs
				return fmt.Errorf("fetch: %q is not in owner/repo form", ownerRepo)
			}
			if limit > 0 && all {
				exitCode = exitInvalidArgs
				return fmt.Errorf("fetch: --limit and --all are mutually exclusive")
			}

			token := os.Getenv("FORUM_TOKEN")
			if token == "" {
				exitCode = exitMissingCreds
				return fmt.Errorf("fetch: FORUM_TOKEN is not set")
			}

			fetchLimit := limit
			if all {
				fetchLimit = 1 << 20 // effectively unbounded; FetchDiscussions pages until exhausted
			} else if fetchLimit == 0 {
				fetchLimit = defaultFetchLimit
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			fetcher := sourcefetch.NewForumFetcher(token)

			categoryID := ""
			if category != "" {
				cats, err := fetcher.FetchCategories(ctx, owner, repo)
				if err != nil {
					return fmt.Errorf("fetch: list categories: %w", err)
				}
				for _, c := range cats {
					if strings.EqualFold(c.Name, category) {
						categoryID = c.ID
						break
					}
				}
				if categoryID == "" {
					exitCode = exitInvalidArgs
					return fmt.Errorf("fetch: category %q not found in %s/%s", category, owner, repo)
				}
			}

			discussions, err := fetcher.FetchDiscussions(ctx, owner, repo, categoryID, fetchLimit)
			if err != nil {
				return fmt.Errorf("fetch: fetch discussions: %w", err)
			}

			if dryRun {
				for _, d := range discussions {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d messages\n", d.ID, d.Title, len(d.ToMessages()))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "dry-run: %d discussions would be published\n", len(discussions))
				return nil
			}

			redisAddr := os.Getenv("REDIS_ADDR")
			if redisAddr == "" {
				redisAddr = "localhost:6379"
			}
			client := redis.NewClient(&redis.Options{Addr: redisAddr})
			defer client.Close()
			buffer := streambuffer.New(client)

			published := 0
			for _, d := range discussions {
				channelScope := fmt.Sprintf("%s/%s#%s", owner, repo, d.ID)
				for _, msg := range d.ToMessages() {
					if _, err := buffer.Publish(ctx, sourceTypeGitHub, channelScope, msg); err != nil {
						return fmt.Errorf("fetch: publish message %s: %w", msg.MessageID, err)
					}
					published++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d messages across %d discussions\n", published, len(discussions))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of discussions to fetch")
	cmd.Flags().BoolVar(&all, "all", false, "fetch every discussion, paginating until exhausted")
	cmd.Flags().StringVar(&category, "category", "", "restrict to a single discussion category by name")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be published without touching the ingestion buffer")

	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitCode == exitOK {
			exitCode = exitInvalidArgs
		}
		return exitCode
	}
	return exitOK
}

func splitOwnerRepo(s string) (owner, repo string, ok bool) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
