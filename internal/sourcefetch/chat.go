// Package sourcefetch adapts external chat platforms and forums into the
// pipeline's RawMessage shape. Chat ingestion is push (a pubsub
// subscription); forum ingestion is pull (a GraphQL client).
package sourcefetch

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/threadloom/threadloom/internal/identity"
	"github.com/threadloom/threadloom/internal/model"
)

// ChatEvent is the platform-agnostic shape a chat-platform adapter
// publishes to the ingestion topic. The specific chat SDK (Discord,
// Slack, ...) is an external collaborator that produces these; this
// package never imports a platform SDK directly.
type ChatEvent struct {
	ServerID    string    `json:"server_id"`
	ChannelID   string    `json:"channel_id"`
	MessageID   string    `json:"message_id"`
	AuthorID    string    `json:"author_id"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	ReplyToID   string    `json:"reply_to_id,omitempty"`
	MentionIDs  []string  `json:"mention_ids,omitempty"`
	IsBotAuthor bool      `json:"is_bot_author"`
}

// Publisher is what chat.go hands each resolved (server, channel, message)
// triple to. serverScope is the guild/org-level scope consent grants and
// exports are keyed on (see model.Channel.ServerScope); channelScope is
// the narrower per-channel queue key streambuffer.Buffer shards on.
type Publisher interface {
	Publish(ctx context.Context, sourceType, serverScope, channelScope string, msg model.RawMessage) (bool, error)
}

// ChatSubscriber pulls ChatEvents off a pubsub subscription and republishes
// them into the stream buffer as RawMessages, hashing author and mention
// ids on the way in so no raw platform identity crosses the boundary.
type ChatSubscriber struct {
	Subscription *pubsub.Subscription
	Publisher    Publisher
	SourceType   string // e.g. "discord"

	// MonitoredChannels reports whether a channel scope is currently
	// opted in to ingestion. A nil func monitors every channel.
	MonitoredChannels func(serverID, channelID string) bool
}

// Run blocks receiving events until ctx is canceled. Each event is acked
// only after a successful publish; a publish failure nacks so pubsub
// redelivers, matching at-least-once delivery semantics.
func (s *ChatSubscriber) Run(ctx context.Context) error {
	return s.Subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var evt ChatEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			slog.Error("sourcefetch.ChatSubscriber: malformed event, dropping", "error", err)
			msg.Ack()
			return
		}

		published, err := s.handleEvent(ctx, evt)
		if err != nil {
			slog.Error("sourcefetch.ChatSubscriber: publish failed, will redeliver",
				"channel", evt.ChannelID, "error", err)
			msg.Nack()
			return
		}
		_ = published
		msg.Ack()
	})
}

// handleEvent applies the bot/monitoring filters and republishes evt as a
// RawMessage. It reports whether the event was actually published (false
// for a filtered-out event) so callers can distinguish a skip from a send.
func (s *ChatSubscriber) handleEvent(ctx context.Context, evt ChatEvent) (bool, error) {
	return IngestChatEvent(ctx, s.Publisher, s.SourceType, s.MonitoredChannels, evt)
}

// IngestChatEvent applies the bot/monitoring filters and republishes evt
// as a RawMessage through pub. It is the shared entry point for both the
// pubsub-backed ChatSubscriber and the direct HTTP webhook ingress
// (internal/handler.ChatWebhook), so the two push paths never drift on
// filtering or hashing behavior. It reports whether the event was
// actually published (false for a filtered-out event).
func IngestChatEvent(ctx context.Context, pub Publisher, sourceType string, monitored func(serverID, channelID string) bool, evt ChatEvent) (bool, error) {
	if evt.IsBotAuthor {
		return false, nil
	}
	if monitored != nil && !monitored(evt.ServerID, evt.ChannelID) {
		return false, nil
	}

	raw := model.RawMessage{
		MessageID:    evt.MessageID,
		AuthorHandle: identity.Hash(evt.AuthorID),
		Content:      evt.Content,
		Timestamp:    evt.Timestamp,
		ReplyTo:      evt.ReplyToID,
		Mentions:     hashMentions(evt.MentionIDs),
		HasCode:      containsCodeFence(evt.Content),
	}

	if _, err := pub.Publish(ctx, sourceType, evt.ServerID, evt.ChannelID, raw); err != nil {
		return false, err
	}
	return true, nil
}

func hashMentions(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	hashed := make([]string, len(ids))
	for i, id := range ids {
		hashed[i] = identity.Hash(id)
	}
	return hashed
}

func containsCodeFence(content string) bool {
	return strings.Contains(content, "```")
}
