package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/threadloom/threadloom/internal/sourcefetch"
)

// ChatWebhook returns a handler for POST /webhooks/chat — the HTTP push
// ingress a chat-platform bridge process delivers individual messages
// through, sharing sourcefetch.IngestChatEvent's filtering and hashing
// behavior with the pubsub-backed subscriber. The handler dispatches the
// publish asynchronously and returns 202 immediately: the caller (a bot
// process relaying gateway events) should not block on our downstream
// buffer write.
func ChatWebhook(pub sourcefetch.Publisher, sourceType string, monitored func(serverID, channelID string) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var evt sourcefetch.ChatEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]string{"error": "malformed event body"})
			return
		}

		w.WriteHeader(http.StatusAccepted)

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := sourcefetch.IngestChatEvent(ctx, pub, sourceType, monitored, evt); err != nil {
				slog.Error("handler.ChatWebhook: publish failed", "channel", evt.ChannelID, "error", err)
			}
		}()
	}
}
