package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jandubois/healthmon/internal/probe"
)

// ntfy renders tags that match an emoji short code as that emoji.
var ntfyStatusEmoji = map[probe.Status]string{
	probe.StatusOnline:   "white_check_mark",
	probe.StatusDegraded: "warning",
	probe.StatusOffline:  "rotating_light",
}

var ntfyPriority = map[Priority]int{
	PriorityLow:    2,
	PriorityNormal: 3,
	PriorityHigh:   4,
	PriorityUrgent: 5,
}

// ntfyMessage is the JSON publish body; the server routes it by Topic.
type ntfyMessage struct {
	Topic    string   `json:"topic"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Tags     []string `json:"tags,omitempty"`
	Priority int      `json:"priority,omitempty"`
	Click    string   `json:"click,omitempty"`
}

// NtfyChannel publishes status changes to an ntfy topic.
type NtfyChannel struct {
	ServerURL string
	Topic     string
	Token     string
	client    *http.Client
}

// NewNtfyChannel creates a channel for topic.
// An empty serverURL means the public ntfy.sh server.
func NewNtfyChannel(serverURL, topic, token string) *NtfyChannel {
	if serverURL == "" {
		serverURL = "https://ntfy.sh"
	}
	return &NtfyChannel{
		ServerURL: strings.TrimSuffix(serverURL, "/"),
		Topic:     topic,
		Token:     token,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Type returns the channel type.
func (n *NtfyChannel) Type() string {
	return "ntfy"
}

// Send publishes msg. The status emoji leads the tags, and the target id is
// appended so subscribers can filter by service.
func (n *NtfyChannel) Send(ctx context.Context, msg *Message) error {
	var tags []string
	if emoji, ok := ntfyStatusEmoji[msg.Status]; ok {
		tags = append(tags, emoji)
	}
	tags = append(tags, msg.Tags...)
	if msg.TargetID != "" {
		tags = append(tags, msg.TargetID)
	}

	body, err := json.Marshal(ntfyMessage{
		Topic:    n.Topic,
		Title:    msg.Title,
		Message:  msg.Body,
		Tags:     tags,
		Priority: ntfyPriority[msg.Priority],
		Click:    msg.Link,
	})
	if err != nil {
		return fmt.Errorf("marshal ntfy message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.ServerURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create ntfy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.Token != "" {
		req.Header.Set("Authorization", "Bearer "+n.Token)
	}

	return post(n.client, req, "ntfy")
}
