// Package notify sends notifications when a service changes status.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jandubois/healthmon/internal/probe"
)

// Channel is a notification channel.
type Channel interface {
	Send(ctx context.Context, msg *Message) error
	Type() string
}

// Message contains notification details.
type Message struct {
	Title    string
	Body     string
	Priority Priority
	Tags     []string

	TargetID string
	Status   probe.Status
	At       time.Time
	// Link points at the target's health endpoint; empty when no link base is set.
	Link string
}

// Priority levels for notifications.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// StatusChange represents a service status transition between two snapshots.
type StatusChange struct {
	TargetID  string
	Name      string
	OldStatus probe.Status
	NewStatus probe.Status
	Detail    string
	At        time.Time
}

// FormatStatusChange creates a notification message for a status change.
func FormatStatusChange(change *StatusChange) *Message {
	priority := PriorityNormal
	switch change.NewStatus {
	case probe.StatusOffline:
		priority = PriorityUrgent
	case probe.StatusDegraded:
		priority = PriorityHigh
	}

	name := change.Name
	if name == "" {
		name = change.TargetID
	}

	title := fmt.Sprintf("[%s] %s", change.NewStatus, name)
	body := fmt.Sprintf("%s → %s", change.OldStatus, change.NewStatus)
	if change.Detail != "" {
		body += ": " + change.Detail
	}

	tags := []string{string(change.NewStatus)}
	if change.NewStatus == probe.StatusOnline {
		tags = append(tags, "recovery")
	}

	return &Message{
		Title:    title,
		Body:     body,
		Priority: priority,
		Tags:     tags,
		TargetID: change.TargetID,
		Status:   change.NewStatus,
		At:       change.At,
	}
}

// TargetLink returns the health URL for id under base, or "" without a base.
func TargetLink(base, id string) string {
	if base == "" {
		return ""
	}
	return strings.TrimSuffix(base, "/") + "/health/" + url.PathEscape(id)
}

// post sends req and maps an HTTP error status to an error naming service.
func post(client *http.Client, req *http.Request, service string) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s request: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s returned status %d", service, resp.StatusCode)
	}
	return nil
}

// describe summarizes a result for a notification body.
func describe(r probe.Result) string {
	if r.Error != nil {
		return *r.Error
	}
	if r.StatusCode != nil {
		return fmt.Sprintf("HTTP %d", *r.StatusCode)
	}
	return ""
}
