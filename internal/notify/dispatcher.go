package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jandubois/healthmon/internal/snapshot"
)

// Dispatcher compares consecutive snapshots and sends a message to every
// channel for each service whose status changed.
type Dispatcher struct {
	channels []Channel
	wg       sync.WaitGroup

	// LinkBase is the public base URL of the health API, used for
	// click-through links. Empty disables links.
	LinkBase string
}

// NewDispatcher creates a dispatcher for the given channels.
func NewDispatcher(channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels}
}

// Name identifies the dispatcher in logs.
func (d *Dispatcher) Name() string {
	return "notify"
}

// Len returns the number of configured channels.
func (d *Dispatcher) Len() int {
	return len(d.channels)
}

// Changes lists the status transitions from prev to next.
// The first snapshot (prev == nil) produces no changes.
func Changes(prev, next *snapshot.Snapshot) []*StatusChange {
	if prev == nil || next == nil {
		return nil
	}

	var changes []*StatusChange
	for _, id := range next.IDs() {
		cur := next.Results[id]
		old, ok := prev.Results[id]
		if !ok || old.Status == cur.Status {
			continue
		}
		changes = append(changes, &StatusChange{
			TargetID:  id,
			Name:      cur.Name,
			OldStatus: old.Status,
			NewStatus: cur.Status,
			Detail:    describe(cur),
			At:        cur.LastChecked,
		})
	}
	return changes
}

// Observe sends notifications for every change between prev and next.
// Sends run in the background; Wait blocks until they finish.
func (d *Dispatcher) Observe(ctx context.Context, prev, next *snapshot.Snapshot) error {
	if len(d.channels) == 0 {
		return nil
	}

	for _, change := range Changes(prev, next) {
		slog.Info("status change detected",
			"target", change.TargetID,
			"old_status", change.OldStatus,
			"new_status", change.NewStatus,
		)
		d.NotifyStatusChange(ctx, change)
	}
	return nil
}

// NotifyStatusChange sends one status change to all channels.
func (d *Dispatcher) NotifyStatusChange(ctx context.Context, change *StatusChange) {
	msg := FormatStatusChange(change)
	msg.Link = TargetLink(d.LinkBase, change.TargetID)

	for _, channel := range d.channels {
		d.wg.Add(1)
		go func(ch Channel) {
			defer d.wg.Done()
			if err := ch.Send(ctx, msg); err != nil {
				slog.Error("notification send failed",
					"channel_type", ch.Type(),
					"target", change.TargetID,
					"error", err,
				)
			} else {
				slog.Debug("notification sent",
					"channel_type", ch.Type(),
					"target", change.TargetID,
					"status", change.NewStatus,
				)
			}
		}(channel)
	}
}

// Wait blocks until all in-flight notifications are done.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
