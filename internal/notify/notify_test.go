package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jandubois/healthmon/internal/probe"
	"github.com/jandubois/healthmon/internal/snapshot"
)

func snap(seq uint64, results map[string]probe.Result) *snapshot.Snapshot {
	return &snapshot.Snapshot{Seq: seq, Results: results}
}

func TestFormatStatusChange(t *testing.T) {
	tests := []struct {
		name     string
		change   StatusChange
		priority Priority
		title    string
		body     string
		tags     []string
	}{
		{
			name:     "goes offline",
			change:   StatusChange{TargetID: "sonarr", Name: "Sonarr", OldStatus: probe.StatusOnline, NewStatus: probe.StatusOffline, Detail: "timeout"},
			priority: PriorityUrgent,
			title:    "[offline] Sonarr",
			body:     "online → offline: timeout",
			tags:     []string{"offline"},
		},
		{
			name:     "degrades",
			change:   StatusChange{TargetID: "plex", OldStatus: probe.StatusOnline, NewStatus: probe.StatusDegraded, Detail: "HTTP 503"},
			priority: PriorityHigh,
			title:    "[degraded] plex",
			body:     "online → degraded: HTTP 503",
			tags:     []string{"degraded"},
		},
		{
			name:     "recovers",
			change:   StatusChange{TargetID: "plex", Name: "Plex", OldStatus: probe.StatusOffline, NewStatus: probe.StatusOnline},
			priority: PriorityNormal,
			title:    "[online] Plex",
			body:     "offline → online",
			tags:     []string{"online", "recovery"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := FormatStatusChange(&tt.change)
			assert.Equal(t, tt.priority, msg.Priority)
			assert.Equal(t, tt.title, msg.Title)
			assert.Equal(t, tt.body, msg.Body)
			assert.Equal(t, tt.tags, msg.Tags)
		})
	}
}

func TestChanges(t *testing.T) {
	now := time.Now()
	prev := snap(1, map[string]probe.Result{
		"a": probe.Completed("A", 200, true, time.Millisecond, now),
		"b": probe.Completed("B", 200, true, time.Millisecond, now),
	})
	next := snap(2, map[string]probe.Result{
		"a": probe.Completed("A", 200, true, time.Millisecond, now),
		"b": probe.Offline("B", probe.FaultConnection, probe.ErrorConnectionFailure, now),
		"c": probe.Completed("C", 200, true, time.Millisecond, now),
	})

	assert.Nil(t, Changes(nil, next), "first snapshot is not a change")

	changes := Changes(prev, next)
	require.Len(t, changes, 1)
	assert.Equal(t, "b", changes[0].TargetID)
	assert.Equal(t, probe.StatusOnline, changes[0].OldStatus)
	assert.Equal(t, probe.StatusOffline, changes[0].NewStatus)
	assert.Equal(t, probe.ErrorConnectionFailure, changes[0].Detail)
	assert.Equal(t, now, changes[0].At)
}

func TestTargetLink(t *testing.T) {
	assert.Equal(t, "", TargetLink("", "plex"))
	assert.Equal(t, "http://mon.local:5002/health/plex", TargetLink("http://mon.local:5002/", "plex"))
	assert.Equal(t, "http://mon.local/health/a%2Fb", TargetLink("http://mon.local", "a/b"))
}

type fakeChannel struct {
	mu   sync.Mutex
	msgs []*Message
	err  error
}

func (f *fakeChannel) Type() string { return "fake" }

func (f *fakeChannel) Send(ctx context.Context, msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.err
}

func TestDispatcherObserve(t *testing.T) {
	now := time.Now()
	ok := &fakeChannel{}
	failing := &fakeChannel{err: errors.New("down")}
	d := NewDispatcher(ok, failing)
	d.LinkBase = "http://mon.local"

	prev := snap(1, map[string]probe.Result{"a": probe.Completed("A", 200, true, time.Millisecond, now)})
	next := snap(2, map[string]probe.Result{"a": probe.Completed("A", 500, false, time.Millisecond, now)})

	require.NoError(t, d.Observe(context.Background(), nil, prev))
	require.NoError(t, d.Observe(context.Background(), prev, next))
	d.Wait()

	require.Len(t, ok.msgs, 1)
	assert.Equal(t, "[degraded] A", ok.msgs[0].Title)
	assert.Equal(t, "a", ok.msgs[0].TargetID)
	assert.Equal(t, probe.StatusDegraded, ok.msgs[0].Status)
	assert.Equal(t, "http://mon.local/health/a", ok.msgs[0].Link)
	assert.Len(t, failing.msgs, 1)
}

func TestNtfySend(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewNtfyChannel(srv.URL+"/", "media", "tk")
	err := ch.Send(context.Background(), &Message{
		Title:    "[offline] Plex",
		Body:     "online → offline",
		Priority: PriorityUrgent,
		Tags:     []string{"offline"},
		TargetID: "plex",
		Status:   probe.StatusOffline,
		Link:     "http://mon.local/health/plex",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tk", auth)
	assert.Equal(t, "media", got["topic"])
	assert.Equal(t, "[offline] Plex", got["title"])
	assert.Equal(t, float64(5), got["priority"])
	assert.Equal(t, []any{"rotating_light", "offline", "plex"}, got["tags"])
	assert.Equal(t, "http://mon.local/health/plex", got["click"])
}

func TestNtfySendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewNtfyChannel(srv.URL, "media", "").Send(context.Background(), &Message{})
	assert.ErrorContains(t, err, "ntfy returned status 403")
}

func TestPushoverSend(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
	}))
	defer srv.Close()

	ch := NewPushoverChannel("app", "user")
	ch.APIURL = srv.URL
	at := time.Unix(1760000000, 0)
	require.NoError(t, ch.Send(context.Background(), &Message{
		Title:    "t",
		Body:     "b",
		Priority: PriorityUrgent,
		TargetID: "sonarr",
		At:       at,
		Link:     "http://mon.local/health/sonarr",
	}))

	assert.Equal(t, "app", form["token"])
	assert.Equal(t, "user", form["user"])
	assert.Equal(t, "2", form["priority"])
	assert.Equal(t, "60", form["retry"])
	assert.Equal(t, "3600", form["expire"])
	assert.Equal(t, "1760000000", form["timestamp"])
	assert.Equal(t, "http://mon.local/health/sonarr", form["url"])
	assert.Equal(t, "Health of sonarr", form["url_title"])
}

func TestPushoverFormWithoutLink(t *testing.T) {
	form := NewPushoverChannel("app", "user").form(&Message{Priority: PriorityHigh})
	assert.Equal(t, "1", form.Get("priority"))
	assert.Empty(t, form.Get("retry"))
	assert.Empty(t, form.Get("url"))
	assert.Empty(t, form.Get("timestamp"))
}
