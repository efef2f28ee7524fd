package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// PushoverAPIURL is the Pushover messages endpoint.
const PushoverAPIURL = "https://api.pushover.net/1/messages.json"

// Emergency messages repeat every retry interval until acknowledged or expired.
const (
	pushoverRetry  = 60 * time.Second
	pushoverExpire = time.Hour
)

var pushoverPriority = map[Priority]string{
	PriorityLow:    "-1",
	PriorityNormal: "0",
	PriorityHigh:   "1",
	PriorityUrgent: "2",
}

// PushoverChannel delivers status changes to one Pushover user.
type PushoverChannel struct {
	APIURL   string
	APIToken string
	UserKey  string
	client   *http.Client
}

// NewPushoverChannel creates a channel for the application token and user key.
func NewPushoverChannel(apiToken, userKey string) *PushoverChannel {
	return &PushoverChannel{
		APIURL:   PushoverAPIURL,
		APIToken: apiToken,
		UserKey:  userKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Type returns the channel type.
func (p *PushoverChannel) Type() string {
	return "pushover"
}

// form encodes msg as a Pushover message request.
func (p *PushoverChannel) form(msg *Message) url.Values {
	form := url.Values{
		"token":    {p.APIToken},
		"user":     {p.UserKey},
		"title":    {msg.Title},
		"message":  {msg.Body},
		"priority": {pushoverPriority[msg.Priority]},
	}
	if msg.Priority == PriorityUrgent {
		form.Set("retry", strconv.Itoa(int(pushoverRetry.Seconds())))
		form.Set("expire", strconv.Itoa(int(pushoverExpire.Seconds())))
	}
	if !msg.At.IsZero() {
		form.Set("timestamp", strconv.FormatInt(msg.At.Unix(), 10))
	}
	if msg.Link != "" {
		form.Set("url", msg.Link)
		form.Set("url_title", "Health of "+msg.TargetID)
	}
	return form
}

// Send delivers msg.
func (p *PushoverChannel) Send(ctx context.Context, msg *Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.APIURL,
		strings.NewReader(p.form(msg).Encode()))
	if err != nil {
		return fmt.Errorf("create pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return post(p.client, req, "pushover")
}
