package controlpoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/upnp-control-go/lib/helper"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

const (
	MethodSubscribe   = "SUBSCRIBE"
	MethodUnsubscribe = "UNSUBSCRIBE"

	// DefaultSubscriptionTimeout is requested when Subscribe is given no timeout.
	DefaultSubscriptionTimeout = 30 * time.Minute
)

// Subscription is an event subscription granted by a device. Renewing it
// before Timeout elapses is up to the caller.
type Subscription struct {
	SID         string        `json:"sid" yaml:"sid"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"` // 0 when the device granted an infinite subscription
	EventSubURL string        `json:"event_sub_url" yaml:"event_sub_url"`
}

// Subscribe asks the device to send NOTIFY requests for this service to callbackURL.
func (cp *ControlPoint) Subscribe(ctx context.Context, callbackURL string, timeout time.Duration) (*Subscription, error) {
	if cp.eventSubURL == "" {
		return nil, fmt.Errorf("service %s does not publish events", cp.ServiceType())
	}
	if timeout <= 0 {
		timeout = DefaultSubscriptionTimeout
	}

	req, err := http.NewRequestWithContext(ctx, MethodSubscribe, cp.eventSubURL, nil)
	if err != nil {
		return nil, &model.TransportError{URL: cp.eventSubURL, Err: err}
	}
	req.Header.Set("CALLBACK", "<"+callbackURL+">")
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("TIMEOUT", FormatTimeout(timeout))

	resp, err := cp.do(req)
	if err != nil {
		return nil, err
	}

	sid := strings.TrimSpace(resp.Header.Get("SID"))
	if sid == "" {
		return nil, errors.New("subscription response carries no SID")
	}

	sub := &Subscription{
		SID:         sid,
		Timeout:     ParseTimeout(resp.Header.Get("TIMEOUT")),
		EventSubURL: cp.eventSubURL,
	}
	log.Info().
		Str("service_type", cp.ServiceType()).
		Str("sid", sub.SID).
		Dur("timeout", sub.Timeout).
		Str("callback", callbackURL).
		Msg("Subscribed to events")
	return sub, nil
}

// Unsubscribe cancels the subscription identified by sid.
func (cp *ControlPoint) Unsubscribe(ctx context.Context, sid string) error {
	if cp.eventSubURL == "" {
		return fmt.Errorf("service %s does not publish events", cp.ServiceType())
	}

	req, err := http.NewRequestWithContext(ctx, MethodUnsubscribe, cp.eventSubURL, nil)
	if err != nil {
		return &model.TransportError{URL: cp.eventSubURL, Err: err}
	}
	req.Header.Set("SID", sid)

	if _, err := cp.do(req); err != nil {
		return err
	}
	log.Info().Str("service_type", cp.ServiceType()).Str("sid", sid).Msg("Unsubscribed from events")
	return nil
}

func (cp *ControlPoint) do(req *http.Request) (*http.Response, error) {
	resp, err := cp.http.Do(req)
	if err != nil {
		return nil, &model.TransportError{URL: req.URL.String(), Err: err}
	}
	resp.Body.Close()

	if !helper.IsSuccess(resp.StatusCode) {
		return nil, &model.TransportError{URL: req.URL.String(), StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}
	return resp, nil
}

// FormatTimeout renders a GENA TIMEOUT header value.
func FormatTimeout(d time.Duration) string {
	return "Second-" + strconv.Itoa(int(d/time.Second))
}

// ParseTimeout reads a GENA TIMEOUT header. Infinite and unreadable values yield 0.
func ParseTimeout(header string) time.Duration {
	v, ok := strings.CutPrefix(strings.TrimSpace(header), "Second-")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
