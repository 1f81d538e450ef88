package sink

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/upnp-control-go/internal/events"
	"github.com/InfraSecConsult/upnp-control-go/internal/repository"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// DefaultTopic is the topic prefix used when none is configured.
const DefaultTopic = "upnp/events"

// message is the JSON document published for each notification.
type message struct {
	SID        string               `json:"sid"`
	Seq        uint32               `json:"seq"`
	Properties model.PropertyChange `json:"properties"`
	RemoteAddr string               `json:"remote_addr,omitempty"`
	ReceivedAt time.Time            `json:"received_at"`
}

// Forwarder publishes property changes to <topic>/<sid>.
type Forwarder struct {
	publisher Publisher
	topic     string
}

// NewForwarder returns a Forwarder publishing below topic.
func NewForwarder(publisher Publisher, topic string) *Forwarder {
	topic = strings.TrimRight(topic, "/")
	if topic == "" {
		topic = DefaultTopic
	}
	return &Forwarder{publisher: publisher, topic: topic}
}

// Topic returns the topic a notification with the given SID is published to.
func (f *Forwarder) Topic(sid string) string {
	if sid == "" {
		sid = "unknown"
	}
	// wildcards and level separators are not allowed inside a topic level
	sid = strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(sid)
	return f.topic + "/" + sid
}

func (f *Forwarder) Notify(n model.Notification) {
	payload, err := json.Marshal(message{
		SID:        n.SID,
		Seq:        n.Seq,
		Properties: n.Properties,
		RemoteAddr: n.RemoteAddr,
		ReceivedAt: n.ReceivedAt,
	})
	if err != nil {
		log.Error().Err(err).Str("sid", n.SID).Msg("Failed to encode event")
		return
	}
	topic := f.Topic(n.SID)
	if err := f.publisher.Publish(topic, payload); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to publish event")
	}
}

// Store persists every notification in a repository.
type Store struct {
	repo repository.Repository
}

// NewStore returns a callback writing notifications to repo.
func NewStore(repo repository.Repository) *Store {
	return &Store{repo: repo}
}

func (s *Store) Notify(n model.Notification) {
	if err := s.repo.AddEvent(n); err != nil {
		log.Error().Err(err).Str("sid", n.SID).Msg("Failed to store event")
	}
}

// FanOut returns a callback handing each notification to every non-nil
// callback in order.
func FanOut(callbacks ...events.Callback) events.Callback {
	var targets []events.Callback
	for _, cb := range callbacks {
		if cb != nil {
			targets = append(targets, cb)
		}
	}
	return events.CallbackFunc(func(n model.Notification) {
		for _, cb := range targets {
			cb.Notify(n)
		}
	})
}
