package events

import (
	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/upnp-control-go/lib/helper"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// DefaultRecorderSize is how many notifications the default callback keeps.
const DefaultRecorderSize = 64

// Callback receives every parsed notification. It runs on the goroutine
// serving the request and must return promptly.
type Callback interface {
	Notify(n model.Notification)
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(n model.Notification)

func (f CallbackFunc) Notify(n model.Notification) {
	f(n)
}

// Recorder logs notifications and keeps the most recent ones.
type Recorder struct {
	buf *helper.RingBuffer[model.Notification]
}

// NewRecorder returns a Recorder keeping up to size notifications.
func NewRecorder(size int) *Recorder {
	return &Recorder{buf: helper.NewRingBuffer[model.Notification](size)}
}

func (r *Recorder) Notify(n model.Notification) {
	r.buf.Add(n)
	log.Info().
		Str("sid", n.SID).
		Uint32("seq", n.Seq).
		Str("remote_addr", n.RemoteAddr).
		Interface("properties", n.Properties).
		Msg("Received event")
}

// Notifications returns the kept notifications, oldest first.
func (r *Recorder) Notifications() []model.Notification {
	return r.buf.Snapshot()
}

// Last returns the most recent notification.
func (r *Recorder) Last() (model.Notification, bool) {
	return r.buf.Last()
}
