package model

import "time"

// PropertyChange maps evented state variable names to their new textual value.
type PropertyChange map[string]string

// Notification is one GENA NOTIFY request received from a device.
type Notification struct {
	SID        string         `json:"sid,omitempty"`
	Seq        uint32         `json:"seq"`
	NT         string         `json:"nt,omitempty"`
	NTS        string         `json:"nts,omitempty"`
	Properties PropertyChange `json:"properties,omitempty"`
	Body       []byte         `json:"-"`
	RemoteAddr string         `json:"remote_addr,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}
