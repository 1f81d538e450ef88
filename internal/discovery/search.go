// Package discovery finds UPnP devices with SSDP, live on the network or in
// packet captures.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/ipv4"

	"github.com/InfraSecConsult/upnp-control-go/internal/version"
	liblayers "github.com/InfraSecConsult/upnp-control-go/lib/layers"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

const (
	DefaultSearchTarget = "ssdp:all"
	DefaultMX           = 2
	DefaultTimeout      = 3 * time.Second
	DefaultAttempts     = 2
)

var registerOnce sync.Once

func registerLayers() {
	registerOnce.Do(liblayers.InitLayerSSDP)
}

// SearchOptions configure an M-SEARCH round.
type SearchOptions struct {
	Target      string        // ST header, ssdp:all when empty
	MX          int           // seconds devices may delay their answer
	Timeout     time.Duration // how long responses are collected
	Attempts    int           // M-SEARCH datagrams sent, UDP being lossy
	Interface   string        // outgoing multicast interface name, system default when empty
	Destination string        // multicast group, overridable for unicast searches
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.Target == "" {
		o.Target = DefaultSearchTarget
	}
	if o.MX < 1 {
		o.MX = DefaultMX
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Attempts < 1 {
		o.Attempts = DefaultAttempts
	}
	if o.Destination == "" {
		o.Destination = liblayers.SSDPMulticastAddress
	}
	return o
}

// EncodeSearch renders an M-SEARCH datagram.
func EncodeSearch(target string, mx int) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	msg := liblayers.NewSearchRequest(target, mx)
	msg.Headers["USER-AGENT"] = version.UserAgent()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, msg); err != nil {
		return nil, fmt.Errorf("failed to encode M-SEARCH: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeDatagram extracts the discovery record of one SSDP datagram.
func DecodeDatagram(data []byte, source string, seenAt time.Time) (model.DiscoveryRecord, bool) {
	var msg liblayers.SSDP
	if err := msg.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		log.Debug().Err(err).Str("source", source).Msg("Ignoring undecodable SSDP datagram")
		return model.DiscoveryRecord{}, false
	}
	rec, ok := msg.DiscoveryRecord()
	if !ok {
		return model.DiscoveryRecord{}, false
	}
	rec.Source = source
	rec.SeenAt = seenAt
	return rec, true
}

// Search multicasts M-SEARCH requests and collects the responses until the
// timeout elapses or ctx is done.
func Search(ctx context.Context, opts SearchOptions) ([]model.DiscoveryRecord, error) {
	opts = opts.withDefaults()

	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("failed to open SSDP socket: %w", err)
	}
	defer conn.Close()

	pc := ipv4.NewPacketConn(conn)
	if opts.Interface != "" {
		ifi, err := net.InterfaceByName(opts.Interface)
		if err != nil {
			return nil, fmt.Errorf("unknown interface %q: %w", opts.Interface, err)
		}
		if err := pc.SetMulticastInterface(ifi); err != nil {
			return nil, fmt.Errorf("failed to select interface %s: %w", opts.Interface, err)
		}
	}
	if err := pc.SetMulticastTTL(2); err != nil {
		log.Debug().Err(err).Msg("Could not set multicast TTL")
	}

	dst, err := net.ResolveUDPAddr("udp4", opts.Destination)
	if err != nil {
		return nil, fmt.Errorf("invalid SSDP destination %q: %w", opts.Destination, err)
	}
	payload, err := EncodeSearch(opts.Target, opts.MX)
	if err != nil {
		return nil, err
	}
	for i := 0; i < opts.Attempts; i++ {
		if _, err := pc.WriteTo(payload, nil, dst); err != nil {
			return nil, fmt.Errorf("failed to send M-SEARCH: %w", err)
		}
	}
	log.Debug().Str("st", opts.Target).Str("destination", dst.String()).Int("attempts", opts.Attempts).Msg("Sent M-SEARCH")

	deadline := time.Now().Add(opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := pc.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = pc.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	var records []model.DiscoveryRecord
	buf := make([]byte, 65535)
	for {
		n, _, src, err := pc.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				break
			}
			return records, fmt.Errorf("failed to read SSDP response: %w", err)
		}
		source := ""
		if ua, ok := src.(*net.UDPAddr); ok {
			source = ua.IP.String()
		}
		if rec, ok := DecodeDatagram(buf[:n], source, time.Now()); ok {
			records = append(records, rec)
		}
	}

	log.Info().Str("st", opts.Target).Int("records", len(records)).Msg("SSDP search finished")
	return records, nil
}
