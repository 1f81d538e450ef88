package lib_layers

import (
	"bufio"
	"errors"
	"fmt"
	"net/textproto"
	"sort"
	"strconv"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

const (
	SSDPPort             = 1900
	SSDPMulticastAddress = "239.255.255.250:1900"

	SSDPMethodSearch = "M-SEARCH"
	SSDPMethodNotify = "NOTIFY"
)

// SSDP represents a Simple Service Discovery Protocol packet
// SSDP is HTTP-like protocol transmitted over UDP for UPnP device discovery
type SSDP struct {
	layers.BaseLayer
	Method     string            // HTTP method (NOTIFY, M-SEARCH), empty for responses
	RequestURI string            // Request URI (usually *)
	Version    string            // HTTP version
	StatusCode int               // HTTP status code (for responses)
	StatusMsg  string            // HTTP status message (for responses)
	Headers    map[string]string // HTTP headers, keys upper-cased
	IsResponse bool              // true if this is a response, false if request
}

// NewSearchRequest builds an M-SEARCH request for the given search target.
// mx is the maximum response delay in seconds the devices may wait.
func NewSearchRequest(st string, mx int) *SSDP {
	if mx < 1 {
		mx = 1
	}
	return &SSDP{
		Method:     SSDPMethodSearch,
		RequestURI: "*",
		Version:    "HTTP/1.1",
		Headers: map[string]string{
			"HOST": SSDPMulticastAddress,
			"MAN":  `"ssdp:discover"`,
			"MX":   strconv.Itoa(mx),
			"ST":   st,
		},
	}
}

// LayerType returns the layer type for SSDP
func (s *SSDP) LayerType() gopacket.LayerType {
	return LayerTypeSSDP
}

// CanDecode returns the set of layer types that this DecodingLayer can decode
func (s *SSDP) CanDecode() gopacket.LayerClass {
	return LayerTypeSSDP
}

// NextLayerType returns the layer type contained by this DecodingLayer
func (s *SSDP) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypePayload
}

// DecodeFromBytes decodes the given bytes into this layer
func (s *SSDP) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	_ = df

	if len(data) == 0 {
		return errors.New("SSDP packet is empty")
	}

	s.BaseLayer = layers.BaseLayer{
		Contents: data,
		Payload:  nil,
	}
	s.Method, s.RequestURI, s.Version, s.StatusMsg = "", "", "", ""
	s.StatusCode = 0
	s.Headers = make(map[string]string)

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(content, "\n")

	firstLine := strings.TrimSpace(lines[0])
	if firstLine == "" {
		return errors.New("SSDP packet has empty first line")
	}

	parts := strings.SplitN(firstLine, " ", 3)
	if strings.HasPrefix(firstLine, "HTTP/") {
		s.IsResponse = true
		s.Version = parts[0]
		if len(parts) >= 2 {
			if code, err := strconv.Atoi(parts[1]); err == nil {
				s.StatusCode = code
			}
		}
		if len(parts) >= 3 {
			s.StatusMsg = parts[2]
		}
	} else {
		s.IsResponse = false
		s.Method = parts[0]
		if len(parts) >= 2 {
			s.RequestURI = parts[1]
		}
		if len(parts) >= 3 {
			s.Version = parts[2]
		}
	}

	tp := textproto.NewReader(bufio.NewReader(strings.NewReader(strings.Join(lines[1:], "\r\n"))))
	for {
		line, err := tp.ReadLine()
		if err != nil || line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		s.Headers[strings.ToUpper(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	return nil
}

// SerializeTo writes the SSDP message as an HTTP-over-UDP datagram.
// Headers are written in sorted order so the output is stable.
func (s *SSDP) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	_ = opts

	var sb strings.Builder
	version := s.Version
	if version == "" {
		version = "HTTP/1.1"
	}
	if s.IsResponse {
		fmt.Fprintf(&sb, "%s %d %s\r\n", version, s.StatusCode, s.StatusMsg)
	} else {
		if s.Method == "" {
			return errors.New("SSDP request has no method")
		}
		uri := s.RequestURI
		if uri == "" {
			uri = "*"
		}
		fmt.Fprintf(&sb, "%s %s %s\r\n", s.Method, uri, version)
	}

	keys := make([]string, 0, len(s.Headers))
	for k := range s.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %s\r\n", k, s.Headers[k])
	}
	sb.WriteString("\r\n")

	out, err := b.PrependBytes(sb.Len())
	if err != nil {
		return err
	}
	copy(out, sb.String())
	return nil
}

// String returns a string representation of the SSDP packet
func (s *SSDP) String() string {
	if s.IsResponse {
		return fmt.Sprintf("SSDP Response %d %s", s.StatusCode, s.StatusMsg)
	}
	return fmt.Sprintf("SSDP Request %s %s", s.Method, s.RequestURI)
}

// GetHeader returns the value of a header (case-insensitive)
func (s *SSDP) GetHeader(name string) (string, bool) {
	value, exists := s.Headers[strings.ToUpper(name)]
	return value, exists
}

// IsAlive returns true if this is a ssdp:alive notification
func (s *SSDP) IsAlive() bool {
	if nts, exists := s.GetHeader("NTS"); exists {
		return strings.EqualFold(nts, "ssdp:alive")
	}
	return false
}

// IsByeBye returns true if this is a ssdp:byebye notification
func (s *SSDP) IsByeBye() bool {
	if nts, exists := s.GetHeader("NTS"); exists {
		return strings.EqualFold(nts, "ssdp:byebye")
	}
	return false
}

// IsSearch returns true if this is an M-SEARCH request
func (s *SSDP) IsSearch() bool {
	return !s.IsResponse && strings.EqualFold(s.Method, SSDPMethodSearch)
}

// IsNotify returns true if this is a NOTIFY request
func (s *SSDP) IsNotify() bool {
	return !s.IsResponse && strings.EqualFold(s.Method, SSDPMethodNotify)
}

// DiscoveryRecord extracts the advertisement carried by a search response or an
// alive notification. Searches, byebyes, error responses and messages without a
// LOCATION do not describe a reachable service and yield false.
func (s *SSDP) DiscoveryRecord() (model.DiscoveryRecord, bool) {
	location, ok := s.GetHeader("LOCATION")
	if !ok || location == "" {
		return model.DiscoveryRecord{}, false
	}

	var st string
	switch {
	case s.IsResponse:
		if s.StatusCode != 200 {
			return model.DiscoveryRecord{}, false
		}
		st, _ = s.GetHeader("ST")
	case s.IsNotify() && s.IsAlive():
		st, _ = s.GetHeader("NT")
	default:
		return model.DiscoveryRecord{}, false
	}
	if st == "" {
		return model.DiscoveryRecord{}, false
	}

	usn, _ := s.GetHeader("USN")
	server, _ := s.GetHeader("SERVER")
	return model.DiscoveryRecord{
		ServiceType: st,
		Location:    location,
		USN:         usn,
		Server:      server,
	}, true
}

// LayerTypeSSDP is the layer type for SSDP packets
var LayerTypeSSDP = gopacket.RegisterLayerType(
	1001,
	gopacket.LayerTypeMetadata{
		Name:    "SSDP",
		Decoder: gopacket.DecodeFunc(decodeSSDP),
	},
)

// decodeSSDP is the decoder function for SSDP packets
func decodeSSDP(data []byte, p gopacket.PacketBuilder) error {
	ssdp := &SSDP{}
	err := ssdp.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}
	p.AddLayer(ssdp)
	return p.NextDecoder(ssdp.NextLayerType())
}

// RegisterSSDP registers the SSDP protocol with the UDP port 1900
func RegisterSSDP() {
	layers.RegisterUDPPortLayerType(SSDPPort, LayerTypeSSDP)
}

// InitLayerSSDP initializes the SSDP layer for gopacket
func InitLayerSSDP() {
	RegisterSSDP()
}
