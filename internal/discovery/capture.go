package discovery

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/rs/zerolog/log"

	liblayers "github.com/InfraSecConsult/upnp-control-go/lib/layers"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type captureSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

func openCapture(r io.Reader) (captureSource, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}
	if bytes.Equal(magic, pcapngMagic) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

// ReadCapture extracts the SSDP search responses and alive notifications of a
// pcap or pcapng file.
func ReadCapture(path string) ([]model.DiscoveryRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	return ReadCaptureFrom(f)
}

// ReadCaptureFrom is ReadCapture for an already open capture stream.
func ReadCaptureFrom(r io.Reader) ([]model.DiscoveryRecord, error) {
	src, err := openCapture(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	registerLayers()

	packetSource := gopacket.NewPacketSource(src, src.LinkType())
	packetSource.DecodeOptions.Lazy = true

	var records []model.DiscoveryRecord
	packets := 0
	for packet := range packetSource.Packets() {
		packets++
		ssdpLayer := packet.Layer(liblayers.LayerTypeSSDP)
		if ssdpLayer == nil {
			continue
		}
		rec, ok := ssdpLayer.(*liblayers.SSDP).DiscoveryRecord()
		if !ok {
			continue
		}
		if nl := packet.NetworkLayer(); nl != nil {
			rec.Source = nl.NetworkFlow().Src().String()
		}
		rec.SeenAt = packet.Metadata().Timestamp
		records = append(records, rec)
	}

	log.Info().Int("packets", packets).Int("records", len(records)).Msg("Read SSDP records from capture")
	return records, nil
}
