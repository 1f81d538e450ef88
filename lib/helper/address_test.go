package helper

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostFromLocation(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     string
		wantErr  bool
	}{
		{"ipv4 with port", "http://10.0.0.5:80/A", "10.0.0.5", false},
		{"hostname", "http://renderer.local/desc.xml", "renderer.local", false},
		{"ipv6", "http://[fe80::1]:49152/desc.xml", "fe80::1", false},
		{"empty", "", "", true},
		{"no host", "/desc.xml", "", true},
		{"garbage", "http://%zz", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HostFromLocation(tt.location)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveReference(t *testing.T) {
	tests := []struct {
		name string
		base string
		ref  string
		want string
	}{
		{"absolute path", "http://10.0.0.5:1400/xml/device_description.xml", "/MediaRenderer/AVTransport/Control", "http://10.0.0.5:1400/MediaRenderer/AVTransport/Control"},
		{"relative path", "http://10.0.0.5:1400/xml/device_description.xml", "avt/control", "http://10.0.0.5:1400/xml/avt/control"},
		{"absolute url", "http://10.0.0.5:1400/desc.xml", "http://10.0.0.6:80/ctl", "http://10.0.0.6:80/ctl"},
		{"url base", "http://10.0.0.5:8080/", "ctl", "http://10.0.0.5:8080/ctl"},
		{"whitespace", "http://10.0.0.5/desc.xml", "  /ctl\n", "http://10.0.0.5/ctl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveReference(tt.base, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ResolveReference("http://10.0.0.5/", "")
	assert.Error(t, err)
}

func TestPrivateIPv4(t *testing.T) {
	mustCIDR := func(s string) net.Addr {
		ip, ipNet, err := net.ParseCIDR(s)
		require.NoError(t, err)
		ipNet.IP = ip
		return ipNet
	}

	addrs := []net.Addr{
		mustCIDR("127.0.0.1/8"),
		mustCIDR("fe80::1/64"),
		mustCIDR("8.8.4.4/24"),
		mustCIDR("192.168.1.20/24"),
		mustCIDR("10.0.0.9/8"),
	}

	ip, ok := PrivateIPv4(addrs)
	require.True(t, ok)
	assert.Equal(t, "192.168.1.20", ip.String())

	_, ok = PrivateIPv4([]net.Addr{mustCIDR("127.0.0.1/8"), mustCIDR("8.8.4.4/24")})
	assert.False(t, ok)

	_, ok = PrivateIPv4(nil)
	assert.False(t, ok)
}
