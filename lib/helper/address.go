package helper

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

// HostFromLocation extracts the host component (without port) of a description URL.
func HostFromLocation(location string) (string, error) {
	if location == "" {
		return "", errors.New("empty location")
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid location %q: %w", location, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("location %q has no host", location)
	}
	return host, nil
}

// ResolveReference resolves a possibly relative URL found in a description
// document. base is the URLBase element when present, otherwise the location
// the document was fetched from.
func ResolveReference(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("empty URL reference")
	}
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid URL reference %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

// PrivateIPv4 returns the first private, non-loopback IPv4 address among addrs.
func PrivateIPv4(addrs []net.Addr) (net.IP, bool) {
	for _, addr := range addrs {
		var ip net.IP
		switch a := addr.(type) {
		case *net.IPNet:
			ip = a.IP
		case *net.IPAddr:
			ip = a.IP
		default:
			continue
		}
		ip4 := ip.To4()
		if ip4 == nil || ip4.IsLoopback() {
			continue
		}
		if ip4.IsPrivate() {
			return ip4, true
		}
	}
	return nil, false
}

// LocalPrivateIPv4 returns a private IPv4 address assigned to this machine.
func LocalPrivateIPv4() (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("list interface addresses: %w", err)
	}
	ip, ok := PrivateIPv4(addrs)
	if !ok {
		return nil, model.ErrNoPrivateAddress
	}
	return ip, nil
}
