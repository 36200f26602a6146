package security

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Schemes accepted for each kind of upstream.
var (
	HTTPSchemes = []string{"http", "https"}
	RPCSchemes  = []string{"http", "https", "ws", "wss"}
)

// resolveTimeout bounds the DNS lookup done while validating a URL.
const resolveTimeout = 3 * time.Second

// lookupHost is swapped in tests.
var lookupHost = net.DefaultResolver.LookupHost

// blockedHosts are cloud metadata and loopback names that must never be
// fetched by the scorer.
var blockedHosts = []string{"localhost", "metadata.google.internal", "metadata.google"}

// ParseUpstreamURL checks the URL shape and returns its host. With no
// schemes given, only http and https are accepted.
func ParseUpstreamURL(rawURL string, schemes ...string) (string, error) {
	if len(schemes) == 0 {
		schemes = HTTPSchemes
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format")
	}
	if !slices.Contains(schemes, strings.ToLower(u.Scheme)) {
		return "", fmt.Errorf("URL scheme must be one of %s", strings.Join(schemes, ", "))
	}
	if u.Host == "" || u.Hostname() == "" {
		return "", fmt.Errorf("URL must have a host")
	}
	return u.Hostname(), nil
}

// ValidateEndpointURL checks that an upstream such as the price oracle is a
// public endpoint. Private, loopback, link-local and unspecified addresses
// are rejected, both as literals and after DNS resolution.
func ValidateEndpointURL(rawURL string, schemes ...string) error {
	host, err := ParseUpstreamURL(rawURL, schemes...)
	if err != nil {
		return err
	}

	for _, b := range blockedHosts {
		if strings.EqualFold(host, b) {
			return fmt.Errorf("URL host %q is not allowed", host)
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip)
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	addrs, err := lookupHost(ctx, host)
	if err != nil {
		return fmt.Errorf("cannot resolve URL host: %s", host)
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil {
			if err := checkIP(ip); err != nil {
				return fmt.Errorf("URL host %q resolves to blocked address: %v", host, err)
			}
		}
	}
	return nil
}

func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("loopback addresses are not allowed")
	case ip.IsPrivate():
		return fmt.Errorf("private addresses are not allowed")
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("link-local addresses are not allowed")
	case ip.IsUnspecified():
		return fmt.Errorf("unspecified addresses are not allowed")
	}
	return nil
}
