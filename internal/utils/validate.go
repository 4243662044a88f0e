package utils

import (
	"net"
	"strings"
)

// IsPlausibleIP reports whether val has the syntactic shape of an IPv4 or
// IPv6 address. It does not decide whether the address is routable or
// otherwise meaningful; that judgement belongs to the upstream provider.
func IsPlausibleIP(val string) bool {
	return net.ParseIP(strings.TrimSpace(val)) != nil
}

// IsTrustedIP reports whether remoteAddr matches an entry of the
// comma-separated trustedList (plain addresses or CIDR ranges).
func IsTrustedIP(remoteAddr string, trustedList string) bool {
	clientIP := net.ParseIP(remoteAddr)
	if clientIP == nil {
		return false
	}

	for _, item := range strings.Split(trustedList, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		if strings.Contains(item, "/") {
			_, subnet, err := net.ParseCIDR(item)
			if err == nil && subnet.Contains(clientIP) {
				return true
			}
		} else if item == remoteAddr {
			return true
		}
	}
	return false
}
