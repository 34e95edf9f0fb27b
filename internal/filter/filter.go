// Package filter provides the security gates applied to every connection:
// the source-network allow-list and the destination-domain deny-list.
package filter

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/IGLOU-EU/go-wildcard"
)

// MatchWildcards checks if the string str matches any of the specified
// wildcards.
func MatchWildcards(str string, wildcards []string) (ok bool) {
	for _, w := range wildcards {
		if wildcard.MatchSimple(w, str) {
			return true
		}
	}

	return false
}

// Sources is the set of source networks that are allowed to connect.  An
// empty set allows every source.
type Sources struct {
	prefixes []netip.Prefix
}

// NewSources parses the CIDR list into a *Sources.  A bare IP address is
// accepted as a single-address network.
func NewSources(networks []string) (s *Sources, err error) {
	s = &Sources{}

	for _, n := range networks {
		var p netip.Prefix
		if strings.Contains(n, "/") {
			p, err = netip.ParsePrefix(n)
		} else {
			var addr netip.Addr
			addr, err = netip.ParseAddr(n)
			if err == nil {
				p = netip.PrefixFrom(addr, addr.BitLen())
			}
		}

		if err != nil {
			return nil, fmt.Errorf("filter: parsing network %q: %w", n, err)
		}

		s.prefixes = append(s.prefixes, p)
	}

	return s, nil
}

// Allowed reports whether the source address may connect.
func (s *Sources) Allowed(addr netip.Addr) (ok bool) {
	if len(s.prefixes) == 0 {
		return true
	}

	addr = addr.Unmap()
	for _, p := range s.prefixes {
		if p.Contains(addr) {
			return true
		}
	}

	return false
}

// Domains is the set of destination domains that connections are refused
// to.  Entries are matched case-insensitively, a plain entry matches
// exactly, and "*" wildcards are honored.
type Domains struct {
	patterns []string
}

// NewDomains creates a *Domains from the configured block entries.
func NewDomains(blocked []string) (d *Domains) {
	d = &Domains{}

	for _, b := range blocked {
		d.patterns = append(d.patterns, strings.ToLower(b))
	}

	return d
}

// Blocked reports whether connecting to host is refused.  The check is done
// on the name as the client sent it, before any DNS resolution.
func (d *Domains) Blocked(host string) (ok bool) {
	return MatchWildcards(strings.ToLower(host), d.patterns)
}
