package filter

import (
	"net/netip"
	"testing"
)

func TestSources(t *testing.T) {
	s, err := NewSources([]string{"10.0.0.0/8", "192.168.1.1", "2001:db8::/32"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testCases := []struct {
		addr string
		want bool
	}{{
		addr: "10.1.2.3",
		want: true,
	}, {
		addr: "192.168.1.1",
		want: true,
	}, {
		addr: "192.168.1.2",
		want: false,
	}, {
		addr: "2001:db8::42",
		want: true,
	}, {
		addr: "::ffff:10.1.2.3",
		want: true,
	}}

	for _, tc := range testCases {
		got := s.Allowed(netip.MustParseAddr(tc.addr))
		if got != tc.want {
			t.Errorf("Allowed(%s) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func TestSources_emptyAllowsAll(t *testing.T) {
	s, err := NewSources(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !s.Allowed(netip.MustParseAddr("203.0.113.7")) {
		t.Fatal("empty allow-list must allow everything")
	}
}

func TestSources_badCIDR(t *testing.T) {
	if _, err := NewSources([]string{"10.0.0.0/33"}); err == nil {
		t.Fatal("expected an error")
	}

	if _, err := NewSources([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestDomains(t *testing.T) {
	d := NewDomains([]string{"evil.test", "*.ads.example"})

	testCases := []struct {
		host string
		want bool
	}{{
		host: "evil.test",
		want: true,
	}, {
		host: "EVIL.Test",
		want: true,
	}, {
		host: "notevil.test",
		want: false,
	}, {
		host: "banner.ads.example",
		want: true,
	}, {
		host: "ads.example",
		want: false,
	}}

	for _, tc := range testCases {
		got := d.Blocked(tc.host)
		if got != tc.want {
			t.Errorf("Blocked(%s) = %v, want %v", tc.host, got, tc.want)
		}
	}
}
