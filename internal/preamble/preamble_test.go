package preamble

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func parse(t *testing.T, raw string, maxSize int) (p *Preamble, br *bufio.Reader) {
	t.Helper()

	br = bufio.NewReader(strings.NewReader(raw))

	p, err := Read(br, maxSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return p, br
}

func TestRead(t *testing.T) {
	raw := "GET http://origin.test/path?x=1 HTTP/1.1\r\n" +
		"Host: origin.test\r\n" +
		"X-Keep: yes\r\n" +
		"\r\n"

	p, _ := parse(t, raw, 1024)

	if p.Method != "GET" || p.Target != "http://origin.test/path?x=1" || p.Proto != "HTTP/1.1" {
		t.Fatalf("bad request line: %+v", p)
	}

	if got := p.Get("host"); got != "origin.test" {
		t.Fatalf("Get(host) = %q", got)
	}

	if !p.Has("x-keep") || p.Has("x-drop") {
		t.Fatal("Has is broken")
	}
}

func TestRead_duplicateHeaders(t *testing.T) {
	raw := "GET http://h/ HTTP/1.1\r\nX-A: one\r\nX-A: two\r\n\r\n"

	p, _ := parse(t, raw, 1024)

	if got := p.Get("X-A"); got != "one, two" {
		t.Fatalf("Get(X-A) = %q", got)
	}
}

func TestRead_residualPreserved(t *testing.T) {
	raw := "CONNECT h:443 HTTP/1.1\r\n\r\nearly payload"

	_, br := parse(t, raw, 1024)

	rest, err := io.ReadAll(br)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if string(rest) != "early payload" {
		t.Fatalf("residual = %q", rest)
	}
}

func TestRead_tooLarge(t *testing.T) {
	raw := "GET http://h/ HTTP/1.1\r\nX-Pad: " + strings.Repeat("a", 100) + "\r\n\r\n"

	_, err := Read(bufio.NewReader(strings.NewReader(raw)), 64)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRead_lineTooLong(t *testing.T) {
	raw := "GET http://h/ HTTP/1.1\r\nX-Pad: " + strings.Repeat("a", 9000) + "\r\n\r\n"

	_, err := Read(bufio.NewReader(strings.NewReader(raw)), 1024*1024)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRead_malformed(t *testing.T) {
	testCases := []string{
		"GET http://h/\r\n\r\n",
		"GET http://h/ FTP/1.0\r\n\r\n",
		"GET http://h/ HTTP/1.1\r\nno colon here\r\n\r\n",
		"GET http://h/ HTTP/1.1\r\n: empty name\r\n\r\n",
		"GET http://h/ HTTP/1.1\r\nBad Name: x\r\n\r\n",
	}

	for _, raw := range testCases {
		_, err := Read(bufio.NewReader(strings.NewReader(raw)), 1024)
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: unexpected error: %v", raw, err)
		}
	}
}

func TestConnectionTokens(t *testing.T) {
	raw := "GET http://h/ HTTP/1.1\r\nConnection: Keep-Alive, X-Trace\r\n\r\n"

	p, _ := parse(t, raw, 1024)

	tokens := p.ConnectionTokens()
	if len(tokens) != 2 || tokens[0] != "keep-alive" || tokens[1] != "x-trace" {
		t.Fatalf("tokens = %v", tokens)
	}
}

func TestDelete(t *testing.T) {
	raw := "GET http://h/ HTTP/1.1\r\nX-A: 1\r\nX-B: 2\r\nx-a: 3\r\n\r\n"

	p, _ := parse(t, raw, 1024)

	p.Delete("X-A")
	if p.Has("X-A") || !p.Has("X-B") {
		t.Fatalf("headers after delete: %+v", p.Headers)
	}
}

func TestWriteTo_roundTrip(t *testing.T) {
	raw := "GET /path?x=1 HTTP/1.1\r\nHost: origin.test\r\nX-Keep: yes\r\n\r\n"

	p, _ := parse(t, raw, 1024)

	buf := &bytes.Buffer{}
	if _, err := p.WriteTo(buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if buf.String() != raw {
		t.Fatalf("serialized = %q, want %q", buf.String(), raw)
	}

	again, err := Read(bufio.NewReader(bytes.NewReader(buf.Bytes())), 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if again.Method != p.Method || again.Target != p.Target || len(again.Headers) != len(p.Headers) {
		t.Fatalf("reparse mismatch: %+v vs %+v", again, p)
	}
}
