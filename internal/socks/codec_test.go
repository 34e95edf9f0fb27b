package socks

import (
	"bytes"
	"errors"
	"net"
	"testing"
)

func TestReadGreeting(t *testing.T) {
	g, err := ReadGreeting(bytes.NewReader([]byte{0x05, 0x02, 0x00, 0x02}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !g.Offers(MethodNoAuth) || !g.Offers(MethodUserPass) {
		t.Fatalf("methods not parsed: %v", g.Methods)
	}

	if g.Offers(0x01) {
		t.Fatalf("method 0x01 was not offered")
	}
}

func TestReadGreeting_badVersion(t *testing.T) {
	if _, err := ReadGreeting(bytes.NewReader([]byte{0x04, 0x01, 0x00})); err == nil {
		t.Fatal("expected an error for version 4")
	}
}

func TestReadGreeting_noMethods(t *testing.T) {
	if _, err := ReadGreeting(bytes.NewReader([]byte{0x05, 0x00})); err == nil {
		t.Fatal("expected an error for zero methods")
	}
}

func TestReadUserPass(t *testing.T) {
	msg := []byte{0x01, 5}
	msg = append(msg, []byte("alice")...)
	msg = append(msg, 6)
	msg = append(msg, []byte("s3cret")...)

	user, pass, err := ReadUserPass(bytes.NewReader(msg))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if user != "alice" || pass != "s3cret" {
		t.Fatalf("got %q/%q", user, pass)
	}
}

func TestReadRequest_ipv4(t *testing.T) {
	req, err := ReadRequest(bytes.NewReader([]byte{
		0x05, 0x01, 0x00, 0x01, 127, 0, 0, 1, 0x00, 0x50,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.Command != CmdConnect || req.Host != "127.0.0.1" || req.Port != 80 {
		t.Fatalf("bad request: %+v", req)
	}

	if req.HostPort() != "127.0.0.1:80" {
		t.Fatalf("bad hostport: %s", req.HostPort())
	}
}

func TestReadRequest_domain(t *testing.T) {
	msg := []byte{0x05, 0x01, 0x00, 0x03, 9}
	msg = append(msg, []byte("evil.test")...)
	msg = append(msg, 0x00, 0x50)

	req, err := ReadRequest(bytes.NewReader(msg))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.Host != "evil.test" || req.AddrType != ATypDomain {
		t.Fatalf("bad request: %+v", req)
	}
}

func TestReadRequest_ipv6(t *testing.T) {
	msg := []byte{0x05, 0x01, 0x00, 0x04}
	msg = append(msg, net.ParseIP("2001:db8::1").To16()...)
	msg = append(msg, 0x01, 0xBB)

	req, err := ReadRequest(bytes.NewReader(msg))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.Host != "2001:db8::1" || req.Port != 443 {
		t.Fatalf("bad request: %+v", req)
	}
}

func TestReadRequest_badAddrType(t *testing.T) {
	_, err := ReadRequest(bytes.NewReader([]byte{0x05, 0x01, 0x00, 0x05, 0, 0}))
	if !errors.Is(err, ErrAddrType) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReadRequest_badDomain(t *testing.T) {
	msg := []byte{0x05, 0x01, 0x00, 0x03, 4, 0xFF, 'a', 'b', 'c', 0x00, 0x50}
	if _, err := ReadRequest(bytes.NewReader(msg)); err == nil {
		t.Fatal("expected an error for a non-ascii domain")
	}
}

func TestWriteReply(t *testing.T) {
	buf := &bytes.Buffer{}

	bnd := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8080}
	if err := WriteReply(buf, ReplySucceeded, bnd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []byte{0x05, 0x00, 0x00, 0x01, 127, 0, 0, 1, 0x1F, 0x90}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got % X, want % X", buf.Bytes(), want)
	}
}

func TestWriteReply_failureZeroed(t *testing.T) {
	buf := &bytes.Buffer{}

	if err := WriteReply(buf, ReplyNotAllowed, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []byte{0x05, 0x02, 0x00, 0x01, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got % X, want % X", buf.Bytes(), want)
	}
}
