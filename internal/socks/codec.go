package socks

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/AdguardTeam/golibs/errors"
)

const (
	// ErrVersion is returned when a message carries a version byte other
	// than 5.
	ErrVersion errors.Error = "unsupported socks version"

	// ErrNoMethods is returned when the greeting offers zero methods.
	ErrNoMethods errors.Error = "no authentication methods offered"

	// ErrAddrType is returned when a request carries an unknown address
	// type.
	ErrAddrType errors.Error = "unsupported address type"

	// ErrBadDomain is returned when the domain name of a request is empty
	// or is not US-ASCII.
	ErrBadDomain errors.Error = "malformed domain name"

	// ErrAuthVersion is returned when the username/password message carries
	// a version byte other than 1.
	ErrAuthVersion errors.Error = "unsupported auth version"
)

// Greeting is the initial message the client sends: the list of
// authentication methods it supports.
type Greeting struct {
	// Methods is the raw list of offered method bytes.
	Methods []byte
}

// Offers reports whether the client offered the given method.
func (g *Greeting) Offers(method byte) (ok bool) {
	for _, m := range g.Methods {
		if m == method {
			return true
		}
	}

	return false
}

// ReadGreeting reads and validates the client greeting from r.
func ReadGreeting(r io.Reader) (g *Greeting, err error) {
	var hdr [2]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("socks: reading greeting: %w", err)
	}

	if hdr[0] != Version {
		return nil, fmt.Errorf("socks: greeting version %d: %w", hdr[0], ErrVersion)
	}

	if hdr[1] == 0 {
		return nil, fmt.Errorf("socks: greeting: %w", ErrNoMethods)
	}

	methods := make([]byte, hdr[1])
	if _, err = io.ReadFull(r, methods); err != nil {
		return nil, fmt.Errorf("socks: reading methods: %w", err)
	}

	return &Greeting{Methods: methods}, nil
}

// WriteMethodSelection writes the server's method selection message to w.
func WriteMethodSelection(w io.Writer, method byte) (err error) {
	_, err = w.Write([]byte{Version, method})

	return err
}

// ReadUserPass reads the RFC 1929 username/password message from r.
func ReadUserPass(r io.Reader) (username, password string, err error) {
	var hdr [2]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return "", "", fmt.Errorf("socks: reading auth header: %w", err)
	}

	if hdr[0] != authVersion {
		return "", "", fmt.Errorf("socks: auth version %d: %w", hdr[0], ErrAuthVersion)
	}

	user := make([]byte, hdr[1])
	if _, err = io.ReadFull(r, user); err != nil {
		return "", "", fmt.Errorf("socks: reading username: %w", err)
	}

	var plen [1]byte
	if _, err = io.ReadFull(r, plen[:]); err != nil {
		return "", "", fmt.Errorf("socks: reading password length: %w", err)
	}

	pass := make([]byte, plen[0])
	if _, err = io.ReadFull(r, pass); err != nil {
		return "", "", fmt.Errorf("socks: reading password: %w", err)
	}

	return string(user), string(pass), nil
}

// WriteAuthStatus writes the RFC 1929 status message to w.
func WriteAuthStatus(w io.Writer, status byte) (err error) {
	_, err = w.Write([]byte{authVersion, status})

	return err
}

// Request is the parsed request PDU.
type Request struct {
	// Host is the destination host: an IP literal for the IPv4/IPv6 address
	// types or the domain name as sent by the client.
	Host string

	// Command is the requested command, one of the Cmd constants.
	Command byte

	// AddrType is the address type byte, one of the ATyp constants.
	AddrType byte

	// Port is the destination port.
	Port uint16
}

// HostPort returns the destination in "host:port" form.
func (req *Request) HostPort() (addr string) {
	return net.JoinHostPort(req.Host, strconv.Itoa(int(req.Port)))
}

// ReadRequest reads and validates a request PDU from r.
func ReadRequest(r io.Reader) (req *Request, err error) {
	var hdr [4]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("socks: reading request header: %w", err)
	}

	if hdr[0] != Version {
		return nil, fmt.Errorf("socks: request version %d: %w", hdr[0], ErrVersion)
	}

	req = &Request{
		Command:  hdr[1],
		AddrType: hdr[3],
	}

	switch req.AddrType {
	case ATypIPv4:
		var ip [4]byte
		if _, err = io.ReadFull(r, ip[:]); err != nil {
			return nil, fmt.Errorf("socks: reading ipv4 address: %w", err)
		}

		req.Host = net.IP(ip[:]).String()
	case ATypDomain:
		var dlen [1]byte
		if _, err = io.ReadFull(r, dlen[:]); err != nil {
			return nil, fmt.Errorf("socks: reading domain length: %w", err)
		}

		domain := make([]byte, dlen[0])
		if _, err = io.ReadFull(r, domain); err != nil {
			return nil, fmt.Errorf("socks: reading domain: %w", err)
		}

		if !validDomain(domain) {
			return nil, fmt.Errorf("socks: domain %q: %w", domain, ErrBadDomain)
		}

		req.Host = string(domain)
	case ATypIPv6:
		var ip [16]byte
		if _, err = io.ReadFull(r, ip[:]); err != nil {
			return nil, fmt.Errorf("socks: reading ipv6 address: %w", err)
		}

		req.Host = net.IP(ip[:]).String()
	default:
		return nil, fmt.Errorf("socks: address type %d: %w", req.AddrType, ErrAddrType)
	}

	var port [2]byte
	if _, err = io.ReadFull(r, port[:]); err != nil {
		return nil, fmt.Errorf("socks: reading port: %w", err)
	}

	req.Port = binary.BigEndian.Uint16(port[:])

	return req, nil
}

// validDomain reports whether domain is a non-empty US-ASCII name without
// control characters or spaces.
func validDomain(domain []byte) (ok bool) {
	if len(domain) == 0 {
		return false
	}

	for _, b := range domain {
		if b < 0x21 || b > 0x7E {
			return false
		}
	}

	return true
}

// WriteReply writes a reply PDU to w.  The bound address fields are taken
// from bnd when it is a TCP address, otherwise they are zeroed.
func WriteReply(w io.Writer, reply byte, bnd net.Addr) (err error) {
	buf := []byte{Version, reply, 0x00}

	tcpAddr, _ := bnd.(*net.TCPAddr)
	switch {
	case tcpAddr != nil && tcpAddr.IP.To4() != nil:
		buf = append(buf, ATypIPv4)
		buf = append(buf, tcpAddr.IP.To4()...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(tcpAddr.Port))
	case tcpAddr != nil && tcpAddr.IP.To16() != nil:
		buf = append(buf, ATypIPv6)
		buf = append(buf, tcpAddr.IP.To16()...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(tcpAddr.Port))
	default:
		buf = append(buf, ATypIPv4, 0, 0, 0, 0, 0, 0)
	}

	_, err = w.Write(buf)

	return err
}
