// Package preamble parses and serializes the head of an HTTP request: the
// request line, the headers, and the terminating blank line.  It is used by
// the HTTP proxy handler, which needs precise control over the bytes read
// from the client and over the bytes forwarded upstream.
package preamble

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
)

const (
	// ErrTooLarge is returned when the preamble exceeds the configured size
	// cap or a single line exceeds maxLineLen.  The cap is enforced while
	// the bytes are being accumulated, so a request that never terminates
	// cannot make the parser buffer more than the cap.
	ErrTooLarge errors.Error = "request preamble too large"

	// ErrMalformed is returned on broken framing: a missing CRLF, a bad
	// request line, or a header without a colon.
	ErrMalformed errors.Error = "malformed request preamble"
)

// maxLineLen is the cap on a single preamble line.
const maxLineLen = 8 * 1024

// Header is a single header field.  Headers are kept as an ordered list so
// that serialization preserves the client's ordering.
type Header struct {
	// Name is the field name as sent by the client.
	Name string

	// Value is the field value with surrounding whitespace trimmed.
	Value string
}

// Preamble is a parsed HTTP request head.
type Preamble struct {
	// Method is the request method.
	Method string

	// Target is the request target: an authority for CONNECT or an
	// absolute URI for proxied requests.
	Target string

	// Proto is the protocol version, e.g. "HTTP/1.1".
	Proto string

	// Headers is the ordered list of header fields.
	Headers []Header
}

// Read reads a request preamble from r, enforcing maxSize across the whole
// preamble.  Bytes that follow the terminating blank line are left in r.
func Read(r *bufio.Reader, maxSize int) (p *Preamble, err error) {
	total := 0

	line, err := readLine(r, maxSize, &total)
	if err != nil {
		return nil, err
	}

	p = &Preamble{}

	parts := strings.Split(line, " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("preamble: request line %q: %w", line, ErrMalformed)
	}

	p.Method, p.Target, p.Proto = parts[0], parts[1], parts[2]
	if !strings.HasPrefix(p.Proto, "HTTP/1.") {
		return nil, fmt.Errorf("preamble: protocol %q: %w", p.Proto, ErrMalformed)
	}

	for {
		line, err = readLine(r, maxSize, &total)
		if err != nil {
			return nil, err
		}

		if line == "" {
			return p, nil
		}

		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return nil, fmt.Errorf("preamble: header %q: %w", line, ErrMalformed)
		}

		name := line[:colon]
		if strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("preamble: header name %q: %w", name, ErrMalformed)
		}

		p.Headers = append(p.Headers, Header{
			Name:  name,
			Value: strings.TrimSpace(line[colon+1:]),
		})
	}
}

// readLine reads one CRLF-terminated line from r, counting the consumed
// bytes, terminator included, against maxSize via total.
func readLine(r *bufio.Reader, maxSize int, total *int) (line string, err error) {
	var buf []byte

	for {
		var chunk []byte
		chunk, err = r.ReadSlice('\n')
		buf = append(buf, chunk...)

		*total += len(chunk)
		if *total > maxSize || len(buf) > maxLineLen {
			return "", fmt.Errorf("preamble: line: %w", ErrTooLarge)
		}

		if err == nil {
			break
		} else if err == bufio.ErrBufferFull {
			continue
		} else if err == io.EOF && len(buf) > 0 {
			return "", fmt.Errorf("preamble: line %q: %w", buf, ErrMalformed)
		}

		return "", fmt.Errorf("preamble: reading line: %w", err)
	}

	line, found := strings.CutSuffix(string(buf), "\r\n")
	if !found {
		return "", fmt.Errorf("preamble: line %q: %w", buf, ErrMalformed)
	}

	return line, nil
}

// IsConnect reports whether this is a CONNECT request.
func (p *Preamble) IsConnect() (ok bool) {
	return strings.EqualFold(p.Method, "CONNECT")
}

// Get returns the value of the named header.  Values of duplicate headers
// are concatenated with ", " in the order they appeared.  Header names are
// compared case-insensitively.
func (p *Preamble) Get(name string) (value string) {
	var values []string
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			values = append(values, h.Value)
		}
	}

	return strings.Join(values, ", ")
}

// Has reports whether the named header is present.
func (p *Preamble) Has(name string) (ok bool) {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return true
		}
	}

	return false
}

// Delete removes every header with the given name.
func (p *Preamble) Delete(name string) {
	kept := p.Headers[:0]
	for _, h := range p.Headers {
		if !strings.EqualFold(h.Name, name) {
			kept = append(kept, h)
		}
	}

	p.Headers = kept
}

// Add appends a header field.
func (p *Preamble) Add(name, value string) {
	p.Headers = append(p.Headers, Header{Name: name, Value: value})
}

// ConnectionTokens returns the comma-separated tokens of the Connection
// header, trimmed and lowercased.
func (p *Preamble) ConnectionTokens() (tokens []string) {
	v := p.Get("Connection")
	if v == "" {
		return nil
	}

	for _, t := range strings.Split(v, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			tokens = append(tokens, t)
		}
	}

	return tokens
}

// WriteTo serializes the preamble to w: request line, headers in order, and
// the terminating blank line.  It implements the [io.WriterTo] interface.
func (p *Preamble) WriteTo(w io.Writer) (n int64, err error) {
	var sb strings.Builder
	sb.WriteString(p.Method)
	sb.WriteByte(' ')
	sb.WriteString(p.Target)
	sb.WriteByte(' ')
	sb.WriteString(p.Proto)
	sb.WriteString("\r\n")

	for _, h := range p.Headers {
		sb.WriteString(h.Name)
		sb.WriteString(": ")
		sb.WriteString(h.Value)
		sb.WriteString("\r\n")
	}

	sb.WriteString("\r\n")

	written, err := io.WriteString(w, sb.String())

	return int64(written), err
}
