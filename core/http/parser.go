package http

import (
	"bytes"
	"errors"
	"net/textproto"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/http/httpguts"
)

var (
	ErrInvalidRequest     = errors.New("invalid HTTP request")
	ErrInvalidHeader      = errors.New("invalid HTTP header")
	ErrRequestLineTooLong = errors.New("request line too long")
)

// DefaultMaxLineBytes bounds a single request or header line.
const DefaultMaxLineBytes = 8192

type parserState uint8

const (
	stateRequestLine parserState = iota
	stateHeaders
	stateDone
	stateFailed
)

// Parser is an incremental HTTP/1.x request-head parser. Bytes may be fed in
// arbitrary fragments; the request target path becomes available as soon as
// the request line is complete, before the rest of the head has arrived.
type Parser struct {
	state   parserState
	line    []byte
	maxLine int
	hasPath bool
	req     Request
	err     error
}

// NewParser creates a parser bounding lines to maxLine bytes.
func NewParser(maxLine int) *Parser {
	p := &Parser{}
	p.Init(maxLine)
	return p
}

// Init prepares a zero or previously used parser.
func (p *Parser) Init(maxLine int) {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	p.maxLine = maxLine
	p.Reset()
}

// Reset discards all parsed state, keeping the line buffer capacity.
func (p *Parser) Reset() {
	p.state = stateRequestLine
	p.line = p.line[:0]
	p.hasPath = false
	p.req.Reset()
	p.err = nil
}

// Feed parses as much of data as possible and returns the number of bytes
// consumed. It stops at the blank line ending the head; bytes after it are
// not consumed. Once the parser has failed every call returns the same error.
func (p *Parser) Feed(data []byte) (int, error) {
	consumed := 0
	for consumed < len(data) {
		switch p.state {
		case stateDone:
			return consumed, nil
		case stateFailed:
			return consumed, p.err
		}

		rest := data[consumed:]
		nl := bytes.IndexByte(rest, '\n')
		if nl < 0 {
			if len(p.line)+len(rest) > p.maxLine {
				return consumed, p.fail(ErrRequestLineTooLong)
			}
			p.line = append(p.line, rest...)
			return len(data), nil
		}

		if len(p.line)+nl > p.maxLine {
			return consumed, p.fail(ErrRequestLineTooLong)
		}
		line := rest[:nl]
		if len(p.line) > 0 {
			p.line = append(p.line, line...)
			line = p.line
		}
		consumed += nl + 1

		line = bytes.TrimSuffix(line, []byte{'\r'})
		err := p.processLine(line)
		p.line = p.line[:0]
		if err != nil {
			return consumed, p.fail(err)
		}
	}

	if p.state == stateFailed {
		return consumed, p.err
	}
	return consumed, nil
}

func (p *Parser) processLine(line []byte) error {
	switch p.state {
	case stateRequestLine:
		// Leading empty lines before the request line are ignored.
		if len(line) == 0 {
			return nil
		}
		if err := p.parseRequestLine(line); err != nil {
			return err
		}
		p.state = stateHeaders
	case stateHeaders:
		if len(line) == 0 {
			p.state = stateDone
			return nil
		}
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return ErrInvalidHeader
		}
		name := string(line[:colon])
		if !httpguts.ValidHeaderFieldName(name) {
			return ErrInvalidHeader
		}
		value := strings.TrimSpace(string(line[colon+1:]))
		if !httpguts.ValidHeaderFieldValue(value) {
			return ErrInvalidHeader
		}
		p.req.SetHeader(textproto.CanonicalMIMEHeaderKey(name), value)
	}
	return nil
}

// parseRequestLine parses METHOD SP TARGET SP PROTO
func (p *Parser) parseRequestLine(line []byte) error {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return ErrInvalidRequest
	}
	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 <= 0 {
		return ErrInvalidRequest
	}
	sp2 += sp1 + 1

	method := string(line[:sp1])
	target := string(line[sp1+1 : sp2])
	proto := string(line[sp2+1:])

	if !validMethod(method) || !strings.HasPrefix(proto, "HTTP/") {
		return ErrInvalidRequest
	}

	p.req.Method = method
	p.req.Target = target
	p.req.Proto = proto

	// Asterisk-form has no path.
	if target == "*" {
		return nil
	}

	u, err := url.ParseRequestURI(target)
	if err != nil {
		return ErrInvalidRequest
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	p.req.Path = path
	p.hasPath = true
	return nil
}

func validMethod(method string) bool {
	for _, r := range method {
		if r == utf8.RuneError || !httpguts.IsTokenRune(r) {
			return false
		}
	}
	return method != ""
}

func (p *Parser) fail(err error) error {
	p.state = stateFailed
	p.err = err
	return err
}

// Path returns the decoded request target path. The second result is false
// until the request line has been parsed successfully; a path once found is
// kept even if a later header line is malformed.
func (p *Parser) Path() (string, bool) {
	return p.req.Path, p.hasPath
}

// Done reports whether the blank line ending the head has been consumed.
func (p *Parser) Done() bool {
	return p.state == stateDone
}

// Err returns the error that stopped the parser, if any.
func (p *Parser) Err() error {
	return p.err
}

// Request returns the request parsed so far.
func (p *Parser) Request() *Request {
	return &p.req
}

// ParsePath parses a complete or partial request head and returns the
// decoded target path, if one could be extracted.
func ParsePath(data []byte) (string, bool) {
	var p Parser
	p.Init(len(data) + 1)
	p.Feed(data)
	return p.Path()
}
