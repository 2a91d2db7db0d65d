package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/bytebufferpool"
)

func TestParser_CompleteRequest(t *testing.T) {
	p := NewParser(0)
	raw := []byte("GET /static/a.txt HTTP/1.1\r\nHost: localhost\r\nUser-Agent: curl/8.0\r\n\r\n")

	n, err := p.Feed(raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)
	assert.True(t, p.Done())

	path, ok := p.Path()
	require.True(t, ok)
	assert.Equal(t, "/static/a.txt", path)

	req := p.Request()
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "HTTP/1.1", req.Proto)
	assert.Equal(t, "localhost", req.Host)
	assert.Equal(t, "curl/8.0", req.UserAgent)
	assert.Equal(t, 2, req.Headers)
}

func TestParser_ByteAtATime(t *testing.T) {
	p := NewParser(0)
	raw := "GET /dynamic/big.dat HTTP/1.0\r\nHost: x\r\n\r\n"

	for i := 0; i < len(raw); i++ {
		_, ok := p.Path()
		// The path appears exactly when the request line's newline arrives.
		if i <= len("GET /dynamic/big.dat HTTP/1.0\r") {
			assert.False(t, ok, "path available too early at byte %d", i)
		}
		_, err := p.Feed([]byte{raw[i]})
		require.NoError(t, err)
	}

	path, ok := p.Path()
	require.True(t, ok)
	assert.Equal(t, "/dynamic/big.dat", path)
	assert.True(t, p.Done())
}

func TestParser_PathAvailableBeforeHeadersEnd(t *testing.T) {
	p := NewParser(0)
	_, err := p.Feed([]byte("GET /static/x HTTP/1.1\r\nHost: a"))
	require.NoError(t, err)

	path, ok := p.Path()
	require.True(t, ok)
	assert.Equal(t, "/static/x", path)
	assert.False(t, p.Done())
}

func TestParser_DecodesAndStripsQuery(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"/static/a%20b.txt", "/static/a b.txt"},
		{"/dynamic/f.dat?x=1&y=2", "/dynamic/f.dat"},
		{"http://example.com/static/abs.txt", "/static/abs.txt"},
		{"http://example.com", "/"},
	}

	for _, tt := range tests {
		path, ok := ParsePath([]byte("GET " + tt.target + " HTTP/1.1\r\n\r\n"))
		require.True(t, ok, tt.target)
		assert.Equal(t, tt.want, path, tt.target)
	}
}

func TestParser_NoPath(t *testing.T) {
	tests := []string{
		"",
		"garbage\r\n\r\n",
		"GET\r\n\r\n",
		"GET /static/a.txt\r\n\r\n",
		"GET /static/a.txt FTP/1.0\r\n\r\n",
		"G(T /static/a.txt HTTP/1.1\r\n\r\n",
		"OPTIONS * HTTP/1.1\r\n\r\n",
		"GET static/a.txt HTTP/1.1\r\n\r\n",
		"GET /static/%zz HTTP/1.1\r\n\r\n",
	}

	for _, raw := range tests {
		_, ok := ParsePath([]byte(raw))
		assert.False(t, ok, "%q", raw)
	}
}

func TestParser_IgnoresLeadingBlankLines(t *testing.T) {
	path, ok := ParsePath([]byte("\r\n\r\nGET /static/a HTTP/1.1\r\n\r\n"))
	require.True(t, ok)
	assert.Equal(t, "/static/a", path)
}

func TestParser_BadHeaderKeepsPath(t *testing.T) {
	p := NewParser(0)
	_, err := p.Feed([]byte("GET /static/a HTTP/1.1\r\nBad Header\r\n\r\n"))
	assert.ErrorIs(t, err, ErrInvalidHeader)
	assert.ErrorIs(t, p.Err(), ErrInvalidHeader)

	path, ok := p.Path()
	require.True(t, ok)
	assert.Equal(t, "/static/a", path)

	// A failed parser stays failed.
	_, err = p.Feed([]byte("Host: x\r\n\r\n"))
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestParser_LineTooLong(t *testing.T) {
	p := NewParser(16)
	_, err := p.Feed([]byte("GET /static/very/long/path"))
	assert.ErrorIs(t, err, ErrRequestLineTooLong)

	_, ok := p.Path()
	assert.False(t, ok)
}

func TestParser_StopsAtEndOfHead(t *testing.T) {
	p := NewParser(0)
	head := "GET /static/a HTTP/1.1\r\n\r\n"
	n, err := p.Feed([]byte(head + "body bytes"))
	require.NoError(t, err)
	assert.Equal(t, len(head), n)
}

func TestParser_Reset(t *testing.T) {
	p := NewParser(0)
	_, _ = p.Feed([]byte("GET /static/a HTTP/1.1\r\n\r\n"))
	p.Reset()

	_, ok := p.Path()
	assert.False(t, ok)
	assert.False(t, p.Done())
	assert.Empty(t, p.Request().Method)
}

func TestAppendOKHeader(t *testing.T) {
	got := string(AppendOKHeader(nil, 10))
	want := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: application/octet-stream\r\n" +
		"Content-Length: 10\r\n" +
		"Connection: close\r\n" +
		"\r\n"
	assert.Equal(t, want, got)
}

func TestWriteOKHeader(t *testing.T) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	WriteOKHeader(buf, 300000)
	assert.Contains(t, buf.String(), "Content-Length: 300000\r\n")
}

func TestNotFoundLiteral(t *testing.T) {
	assert.Equal(t,
		"HTTP/1.1 404 Not Found\r\nContent-Type: text/html\r\nContent-Length: 0\r\nConnection: close\r\n\r\n",
		NotFound)
}

func BenchmarkParser_Feed(b *testing.B) {
	raw := []byte("GET /static/a.txt HTTP/1.1\r\nHost: localhost\r\nUser-Agent: bench\r\nAccept: */*\r\n\r\n")
	p := NewParser(0)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Reset()
		p.Feed(raw)
	}
}
