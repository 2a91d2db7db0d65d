package http

import (
	"strconv"

	"github.com/valyala/bytebufferpool"
)

// HTTP header constants
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderUserAgent     = "User-Agent"
	HeaderHost          = "Host"
	HeaderConnection    = "Connection"
)

// ContentTypeOctetStream is sent for every served file.
const ContentTypeOctetStream = "application/octet-stream"

// NotFound is the complete 404 response. It carries no body.
const NotFound = "HTTP/1.1 404 Not Found\r\n" +
	"Content-Type: text/html\r\n" +
	"Content-Length: 0\r\n" +
	"Connection: close\r\n" +
	"\r\n"

// WriteOKHeader writes the 200 response head announcing a body of
// contentLength bytes.
func WriteOKHeader(buf *bytebufferpool.ByteBuffer, contentLength int64) {
	buf.B = AppendOKHeader(buf.B, contentLength)
}

// AppendOKHeader appends the 200 response head to dst.
func AppendOKHeader(dst []byte, contentLength int64) []byte {
	dst = append(dst, "HTTP/1.1 200 OK\r\n"...)
	dst = append(dst, HeaderContentType+": "+ContentTypeOctetStream+"\r\n"...)
	dst = append(dst, HeaderContentLength+": "...)
	dst = strconv.AppendInt(dst, contentLength, 10)
	dst = append(dst, "\r\n"...)
	dst = append(dst, HeaderConnection+": close\r\n\r\n"...)
	return dst
}
