package http

// Request holds the parts of a request head the server acts on.
type Request struct {
	Method string
	Target string
	// Path is the percent-decoded path component of Target.
	Path  string
	Proto string

	// Predefined common header fields
	Host       string
	Connection string
	UserAgent  string

	// Headers counts every header line seen, including the predefined ones.
	Headers int
}

// Reset resets the request for reuse
func (r *Request) Reset() {
	*r = Request{}
}

// SetHeader records a header (prioritizes predefined fields)
func (r *Request) SetHeader(key, value string) {
	r.Headers++
	switch key {
	case HeaderHost:
		r.Host = value
	case HeaderConnection:
		r.Connection = value
	case HeaderUserAgent:
		r.UserAgent = value
	}
}
