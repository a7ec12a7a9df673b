package respcache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Snapshot is a complete response captured at fetch time.
type Snapshot struct {
	Method   string
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Response materializes the snapshot as a fresh *http.Response for req.
// Each call returns an independent body reader.
func (s Snapshot) Response(req *http.Request) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", s.Status, http.StatusText(s.Status)),
		StatusCode:    s.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        s.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(s.Body)),
		ContentLength: int64(len(s.Body)),
		Request:       req,
	}
}

func (s Snapshot) clone() Snapshot {
	s.Header = s.Header.Clone()
	s.Body = bytes.Clone(s.Body)
	return s
}

func newSnapshot(req *http.Request, resp *http.Response, body []byte) Snapshot {
	header := resp.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return Snapshot{
		Method:   req.Method,
		URL:      req.URL.String(),
		Status:   resp.StatusCode,
		Header:   header,
		Body:     body,
		StoredAt: time.Now().UTC(),
	}
}
