package beacon

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	sse "github.com/r3labs/sse/v2"
)

const maxEventSize = 1 << 20

// HTTPFeed subscribes to the beacon node server-sent events endpoint.
type HTTPFeed struct {
	client *http.Client
}

func NewHTTPFeed(client *http.Client) *HTTPFeed {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFeed{client: client}
}

// Subscribe opens the stream. The subscription lives as long as ctx.
func (f *HTTPFeed) Subscribe(ctx context.Context, url string) (Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("status code: %d. Response content %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return &httpStream{
		body:   resp.Body,
		reader: sse.NewEventStreamReader(resp.Body, maxEventSize),
	}, nil
}

type httpStream struct {
	body   io.ReadCloser
	reader *sse.EventStreamReader
}

// Next skips events of other topics, comments and keep-alives.
func (s *httpStream) Next() (*PayloadAttributesEvent, error) {
	for {
		raw, err := s.reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		name, data := parseEvent(raw)
		if name != PayloadAttributesTopic || len(data) == 0 {
			continue
		}
		ev, err := decodeEvent(data)
		if err != nil {
			return nil, fmt.Errorf("decoding %s event: %w", name, err)
		}
		return ev, nil
	}
}

func (s *httpStream) Close() error {
	return s.body.Close()
}

// parseEvent extracts the event name and data fields of one event block.
// Multiple data lines are joined with newlines.
func parseEvent(raw []byte) (string, []byte) {
	var (
		name = "message"
		data [][]byte
	)
	for _, line := range bytes.Split(raw, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		field, value, _ := bytes.Cut(line, []byte(":"))
		value = bytes.TrimPrefix(value, []byte(" "))
		switch string(field) {
		case "event":
			name = string(value)
		case "data":
			data = append(data, value)
		}
	}
	return name, bytes.Join(data, []byte("\n"))
}
