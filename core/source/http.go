package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPSource streams a direct HTTP or HTTPS download. Expected length
// is taken from the Content-Length header once the transfer starts.
type HTTPSource struct {
	url    string
	client *http.Client
	length int64
	body   io.ReadCloser
}

func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: http.DefaultClient,
		length: -1,
	}
}

func (s *HTTPSource) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnreachable, resp.StatusCode)
	}

	if resp.ContentLength >= 0 {
		s.length = resp.ContentLength
	}
	s.body = resp.Body

	return resp.Body, nil
}

func (s *HTTPSource) ExpectedLength() (int64, bool) {
	return s.length, s.length >= 0
}

func (s *HTTPSource) Close() error {
	if s.body != nil {
		err := s.body.Close()
		s.body = nil
		return err
	}

	return nil
}
