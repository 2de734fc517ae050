// Package upstream holds the error types shared by every client of a
// third-party HTTP API, and the fetch helper they send requests through.
package upstream

import (
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// maxErrorBody bounds how much of a failed response body is kept in an error.
const maxErrorBody = 4096

// FetchError reports a network failure or a non-2xx response.
type FetchError struct {
	Method     string
	URL        string
	StatusCode int // zero when no response was received
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Method, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// UpstreamError reports a structured error returned by a third-party API.
type UpstreamError struct {
	Provider string
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Fetcher sends a request and returns the full response body.
type Fetcher interface {
	Fetch(req *http.Request) ([]byte, http.Header, error)
}

type httpFetcher struct {
	client *http.Client
}

// NewFetcher wraps client; a nil client means http.DefaultClient.
func NewFetcher(client *http.Client) Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpFetcher{client: client}
}

func (f *httpFetcher) Fetch(req *http.Request) ([]byte, http.Header, error) {
	res, err := f.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("method", req.Method).Str("url", req.URL.String()).Msg("Failed to send the HTTP request")
		return nil, nil, &FetchError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			log.Warn().Err(err).Str("url", req.URL.String()).Msg("Failed to close the response body")
		}
	}(res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		log.Error().
			Str("method", req.Method).
			Str("url", req.URL.String()).
			Int("status", res.StatusCode).
			Str("message", string(payload)).
			Msg("HTTP request returned non-OK status code")
		return nil, res.Header, &FetchError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: res.StatusCode,
			Body:       string(payload),
		}
	}

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.Header, &FetchError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	return payload, res.Header, nil
}
