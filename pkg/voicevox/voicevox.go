// Package voicevox is a small client for the user dictionary endpoints of a
// VOICEVOX engine.
//
// Only the primitives the engine offers are exposed: list every entry, add one
// entry, delete one entry by UUID. The engine does not enforce uniqueness of
// surfaces; callers that need "one entry per word" semantics reconcile on top
// of these primitives.
//
// Typical usage:
//
//	c, err := voicevox.New("http://localhost:50021",
//	    voicevox.WithTimeout(5*time.Second),
//	)
//	words, err := c.UserDict(ctx)
//	id, err := c.AddWord(ctx, "ｓａｋｕｒａ", "サクラ")
package voicevox

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTimeout = 10 * time.Second

	userDictEndpoint     = "/user_dict"
	userDictWordEndpoint = "/user_dict_word"
	versionEndpoint      = "/version"

	// maxErrorBody bounds how much of an error response is kept for the
	// returned error message.
	maxErrorBody = 512
)

// ErrInvalidID is returned when a word id is not a UUID. The request is not
// sent.
var ErrInvalidID = errors.New("voicevox: word id is not a uuid")

// StatusError is returned when the engine answers with a non-2xx status.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("voicevox: %s: status %d: %s", e.Endpoint, e.Code, e.Body)
}

// UserDictWord is one entry of the engine's user dictionary as returned by
// GET /user_dict. Fields not needed for reconciliation are kept so that
// listings can show them.
type UserDictWord struct {
	Surface        string `json:"surface"`
	Pronunciation  string `json:"pronunciation"`
	AccentType     int    `json:"accent_type"`
	Priority       int    `json:"priority"`
	PartOfSpeech   string `json:"part_of_speech"`
	MoraCount      *int   `json:"mora_count,omitempty"`
	Yomi           string `json:"yomi"`
	ContextID      int    `json:"context_id"`
	InflectionType string `json:"inflectional_type"`
}

// RequestObserver is notified after every HTTP call with the endpoint name
// and a status label ("ok", an HTTP status code, or "error").
type RequestObserver func(ctx context.Context, endpoint, status string)

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout. Defaults to 10 s. Combined
// with [WithHTTPClient] in any order, it applies to a copy of that client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client. Its own timeout is kept
// unless [WithTimeout] is also given. The client is never modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithAccentType sets the accent_type sent when adding words. Defaults to 0
// (flat accent, which the engine re-estimates on synthesis).
func WithAccentType(n int) Option {
	return func(c *Client) {
		c.accentType = n
	}
}

// WithObserver registers a callback invoked after every request.
func WithObserver(fn RequestObserver) Option {
	return func(c *Client) {
		c.observe = fn
	}
}

// Client talks to one VOICEVOX engine. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	accentType int
	observe    RequestObserver
}

// New creates a Client for the engine at baseURL (e.g.
// "http://localhost:50021").
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("voicevox: base URL must not be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("voicevox: parse base URL: %w", err)
	}
	c := &Client{baseURL: strings.TrimRight(baseURL, "/")}
	for _, o := range opts {
		o(c)
	}
	switch {
	case c.httpClient == nil:
		c.httpClient = &http.Client{Timeout: cmp.Or(c.timeout, defaultTimeout)}
	case c.timeout > 0:
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c, nil
}

// UserDict returns every user dictionary entry keyed by its UUID.
func (c *Client) UserDict(ctx context.Context) (map[string]UserDictWord, error) {
	words := map[string]UserDictWord{}
	if err := c.do(ctx, http.MethodGet, "user_dict", userDictEndpoint, &words); err != nil {
		return nil, err
	}
	return words, nil
}

// AddWord adds a new entry and returns the UUID the engine assigned to it.
// The engine never merges with existing entries.
func (c *Client) AddWord(ctx context.Context, surface, pronunciation string) (string, error) {
	q := url.Values{}
	q.Set("surface", surface)
	q.Set("pronunciation", pronunciation)
	q.Set("accent_type", strconv.Itoa(c.accentType))

	var id string
	if err := c.do(ctx, http.MethodPost, "user_dict_word", userDictWordEndpoint+"?"+q.Encode(), &id); err != nil {
		return "", err
	}
	return id, nil
}

// DeleteWord removes the entry with the given UUID.
func (c *Client) DeleteWord(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return c.do(ctx, http.MethodDelete, "user_dict_word", userDictWordEndpoint+"/"+url.PathEscape(id), nil)
}

// Version returns the engine version string. It doubles as a liveness probe.
func (c *Client) Version(ctx context.Context) (string, error) {
	var v string
	if err := c.do(ctx, http.MethodGet, "version", versionEndpoint, &v); err != nil {
		return "", err
	}
	return v, nil
}

// do performs one request and decodes a JSON body into out when out is
// non-nil.
func (c *Client) do(ctx context.Context, method, endpoint, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("voicevox: %s: build request: %w", endpoint, err)
	}
	if out != nil {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(ctx, endpoint, "error")
		return fmt.Errorf("voicevox: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.record(ctx, endpoint, strconv.Itoa(resp.StatusCode))
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.record(ctx, endpoint, "error")
			return fmt.Errorf("voicevox: %s: decode response: %w", endpoint, err)
		}
	}
	c.record(ctx, endpoint, "ok")
	return nil
}

func (c *Client) record(ctx context.Context, endpoint, status string) {
	if c.observe != nil {
		c.observe(ctx, endpoint, status)
	}
}
