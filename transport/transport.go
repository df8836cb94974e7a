// Package transport is the request executor behind the cache: it resolves a
// (resource, operation) pair to an HTTP route, attaches the bearer token,
// performs exactly one round-trip and unwraps the { data, message } envelope
// into a typed payload. Failures are normalized into NetworkError, HTTPError
// or ValidationError. Nothing is retried.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/tagcache/codec"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = 8 << 20
)

// Args are the arguments of a query or the path/query parameters of a mutation.
type Args map[string]any

// Request is one call against the remote API.
type Request struct {
	Resource  string
	Operation string
	Params    Args
	Body      any
	// Fresh skips read coalescing; used for refetches and invalidation.
	Fresh bool
}

// Result is the unwrapped success response.
type Result struct {
	Data       any
	Message    string
	StatusCode int
}

// Decoder narrows the raw JSON of an envelope's data into the typed payload
// of the resource. raw is nil when the envelope carried no data.
type Decoder interface {
	Decode(resource, operation string, raw []byte) (any, error)
}

// Config configures a Client. BaseURL and Routes are required.
type Config struct {
	BaseURL    string
	Routes     Routes
	Tokens     TokenSource  // nil => never send Authorization
	Decoder    Decoder      // nil => Result.Data is the raw JSON bytes
	HTTPClient *http.Client // nil => http.Client with Timeout
	Timeout    time.Duration
	// BodyEncoding selects the request body codec: "json" (default), "msgpack" or "cbor".
	BodyEncoding     string
	MaxResponseBytes int64
	// CoalesceReads shares one round-trip between identical concurrent GETs.
	CoalesceReads bool
	UserAgent     string
}

// Client executes requests against the configured API.
type Client struct {
	base      string
	routes    Routes
	tokens    TokenSource
	decoder   Decoder
	http      *http.Client
	body      codec.Codec[any]
	bodyType  string
	maxBody   int64
	coalesce  bool
	userAgent string
	reads     singleflight.Group
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("transport: base url is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("transport: base url %q must be absolute", cfg.BaseURL)
	}
	if len(cfg.Routes) == 0 {
		return nil, fmt.Errorf("transport: routes are required")
	}

	c := &Client{
		base:      strings.TrimRight(u.String(), "/"),
		routes:    cfg.Routes,
		tokens:    cfg.Tokens,
		decoder:   cfg.Decoder,
		http:      cfg.HTTPClient,
		maxBody:   cfg.MaxResponseBytes,
		coalesce:  cfg.CoalesceReads,
		userAgent: cfg.UserAgent,
	}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.maxBody <= 0 {
		c.maxBody = defaultMaxResponseBytes
	}

	c.body, c.bodyType, err = codec.ForBody(cfg.BodyEncoding)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	return c, nil
}

// Do performs req and returns the unwrapped result.
func (c *Client) Do(ctx context.Context, req Request) (Result, error) {
	route, err := c.routes.Lookup(req.Resource, req.Operation)
	if err != nil {
		return Result{}, err
	}
	path, query, err := route.expand(req.Resource, req.Operation, req.Params)
	if err != nil {
		return Result{}, err
	}
	target := c.base + "/" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body []byte
	if req.Body != nil {
		if !route.hasBody() {
			return Result{}, &ValidationError{Resource: req.Resource, Operation: req.Operation, Reason: route.Method + " does not take a body"}
		}
		body, err = c.body.Encode(req.Body)
		if err != nil {
			return Result{}, &ValidationError{Resource: req.Resource, Operation: req.Operation, Reason: "encode body", Err: err}
		}
	}

	if c.coalesce && route.Method == http.MethodGet && !req.Fresh {
		v, err, _ := c.reads.Do(target, func() (interface{}, error) {
			return c.roundTrip(ctx, req, route.Method, target, nil)
		})
		if err != nil {
			return Result{}, err
		}
		return v.(Result), nil
	}
	return c.roundTrip(ctx, req, route.Method, target, body)
}

func (c *Client) roundTrip(ctx context.Context, req Request, method, target string, body []byte) (Result, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	hreq, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return Result{}, &ValidationError{Resource: req.Resource, Operation: req.Operation, Reason: "build request", Err: err}
	}
	hreq.Header.Set("Accept", codec.ContentTypeJSON)
	if body != nil {
		hreq.Header.Set("Content-Type", c.bodyType)
	}
	if c.userAgent != "" {
		hreq.Header.Set("User-Agent", c.userAgent)
	}
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return Result{}, &ValidationError{Resource: req.Resource, Operation: req.Operation, Reason: "read token", Err: err}
		}
		if tok != "" {
			hreq.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		return Result{}, &NetworkError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return Result{}, &NetworkError{Method: method, URL: target, Err: err}
	}
	if int64(len(raw)) > c.maxBody {
		return Result{}, &HTTPError{StatusCode: resp.StatusCode, Message: "response exceeds size limit", Err: ErrResponseTooLarge}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    failureMessage(resp.StatusCode, raw),
			Body:       raw,
		}
	}

	env, err := unwrap(raw)
	if err != nil {
		return Result{}, &HTTPError{StatusCode: resp.StatusCode, Message: "invalid response body", Body: raw, Err: err}
	}
	res := Result{Message: env.Message, StatusCode: resp.StatusCode}
	if c.decoder == nil {
		if env.Data != nil {
			res.Data = env.Data
		}
		return res, nil
	}
	data, err := c.decoder.Decode(req.Resource, req.Operation, env.Data)
	if err != nil {
		return Result{}, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    "unexpected " + req.Resource + " payload",
			Body:       raw,
			Err:        fmt.Errorf("%w: %v", ErrUnexpectedPayload, err),
		}
	}
	res.Data = data
	return res, nil
}
