// Package transport is the single HTTP client every API call goes through.
//
// TWO CROSS-CUTTING BEHAVIOURS:
//  1. Request augmentation: if the session holds a token, the request carries
//     "Authorization: Bearer <token>". The header is set by oauth2.Transport
//     wrapping the base RoundTripper, the same piece of x/oauth2 a server-side
//     OAuth client uses to call GitHub on a user's behalf.
//  2. Response interception: a 401 on a call that carried a token evicts the
//     session before the error reaches the caller.
//
// EXACTLY-ONCE EVICTION:
// Several calls may be in flight with the same token when it expires. Each
// one captures the credential's generation before it is sent and hands it
// back on a 401. The session evicts only if that generation is still current,
// so the first 401 evicts and the rest are no-ops.
//
// WHY NOT AUTO-RETRY?
// A retried POST /questions/{id}/vote is a second vote. Failures are surfaced
// to the caller; apperror.Retryable tells the UI whether offering "try again"
// makes sense.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/xid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/metrics"
)

// maxBody caps how much of a response body is read.
const maxBody = 4 << 20

// Credential is a snapshot of the session's token.
type Credential struct {
	Token      string
	Expiry     time.Time // zero when unknown
	Generation uint64
}

// Credentials is the slice of the session store the transport depends on.
type Credentials interface {
	// Current returns the token to attach (empty for anonymous calls).
	Current() Credential
	// Evict is called when a call sent with generation gen got a 401.
	Evict(ctx context.Context, gen uint64)
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, <= 0 disables limiting
	RateBurst int
	Base      http.RoundTripper // defaults to http.DefaultTransport
	Logger    *slog.Logger
	Metrics   metrics.Recorder
}

// Client sends JSON requests to the forum API.
type Client struct {
	base    *url.URL
	timeout time.Duration
	rt      http.RoundTripper
	limiter *rate.Limiter
	creds   Credentials
	logger  *slog.Logger
	metrics metrics.Recorder
}

// New creates a Client. creds is consulted on every call.
func New(opts Options, creds Credentials) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("transport: invalid base URL %q", opts.BaseURL)
	}

	c := &Client{
		base:    u,
		timeout: opts.Timeout,
		rt:      opts.Base,
		creds:   creds,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if c.rt == nil {
		c.rt = http.DefaultTransport
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.metrics == nil {
		c.metrics = metrics.Nop{}
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c, nil
}

type noEvictKey struct{}

// WithoutEviction marks ctx so that a 401 on calls made with it is returned
// to the caller without evicting the session. The session store uses it for
// its own identity fetch and for login, which handle 401 themselves.
func WithoutEviction(ctx context.Context) context.Context {
	return context.WithValue(ctx, noEvictKey{}, true)
}

func evictionSuppressed(ctx context.Context) bool {
	v, _ := ctx.Value(noEvictKey{}).(bool)
	return v
}

// Send performs one API call.
//
// path is relative to the base URL ("/questions/42"). body, if non-nil, is
// encoded as JSON. If out is non-nil and the response has a body, it is
// decoded into out. A *[]byte out receives the body as is, valid JSON or
// not, for callers that degrade on a malformed payload themselves.
//
// Errors are *apperror.AppError values: FromStatus for non-2xx answers,
// BadResponse for an undecodable 2xx body and Network for transport failures.
func (c *Client) Send(ctx context.Context, method, path string, body any, query url.Values, out any) error {
	op := method + " " + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("transport: encoding %s: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	target := *c.base
	target.Path = c.base.Path + path
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		return fmt.Errorf("transport: building %s: %w", op, err)
	}
	reqID := xid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return apperror.Network(op, err)
		}
	}

	// The credential is read once so the header and the generation reported
	// on a 401 belong to the same token.
	cred := c.creds.Current()

	start := time.Now()
	resp, err := c.httpClient(cred).Do(req)
	elapsed := time.Since(start)
	route := routeLabel(path)
	if err != nil {
		c.metrics.RecordRequest(method, route, 0, elapsed)
		c.logger.Warn("request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("request_id", reqID),
			slog.String("error", err.Error()),
		)
		return apperror.Network(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	c.metrics.RecordRequest(method, route, resp.StatusCode, elapsed)
	if err != nil {
		return apperror.Network(op, err)
	}

	c.logger.Debug("request completed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", elapsed),
		slog.String("request_id", reqID),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		appErr := apperror.FromStatus(resp.StatusCode, errorMessage(data))
		if resp.StatusCode == http.StatusUnauthorized && cred.Token != "" && !evictionSuppressed(ctx) {
			c.creds.Evict(ctx, cred.Generation)
		}
		return appErr
	}

	if raw, ok := out.(*[]byte); ok {
		*raw = data
		return nil
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("undecodable response",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("request_id", reqID),
			slog.String("error", err.Error()),
		)
		return apperror.BadResponse(op, resp.StatusCode, err)
	}
	return nil
}

func (c *Client) httpClient(cred Credential) *http.Client {
	rt := c.rt
	if cred.Token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: cred.Token,
				TokenType:   "Bearer",
				Expiry:      cred.Expiry,
			}),
			Base: c.rt,
		}
	}
	return &http.Client{Transport: rt, Timeout: c.timeout}
}

// errorMessage pulls a human-readable message out of an error body.
// The API answers either {"message": "..."} / {"error": "..."} or plain text.
func errorMessage(data []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
		return ""
	}
	return string(data)
}

// routeLabel replaces numeric path segments with {id} to keep metric
// cardinality bounded: /questions/42/vote → /questions/{id}/vote.
func routeLabel(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p != "" && strings.Trim(p, "0123456789") == "" {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}
