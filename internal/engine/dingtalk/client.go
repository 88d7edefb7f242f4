package dingtalk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds a single webhook request.
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
	maxLoggedBody    = 200
)

// Endpoint identifies one robot. It is immutable after NewEndpoint.
type Endpoint struct {
	WebhookURL string
	Secret     string
}

func NewEndpoint(webhookURL, secret string) Endpoint {
	return Endpoint{
		WebhookURL: strings.TrimSpace(webhookURL),
		Secret:     strings.TrimSpace(secret),
	}
}

// Signed reports whether requests to this endpoint carry a signature.
func (e Endpoint) Signed() bool {
	return e.Secret != ""
}

// Ack is the robot's response to a successful send.
type Ack struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock replaces the wall clock used for signature timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client posts envelopes to a single robot endpoint. It holds no mutable
// state and is safe for concurrent use.
type Client struct {
	endpoint   Endpoint
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time
}

func NewClient(endpoint Endpoint, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger.Debug().
		Str("webhook", MaskURL(endpoint.WebhookURL)).
		Bool("signed", endpoint.Signed()).
		Msg("robot client initialized")

	return c
}

func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// Notify builds the notification and sends it.
func (c *Client) Notify(ctx context.Context, n Notification) (*Ack, error) {
	env, err := Build(n)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, env)
}

// Send performs exactly one POST of the envelope. Every failure is final.
func (c *Client) Send(ctx context.Context, env *Envelope) (*Ack, error) {
	if env == nil {
		return nil, &BuildError{Err: errNoMessage}
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, &BuildError{Err: err}
	}

	c.logger.Debug().
		Str("msgtype", string(env.MsgType())).
		RawJSON("payload", body).
		Msg("payload built")

	target := SignedURL(c.endpoint.WebhookURL, c.endpoint.Secret, c.now().UnixMilli())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{Err: redactURLError(err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: redactURLError(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	var result struct {
		ErrCode *int   `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &MalformedResponseError{Body: truncate(string(raw), maxLoggedBody), Err: err}
	}

	if result.ErrCode == nil {
		msg := result.ErrMsg
		if msg == "" {
			msg = "unknown error"
		}
		return nil, &RemoteError{Code: -1, Message: msg}
	}
	if *result.ErrCode != 0 {
		return nil, &RemoteError{Code: *result.ErrCode, Message: result.ErrMsg}
	}

	ack := &Ack{ErrCode: *result.ErrCode, ErrMsg: result.ErrMsg}
	c.logger.Debug().
		Str("msgtype", string(env.MsgType())).
		Str("errmsg", ack.ErrMsg).
		Msg("notification sent")

	return ack, nil
}

// MaskURL shortens a webhook URL for logs so the access token stays out.
func MaskURL(raw string) string {
	return truncate(raw, 20) + "..."
}

// redactURLError keeps the access token and signature out of transport errors.
func redactURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s %s: %w", ue.Op, MaskURL(ue.URL), ue.Err)
	}
	return err
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
