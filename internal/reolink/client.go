// SPDX-License-Identifier: MIT

// Package reolink implements a client for the Reolink camera/NVR HTTP JSON API.
//
// Commands are posted as a JSON array to /cgi-bin/api.cgi and answered with an
// array of replies. Most commands require a lease token obtained via Login;
// the client manages the token transparently and re-authenticates once when
// the device reports an expired session (cameras drop tokens on reboot).
package reolink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config holds the connection settings for one camera or NVR.
type Config struct {
	Name      string // logical camera name, used in logs and metrics
	BaseURL   string // e.g. "http://192.168.1.10"
	Username  string
	Password  string
	Timeout   time.Duration // per-command timeout
	RateLimit int           // commands per second against the device
	RateBurst int
}

// Client talks to a single Reolink device.
type Client struct {
	name    string
	base    string
	user    string
	pass    string
	http    *http.Client
	stream  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// New creates a client. The base URL must not contain credentials.
func New(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 4
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 2
	}
	return &Client{
		name: cfg.Name,
		base: strings.TrimRight(cfg.BaseURL, "/"),
		user: cfg.Username,
		pass: cfg.Password,
		http: &http.Client{Timeout: timeout},
		stream: &http.Client{
			// No overall timeout: clip downloads run for minutes. The
			// header timeout still catches dead devices.
			Transport: &http.Transport{ResponseHeaderTimeout: timeout},
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger.With().Str("camera", cfg.Name).Logger(),
	}
}

// Name returns the logical camera name.
func (c *Client) Name() string { return c.name }

func (c *Client) apiURL(cmd string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("cmd", cmd)
	return c.base + "/cgi-bin/api.cgi?" + params.Encode()
}

// call posts a single command and returns its raw value. Auth commands are
// retried once after a fresh login when the device reports a stale token.
func (c *Client) call(ctx context.Context, cmd string, param any, auth bool) (json.RawMessage, error) {
	value, err := c.callOnce(ctx, cmd, param, auth)
	if err == nil || !auth {
		return value, err
	}
	if !errors.Is(err, ErrAuth) {
		return nil, err
	}
	c.invalidateToken()
	c.logger.Debug().Str("cmd", cmd).Msg("token rejected, retrying after login")
	return c.callOnce(ctx, cmd, param, auth)
}

func (c *Client) callOnce(ctx context.Context, cmd string, param any, auth bool) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	if auth {
		token, err := c.ensureToken(ctx)
		if err != nil {
			return nil, err
		}
		params.Set("token", token)
	}

	start := time.Now()
	replies, err := c.post(ctx, c.apiURL(cmd, params), []command{{Cmd: cmd, Action: 0, Param: param}})
	if err != nil {
		observeRequest(c.name, cmd, "transport_error", start)
		return nil, c.wrapTransport(cmd, err)
	}
	if len(replies) == 0 {
		observeRequest(c.name, cmd, "bad_response", start)
		return nil, &APIError{Sentinel: ErrBadResponse, Operation: cmd, Detail: "empty reply array"}
	}
	rep := replies[0]
	if rep.Code != 0 {
		observeRequest(c.name, cmd, "device_error", start)
		apiErr := &APIError{Sentinel: ErrUpstreamError, Operation: cmd}
		if rep.Error != nil {
			apiErr.Sentinel = sentinelForRspCode(rep.Error.RspCode)
			apiErr.RspCode = rep.Error.RspCode
			apiErr.Detail = rep.Error.Detail
		}
		return nil, apiErr
	}
	observeRequest(c.name, cmd, "success", start)
	return rep.Value, nil
}

func (c *Client) post(ctx context.Context, u string, cmds []command) ([]reply, error) {
	body, err := json.Marshal(cmds)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return nil, &httpStatusError{status: res.StatusCode}
	}

	var replies []reply
	if err := json.NewDecoder(res.Body).Decode(&replies); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return replies, nil
}

type httpStatusError struct{ status int }

func (e *httpStatusError) Error() string { return fmt.Sprintf("http status %d", e.status) }

func (c *Client) wrapTransport(cmd string, err error) error {
	apiErr := &APIError{Operation: cmd, Err: err}
	var statusErr *httpStatusError
	switch {
	case errors.As(err, &statusErr):
		apiErr.Status = statusErr.status
		switch {
		case statusErr.status == http.StatusUnauthorized || statusErr.status == http.StatusForbidden:
			apiErr.Sentinel = ErrAuth
		case statusErr.status == http.StatusNotFound:
			apiErr.Sentinel = ErrNotFound
		case statusErr.status >= 500:
			apiErr.Sentinel = ErrUpstreamError
		default:
			apiErr.Sentinel = ErrBadResponse
		}
	case isTimeout(err):
		apiErr.Sentinel = ErrTimeout
	case strings.Contains(err.Error(), "decode reply"):
		apiErr.Sentinel = ErrBadResponse
	default:
		apiErr.Sentinel = ErrUpstreamUnavailable
	}
	return apiErr
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ensureToken returns a valid lease token, logging in when needed. Tokens are
// renewed one minute before the lease runs out.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}

	value, err := c.callOnce(ctx, "Login", loginParam{User: loginUser{UserName: c.user, Password: c.pass}}, false)
	if err != nil {
		loginsTotal.WithLabelValues(c.name, "error").Inc()
		return "", err
	}
	var v loginValue
	if err := json.Unmarshal(value, &v); err != nil || v.Token.Name == "" {
		loginsTotal.WithLabelValues(c.name, "error").Inc()
		return "", &APIError{Sentinel: ErrBadResponse, Operation: "Login", Detail: "missing token", Err: err}
	}
	lease := time.Duration(v.Token.LeaseTime) * time.Second
	if lease <= 2*time.Minute {
		lease = time.Hour
	}
	c.token = v.Token.Name
	c.tokenExp = time.Now().Add(lease - time.Minute)
	loginsTotal.WithLabelValues(c.name, "success").Inc()
	c.logger.Debug().Str("event", "reolink.login").Dur("lease", lease).Msg("obtained lease token")
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// Close releases the lease token. Safe to call without a live token.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.token = ""
	c.mu.Unlock()
	if token == "" {
		return nil
	}
	params := url.Values{}
	params.Set("token", token)
	_, err := c.post(ctx, c.apiURL("Logout", params), []command{{Cmd: "Logout", Action: 0}})
	return err
}

// NewTimeTable converts a time into the device's wire form. The caller is
// responsible for passing camera-local time.
func NewTimeTable(t time.Time) TimeTable {
	return TimeTable{
		Year: t.Year(),
		Mon:  int(t.Month()),
		Day:  t.Day(),
		Hour: t.Hour(),
		Min:  t.Minute(),
		Sec:  t.Second(),
	}
}

// Search queries recorded clips for one channel in [start, end]. With
// statusOnly, only the per-month day tables are returned. Times are
// interpreted by the device in its own local time.
func (c *Client) Search(ctx context.Context, channel int, start, end time.Time, stream string, statusOnly bool) (*SearchResult, error) {
	onlyStatus := 0
	if statusOnly {
		onlyStatus = 1
	}
	if stream == "" {
		stream = "main"
	}
	param := searchParam{Search: searchRequest{
		Channel:    channel,
		OnlyStatus: onlyStatus,
		StreamType: stream,
		StartTime:  NewTimeTable(start),
		EndTime:    NewTimeTable(end),
	}}
	value, err := c.call(ctx, "Search", param, true)
	if err != nil {
		return nil, err
	}
	var v searchResultValue
	if err := json.Unmarshal(value, &v); err != nil {
		return nil, &APIError{Sentinel: ErrBadResponse, Operation: "Search", Err: err}
	}
	return &v.SearchResult, nil
}

// DeviceTime fetches the device clock and timezone/DST configuration.
func (c *Client) DeviceTime(ctx context.Context) (*DeviceTime, error) {
	value, err := c.call(ctx, "GetTime", nil, true)
	if err != nil {
		return nil, err
	}
	var v DeviceTime
	if err := json.Unmarshal(value, &v); err != nil {
		return nil, &APIError{Sentinel: ErrBadResponse, Operation: "GetTime", Err: err}
	}
	return &v, nil
}

// ChannelStatuses lists the device channels. Single cameras report one
// channel; NVRs report every attached (possibly offline) camera.
func (c *Client) ChannelStatuses(ctx context.Context) ([]ChannelStatus, error) {
	value, err := c.call(ctx, "GetChannelstatus", nil, true)
	if err != nil {
		return nil, err
	}
	var v channelStatusValue
	if err := json.Unmarshal(value, &v); err != nil {
		return nil, &APIError{Sentinel: ErrBadResponse, Operation: "GetChannelstatus", Err: err}
	}
	return v.Status, nil
}

// Snapshot fetches a JPEG frame for the channel.
func (c *Client) Snapshot(ctx context.Context, channel int) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("channel", strconv.Itoa(channel))
	params.Set("rs", strconv.FormatUint(rand.Uint64(), 36))
	params.Set("token", token)

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL("Snap", params), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		observeRequest(c.name, "Snap", "transport_error", start)
		return nil, c.wrapTransport("Snap", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode != http.StatusOK {
		observeRequest(c.name, "Snap", "transport_error", start)
		return nil, c.wrapTransport("Snap", &httpStatusError{status: res.StatusCode})
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		observeRequest(c.name, "Snap", "transport_error", start)
		return nil, c.wrapTransport("Snap", err)
	}
	if ct := res.Header.Get("Content-Type"); strings.Contains(ct, "json") {
		// Snap errors come back as a JSON reply with a 200 status.
		observeRequest(c.name, "Snap", "device_error", start)
		return nil, &APIError{Sentinel: ErrUpstreamError, Operation: "Snap", Detail: strings.TrimSpace(string(data))}
	}
	observeRequest(c.name, "Snap", "success", start)
	return data, nil
}

// Clip is an open download of one recorded file.
type Clip struct {
	Body          io.ReadCloser
	ContentLength int64
	ContentType   string
}

// OpenClip streams a recorded file via the Playback command. name is the
// device-side file name from a Search result.
func (c *Client) OpenClip(ctx context.Context, name string) (*Clip, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("source", name)
	params.Set("output", name)
	params.Set("token", token)

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL("Playback", params), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.stream.Do(req)
	if err != nil {
		observeRequest(c.name, "Playback", "transport_error", start)
		return nil, c.wrapTransport("Playback", err)
	}
	if res.StatusCode != http.StatusOK {
		_ = res.Body.Close()
		observeRequest(c.name, "Playback", "transport_error", start)
		return nil, c.wrapTransport("Playback", &httpStatusError{status: res.StatusCode})
	}
	ct := res.Header.Get("Content-Type")
	if strings.Contains(ct, "json") {
		defer func() { _ = res.Body.Close() }()
		data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		observeRequest(c.name, "Playback", "device_error", start)
		return nil, &APIError{Sentinel: ErrNotFound, Operation: "Playback", Detail: strings.TrimSpace(string(data))}
	}
	observeRequest(c.name, "Playback", "success", start)
	return &Clip{Body: res.Body, ContentLength: res.ContentLength, ContentType: ct}, nil
}
