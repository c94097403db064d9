package isapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/icholy/digest"
	"github.com/rs/zerolog"
)

const (
	isapiPrefix    = "ISAPI"
	defaultTimeout = 20 * time.Second
)

type authMode int

const (
	authUnknown authMode = iota
	authBasic
	authDigest
)

// Client is one authenticated session to one Hikvision device. The
// discovery pipeline (GetHardwareInfo) fills the exported model fields;
// after that they are read-only.
//
// The client guards its auth-mode transitions internally but promises no
// atomicity across calls: concurrent toggles of the same event are
// last-writer-wins, exactly as they would be from two ISAPI clients.
type Client struct {
	host     string
	username string
	password string
	timeout  time.Duration
	insecure bool
	rtspPort int
	log      zerolog.Logger

	base       http.RoundTripper
	httpClient *http.Client

	authMu sync.Mutex
	auth   authMode

	pendingInit atomic.Bool

	DeviceInfo      DeviceInfo
	Capabilities    Capabilities
	Cameras         []Camera
	SupportedEvents []EventInfo
	Storage         []StorageInfo
	Protocols       ProtocolsInfo
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default 20s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithInsecureTLS skips certificate verification; self-signed device
// certificates are the norm.
func WithInsecureTLS() Option {
	return func(c *Client) { c.insecure = true }
}

// WithLogger attaches a logger; the default is a no-op.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithRTSPPort forces the RTSP port, overriding whatever
// Security/adminAccesses reports.
func WithRTSPPort(port int) Option {
	return func(c *Client) { c.rtspPort = port }
}

// WithTransport replaces the underlying round tripper, mainly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.base = rt }
}

// New creates a client for host ("http://1.2.3.4" or "https://cam.local:443").
func New(host, username, password string, opts ...Option) *Client {
	c := &Client{
		host:     strings.TrimRight(host, "/"),
		username: username,
		password: password,
		timeout:  defaultTimeout,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.base == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if c.insecure {
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		c.base = tr
	}
	c.httpClient = &http.Client{Timeout: c.timeout, Transport: c.base}
	return c
}

// Host returns the device base URL.
func (c *Client) Host() string { return c.host }

// BeginInitialization enters the capability-probing phase: endpoints that
// answer with a non-2xx status (other than 401/403) read as empty instead of
// failing, so optional features can be probed without error plumbing.
func (c *Client) BeginInitialization() { c.pendingInit.Store(true) }

// EndInitialization leaves the capability-probing phase.
func (c *Client) EndInitialization() { c.pendingInit.Store(false) }

func (c *Client) isapiURL(rel string) string {
	if strings.HasPrefix(rel, "http://") || strings.HasPrefix(rel, "https://") {
		return rel
	}
	return fmt.Sprintf("%s/%s/%s", c.host, isapiPrefix, strings.TrimPrefix(rel, "/"))
}

type requestOptions struct {
	contentType string
	body        []byte
	jsonBody    any
}

// RequestOption attaches a body to a request.
type RequestOption func(*requestOptions)

// WithXMLBody sends an application/xml payload.
func WithXMLBody(xml string) RequestOption {
	return func(ro *requestOptions) {
		ro.contentType = "application/xml"
		ro.body = []byte(xml)
	}
}

// WithJSONBody sends v marshaled as application/json.
func WithJSONBody(v any) RequestOption {
	return func(ro *requestOptions) {
		ro.contentType = "application/json"
		ro.jsonBody = v
	}
}

// detectAuthLocked probes the device without credentials and reads the
// WWW-Authenticate challenge. Devices with auth disabled, or anything not
// announcing Digest, get Basic. Callers hold authMu.
func (c *Client) detectAuthLocked(ctx context.Context) error {
	probe := &http.Client{Timeout: c.timeout, Transport: c.base}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.isapiURL("System/deviceInfo"), nil)
	if err != nil {
		return err
	}
	resp, err := probe.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectivity, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	challenge := resp.Header.Get("WWW-Authenticate")
	if resp.StatusCode == http.StatusUnauthorized && strings.HasPrefix(strings.ToLower(challenge), "digest") {
		c.auth = authDigest
		c.httpClient = &http.Client{
			Timeout: c.timeout,
			Transport: &digest.Transport{
				Username:  c.username,
				Password:  c.password,
				Transport: c.base,
			},
		}
	} else {
		c.auth = authBasic
		c.httpClient = &http.Client{Timeout: c.timeout, Transport: c.base}
	}
	c.log.Debug().Str("mode", map[authMode]string{authBasic: "basic", authDigest: "digest"}[c.auth]).
		Msg("detected auth method")
	return nil
}

func (c *Client) ensureAuth(ctx context.Context) (authMode, *http.Client, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if c.auth == authUnknown {
		if err := c.detectAuthLocked(ctx); err != nil {
			return authUnknown, nil, err
		}
	}
	return c.auth, c.httpClient, nil
}

func (c *Client) invalidateAuth() {
	c.authMu.Lock()
	c.auth = authUnknown
	c.authMu.Unlock()
}

func (c *Client) newRequest(ctx context.Context, mode authMode, method, fullURL string, ro *requestOptions) (*http.Request, error) {
	body := ro.body
	if ro.jsonBody != nil {
		var err error
		body, err = json.Marshal(ro.jsonBody)
		if err != nil {
			return nil, err
		}
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, rd)
	if err != nil {
		return nil, err
	}
	if ro.contentType != "" {
		req.Header.Set("Content-Type", ro.contentType)
	}
	if mode == authBasic {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

// do performs one exchange with the cached auth mode. A 401 invalidates the
// cache, re-detects once and retries once; a second 401 comes back as a
// StatusError.
func (c *Client) do(ctx context.Context, method, fullURL string, ro *requestOptions) (*http.Response, error) {
	mode, hc, err := c.ensureAuth(ctx)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, mode, method, fullURL, ro)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectivity, err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	c.invalidateAuth()
	mode, hc, err = c.ensureAuth(ctx)
	if err != nil {
		return nil, err
	}
	req, err = c.newRequest(ctx, mode, method, fullURL, ro)
	if err != nil {
		return nil, err
	}
	resp, err = hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectivity, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{Method: method, Path: req.URL.Path, Status: resp.StatusCode}
	}
	return resp, nil
}

// Request performs an ISAPI exchange and returns the normalized response
// map. url may be an endpoint path relative to /ISAPI/ or an absolute URL.
func (c *Client) Request(ctx context.Context, method, url string, opts ...RequestOption) (map[string]any, error) {
	body, contentType, err := c.exchange(ctx, method, url, opts)
	if err != nil {
		return nil, err
	}
	if body == nil {
		// Tolerated failure during initialization.
		return map[string]any{}, nil
	}
	return ParseISAPIResponse(contentType, body)
}

// RequestRaw performs an ISAPI exchange and returns the raw response body.
func (c *Client) RequestRaw(ctx context.Context, method, url string, opts ...RequestOption) ([]byte, error) {
	body, _, err := c.exchange(ctx, method, url, opts)
	return body, err
}

func (c *Client) exchange(ctx context.Context, method, rawURL string, opts []RequestOption) ([]byte, string, error) {
	ro := &requestOptions{}
	for _, opt := range opts {
		opt(ro)
	}
	fullURL := c.isapiURL(rawURL)
	resp, err := c.do(ctx, method, fullURL, ro)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrConnectivity, err)
	}
	c.log.Debug().Str("method", method).Str("url", fullURL).Int("status", resp.StatusCode).
		Msg("isapi request")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, resp.Header.Get("Content-Type"), nil
	}
	statusErr := &StatusError{Method: method, Path: resp.Request.URL.Path, Status: resp.StatusCode}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, "", statusErr
	}
	if c.pendingInit.Load() {
		// Optional endpoint missing while probing capabilities.
		c.log.Debug().Str("url", fullURL).Int("status", resp.StatusCode).
			Msg("endpoint unavailable during initialization")
		return nil, "", nil
	}
	return nil, "", statusErr
}

// RequestStream performs an ISAPI exchange and hands back the response body
// for streaming; the caller must close it. Non-2xx statuses are errors, the
// initialization phase makes no difference here.
func (c *Client) RequestStream(ctx context.Context, method, rawURL string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, method, c.isapiURL(rawURL), &requestOptions{})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{Method: method, Path: resp.Request.URL.Path, Status: resp.StatusCode}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, statusErr
	}
	return resp.Body, nil
}

// hostname extracts the bare host from the configured base URL.
func (c *Client) hostname() string {
	u, err := url.Parse(c.host)
	if err != nil {
		return c.host
	}
	return u.Hostname()
}

// IsConnectivityErr reports whether err is a transport-level failure rather
// than a device-side rejection.
func IsConnectivityErr(err error) bool {
	return errors.Is(err, ErrConnectivity)
}
