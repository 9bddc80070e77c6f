package protocol

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/playcrawl/playcrawl/internal/auth"
	"github.com/playcrawl/playcrawl/internal/config"
	"github.com/playcrawl/playcrawl/internal/model"
)

// State is the session's authentication state.
type State string

// Session states. AuthFailed is terminal: a rejected handshake means the
// credentials are bad and retrying the same ones cannot succeed.
const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateAuthFailed      State = "auth_failed"
)

// Authentication service scopes. The handshake runs twice: once against the
// device-registration scope to obtain the long-lived master token, then
// against the market scope to obtain the bearer token every catalog call
// carries.
const (
	deviceRegistrationService = "ac2dm"
	deviceRegistrationApp     = "com.google.android.gsf"
	marketService             = "androidmarket"
	marketApp                 = "com.android.vending"
)

// maxResponseSize bounds how much of a protocol response body is read.
// Catalog envelopes are small; this only guards against a misbehaving
// server. Binary downloads stream and are not subject to this limit.
const maxResponseSize = 32 * 1024 * 1024

// Session owns the transport state for the catalog service: cookies,
// device identity, and the bearer token attached to every authenticated
// call. One Session serves one account for the lifetime of the process;
// tokens are not persisted across runs.
//
// Login must complete before any other method is called. After that,
// catalog calls may run concurrently; the token refresh triggered by an
// authorization rejection is serialized internally.
type Session struct {
	client  *http.Client
	encrypt auth.Encrypter
	logger  *slog.Logger

	authURL    string
	catalogURL string

	clientID          string
	loginUserAgent    string
	marketUserAgent   string
	downloadUserAgent string
	purchaseTimeout   time.Duration

	user     string
	password string
	deviceID string

	// mu guards the token and state fields below; reauthMu serializes
	// token refresh so concurrent 401 responses trigger one exchange
	// at a time.
	mu       sync.Mutex
	reauthMu sync.Mutex

	// masterToken is the long-lived token from the first handshake step.
	// It is reused for transparent re-authentication when the short-lived
	// bearer token expires mid-crawl.
	masterToken string
	bearerToken string

	state State
}

// Option configures a Session.
type Option func(*Session)

// WithHTTPClient sets a custom HTTP client. The default client carries a
// cookie jar and no overall timeout; individual operations that need a
// bound (purchase authorization) apply one via context.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Session) {
		s.client = client
	}
}

// WithEncrypter sets a custom credential encrypter.
// Tests use this to avoid real RSA against the production key.
func WithEncrypter(e auth.Encrypter) Option {
	return func(s *Session) {
		s.encrypt = e
	}
}

// WithLogger sets the logger used by the session.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession creates a Session configured from cfg.
func NewSession(cfg *config.Config, opts ...Option) *Session {
	// cookiejar.New only fails with non-nil options.
	jar, _ := cookiejar.New(nil) //nolint:errcheck

	s := &Session{
		client:            &http.Client{Jar: jar},
		encrypt:           auth.Encrypt,
		logger:            slog.Default(),
		authURL:           cfg.AuthURL,
		catalogURL:        strings.TrimRight(cfg.CatalogURL, "/"),
		clientID:          cfg.ClientID,
		loginUserAgent:    cfg.LoginUserAgent,
		marketUserAgent:   cfg.MarketUserAgent,
		downloadUserAgent: cfg.DownloadUserAgent,
		purchaseTimeout:   cfg.PurchaseTimeout,
		state:             StateUnauthenticated,
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current authentication state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState transitions the session to st.
func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// tokens returns the current master and bearer tokens.
func (s *Session) tokens() (master, bearer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.masterToken, s.bearerToken
}

// setTokens stores the handshake results.
func (s *Session) setTokens(master, bearer string) {
	s.mu.Lock()
	s.masterToken = master
	s.bearerToken = bearer
	s.mu.Unlock()
}

// Login performs the two-step authentication handshake. On success the
// session holds a bearer token and transitions to Authenticated; a rejected
// handshake returns an AuthError (with the service's remediation URL when
// one was offered) and leaves the session in AuthFailed.
func (s *Session) Login(ctx context.Context, user, password, deviceID string) error {
	s.setState(StateAuthenticating)
	s.user = user
	s.password = password
	s.deviceID = deviceID
	s.setTokens("", "")

	token, _, err := s.requestToken(ctx, deviceRegistrationService, deviceRegistrationApp, s.loginUserAgent)
	if err != nil {
		s.setState(StateAuthFailed)
		return err
	}
	s.setTokens(token, "")
	s.logger.Debug("device registration complete", "master_token", token)

	_, bearer, err := s.requestToken(ctx, marketService, marketApp, s.marketUserAgent)
	if err != nil {
		s.setState(StateAuthFailed)
		return err
	}
	s.setTokens(token, bearer)
	s.setState(StateAuthenticated)
	s.logger.Info("authenticated", "user", user, "device_id", deviceID)
	return nil
}

// requestToken posts one credential exchange against the authentication
// endpoint. The response is a plain-text key=value body; Error/ErrorDetail
// (plus an optional Url hint) signal rejection.
func (s *Session) requestToken(ctx context.Context, service, app, userAgent string) (token, authToken string, err error) {
	form := url.Values{
		"accountType":    {"HOSTED_OR_GOOGLE"},
		"has_permission": {"1"},
		"add_account":    {"1"},
		"get_accountid":  {"1"},
		"service":        {service},
		"app":            {app},
		"source":         {"android"},
		"Email":          {s.user},
	}
	if s.deviceID != "" {
		form.Set("androidId", s.deviceID)
	}

	// After the first step, the master token replaces the encrypted
	// password in subsequent exchanges.
	if master, _ := s.tokens(); master != "" {
		form.Set("EncryptedPasswd", master)
	} else {
		blob, encErr := s.encrypt(s.user, s.password)
		if encErr != nil {
			return "", "", fmt.Errorf("failed to encrypt credentials: %w", encErr)
		}
		form.Set("EncryptedPasswd", base64.URLEncoding.EncodeToString(blob))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)
	if s.deviceID != "" {
		req.Header.Set("device", s.deviceID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", "", fmt.Errorf("failed to read login response: %w", err)
	}

	values := parseKeyValues(string(body))
	if errMsg, ok := values["Error"]; ok {
		msg := values["ErrorDetail"]
		if msg == "" {
			msg = errMsg
		}
		return "", "", &AuthError{Message: msg, RemediationURL: values["Url"]}
	}
	if values["Auth"] == "" {
		return "", "", &AuthError{Message: "login response contains no auth token"}
	}
	return values["Token"], values["Auth"], nil
}

// parseKeyValues parses a plain-text "key=value" line response body.
func parseKeyValues(body string) map[string]string {
	values := make(map[string]string)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		values[key] = value
	}
	return values
}

// Details fetches the details snapshot for one entry.
func (s *Session) Details(ctx context.Context, docID string) (*model.Entry, error) {
	env, err := s.call(ctx, http.MethodGet, s.catalogURL+"/details", url.Values{"doc": {docID}}, 0)
	if err != nil {
		return nil, err
	}
	if err := env.Err("details", docID); err != nil {
		return nil, err
	}
	if env.Details == nil || env.Details.DocID == "" {
		return nil, &NotFoundError{DocID: docID}
	}
	return env.Details, nil
}

// Reviews fetches up to count reviews for one entry. count bounds how many
// reviews the service is asked for; there is no further pagination.
func (s *Session) Reviews(ctx context.Context, docID string, count int) ([]model.Review, error) {
	params := url.Values{
		"doc": {docID},
		"n":   {strconv.Itoa(count)},
	}
	env, err := s.call(ctx, http.MethodGet, s.catalogURL+"/rev", params, 0)
	if err != nil {
		return nil, err
	}
	if err := env.Err("reviews", docID); err != nil {
		return nil, err
	}
	return env.Reviews, nil
}

// ResolveDownloadURL requests delivery metadata for an entry version and
// returns the download URL. An empty URL or an in-band service error is
// not fatal: the caller decides what the absence of a URL means (typically
// "not owned, purchase required first"), so both cases return ("", nil)
// after logging.
func (s *Session) ResolveDownloadURL(ctx context.Context, docID string, versionCode int) (string, error) {
	params := url.Values{
		"doc": {docID},
		"ot":  {"1"},
		"vc":  {strconv.Itoa(versionCode)},
	}
	env, err := s.call(ctx, http.MethodGet, s.catalogURL+"/delivery", params, 0)
	if err != nil {
		return "", err
	}
	if err := env.Err("delivery", docID); err != nil {
		s.logger.Warn("delivery resolution refused", "doc_id", docID, "error", err)
		return "", nil
	}
	if env.Delivery == nil || env.Delivery.DownloadURL == "" {
		s.logger.Debug("no download url available", "doc_id", docID, "version_code", versionCode)
		return "", nil
	}
	return env.Delivery.DownloadURL, nil
}

// AuthorizePurchase completes the zero-cost purchase required before a
// binary can be delivered, returning the download token. The purchase
// endpoint is known to stall, so the request carries a hard timeout.
func (s *Session) AuthorizePurchase(ctx context.Context, docID string, versionCode int) (string, error) {
	if versionCode == 0 {
		return "", ErrMissingVersionCode
	}

	params := url.Values{
		"doc": {docID},
		"ot":  {"1"},
		"vc":  {strconv.Itoa(versionCode)},
	}
	env, err := s.call(ctx, http.MethodPost, s.catalogURL+"/purchase", params, s.purchaseTimeout)
	if err != nil {
		return "", err
	}
	if err := env.Err("purchase", docID); err != nil {
		return "", err
	}
	return env.DownloadToken, nil
}

// DownloadBinary streams the binary at rawURL to destPath. Any pre-existing
// file at destPath is removed first (non-atomic overwrite). It reports
// whether a non-empty file exists afterward; a zero-length response is not
// an error, just false.
func (s *Session) DownloadBinary(ctx context.Context, rawURL, destPath string) (bool, error) {
	if rawURL == "" {
		return false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build download request: %w", err)
	}
	req.Header.Set("User-Agent", s.downloadUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0750); err != nil {
		return false, fmt.Errorf("failed to create download directory: %w", err)
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to remove existing file: %w", err)
	}

	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return false, fmt.Errorf("failed to create destination file: %w", err)
	}

	written, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		// Drop the partial file so a truncated download is never mistaken
		// for a complete one.
		_ = os.Remove(destPath) //nolint:errcheck // best effort cleanup
		return false, fmt.Errorf("download interrupted: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(destPath) //nolint:errcheck // best effort cleanup
		return false, fmt.Errorf("failed to flush destination file: %w", closeErr)
	}

	if written == 0 {
		_ = os.Remove(destPath) //nolint:errcheck // best effort cleanup
		return false, nil
	}
	return true, nil
}

// Related resolves a navigation token (taken from an entry's metadata) into
// its related-entries list. The list arrives in the response's first
// prefetch slot; a missing slot is a protocol mismatch, not a service error.
func (s *Session) Related(ctx context.Context, navToken string) ([]model.EntryStub, error) {
	env, err := s.call(ctx, http.MethodGet, s.catalogURL+"/"+navToken, nil, 0)
	if err != nil {
		return nil, err
	}
	if err := env.Err("related", ""); err != nil {
		return nil, err
	}
	if len(env.Prefetch) == 0 {
		return nil, &DecodeError{Op: "related", Err: ErrMissingPrefetch}
	}

	prefetched := env.Prefetch[0]
	if err := prefetched.Err("related", ""); err != nil {
		return nil, err
	}
	return prefetched.List, nil
}

// call performs one authenticated protocol request and decodes the
// envelope. A 401-equivalent rejection triggers exactly one transparent
// re-authentication (exchanging the retained master token for a fresh
// bearer token) before the call is replayed; a second rejection surfaces
// an AuthError.
func (s *Session) call(ctx context.Context, method, endpoint string, params url.Values, timeout time.Duration) (*Envelope, error) {
	if s.State() != StateAuthenticated {
		return nil, ErrNotAuthenticated
	}

	body, status, err := s.do(ctx, method, endpoint, params, timeout)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		s.logger.Warn("bearer token rejected, re-authenticating once")
		if err := s.reauthenticate(ctx); err != nil {
			return nil, err
		}
		body, status, err = s.do(ctx, method, endpoint, params, timeout)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			s.setState(StateAuthFailed)
			return nil, &AuthError{Message: "bearer token rejected after re-authentication"}
		}
	}

	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", status, endpoint)
	}
	return DecodeEnvelope(body)
}

// do performs the raw HTTP exchange and returns the response bytes.
func (s *Session) do(ctx context.Context, method, endpoint string, params url.Values, timeout time.Duration) ([]byte, int, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	requestURL := endpoint
	if len(params) > 0 {
		separator := "?"
		if strings.Contains(endpoint, "?") {
			separator = "&"
		}
		requestURL = endpoint + separator + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	_, bearer := s.tokens()
	req.Header.Set("X-DFE-Device-Id", s.deviceID)
	req.Header.Set("X-DFE-Client-Id", s.clientID)
	req.Header.Set("Authorization", "GoogleLogin auth="+bearer)
	req.Header.Set("User-Agent", s.marketUserAgent)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response from %s: %w", endpoint, err)
	}
	return body, resp.StatusCode, nil
}

// reauthenticate refreshes the bearer token using the retained master
// token. Falls back to a full login when no master token is held.
// Concurrent callers are serialized; a refresh that already happened while
// waiting for the lock is simply repeated, which is harmless.
func (s *Session) reauthenticate(ctx context.Context) error {
	s.reauthMu.Lock()
	defer s.reauthMu.Unlock()

	master, _ := s.tokens()
	if master == "" {
		return s.Login(ctx, s.user, s.password, s.deviceID)
	}

	s.setState(StateAuthenticating)
	_, bearer, err := s.requestToken(ctx, marketService, marketApp, s.marketUserAgent)
	if err != nil {
		s.setState(StateAuthFailed)
		return err
	}
	s.setTokens(master, bearer)
	s.setState(StateAuthenticated)
	s.logger.Info("bearer token refreshed")
	return nil
}
