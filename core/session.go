// Package core implements the session and resource engine of the HMC Web
// Services client: the HTTPS session lifecycle (logon, re-logon on token
// expiry, multi-host failover), asynchronous job completion, the generic
// resource/manager model with name-to-URI caching and filter evaluation,
// and the auto-update engine that applies inbound notifications to local
// resource state.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// URIs of the session and version endpoints.
const (
	sessionsURI    = "/api/sessions"
	thisSessionURI = "/api/sessions/this-session"
	versionURI     = "/api/version"
)

// Session is an authenticated connection to one HMC. It owns the session
// token, the retry/timeout policy, the name-to-URI cache and, once
// auto-update is enabled, the notification subscription shared by all
// auto-updated resources and managers.
//
// A Session is safe for concurrent use; token refresh is serialized
// internally.
type Session struct {
	hosts    []string
	userid   string
	password string

	rt            RetryTimeoutConfig
	certPolicy    CertPolicy
	logger        Logger
	instrument    bool
	sourceFactory NotificationSourceFactory

	httpc *http.Client

	mu    sync.Mutex // guards token, host and the version/topic fields
	token string
	host  string // pinned after the first successful logon

	apiMajor    int
	apiMinor    int
	hmcVersion  string
	objectTopic string
	jobTopic    string

	cache *nameURICache

	updaterMu sync.Mutex
	updater   *autoUpdater

	closed    chan struct{}
	closeOnce sync.Once
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRetryTimeoutConfig overrides the default retry/timeout policy.
func WithRetryTimeoutConfig(rt RetryTimeoutConfig) SessionOption {
	return func(s *Session) { s.rt = rt }
}

// WithCertPolicy sets the certificate verification policy.
func WithCertPolicy(p CertPolicy) SessionOption {
	return func(s *Session) { s.certPolicy = p }
}

// WithLogger sets the logger. The default discards all output.
func WithLogger(l Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithSessionToken seeds the session with a pre-existing token instead of
// credentials. Such a session cannot re-logon: an expired token surfaces as
// a server authentication error.
func WithSessionToken(token string) SessionOption {
	return func(s *Session) { s.token = token }
}

// WithNotificationSourceFactory installs the factory the auto-update engine
// uses to subscribe to the session's object notification topic.
func WithNotificationSourceFactory(f NotificationSourceFactory) SessionOption {
	return func(s *Session) { s.sourceFactory = f }
}

// WithHTTPInstrumentation wraps the transport with OpenTelemetry HTTP
// instrumentation against the ambient global tracer provider.
func WithHTTPInstrumentation() SessionOption {
	return func(s *Session) { s.instrument = true }
}

// NewSession builds a session for one HMC, or a list of candidate HMCs
// managing the same CPCs. Logon is lazy: the first request triggers it.
func NewSession(hosts []string, userid, password string, opts ...SessionOption) (*Session, error) {
	if len(hosts) == 0 {
		return nil, errors.New("at least one HMC host is required")
	}
	s := &Session{
		userid:   userid,
		password: password,
		rt:       DefaultRetryTimeoutConfig(),
		logger:   &NoOpLogger{},
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, h := range hosts {
		s.hosts = append(s.hosts, withDefaultPort(h, DefaultHMCPort))
	}
	s.cache = newNameURICache(s.rt.NameURICacheTTL)

	httpc, err := newHTTPClient(s.certPolicy, s.rt, s.instrument)
	if err != nil {
		return nil, err
	}
	s.httpc = httpc
	return s, nil
}

// withDefaultPort appends the default port when the host has none.
func withDefaultPort(host string, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// RetryTimeoutConfig returns the session's policy.
func (s *Session) RetryTimeoutConfig() RetryTimeoutConfig { return s.rt }

// Logger returns the session's logger.
func (s *Session) Logger() Logger { return s.logger }

// CertPolicy returns the session's certificate policy.
func (s *Session) CertPolicy() CertPolicy { return s.certPolicy }

// Host returns the host the session is pinned to, or the first candidate
// before logon.
func (s *Session) Host() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.host != "" {
		return s.host
	}
	return s.hosts[0]
}

// Token returns the current session token ("" when logged off).
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// IsLoggedOn reports whether the session holds a token.
func (s *Session) IsLoggedOn() bool { return s.Token() != "" }

// APIVersion returns the HMC API version reported at logon.
func (s *Session) APIVersion() (major, minor int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiMajor, s.apiMinor
}

// ObjectTopic returns the session's built-in object notification topic.
func (s *Session) ObjectTopic() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objectTopic
}

// JobTopic returns the session's job notification topic.
func (s *Session) JobTopic() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobTopic
}

// EnsureAPIVersion fails with a VersionError when the HMC API version is
// below the version required by an operation.
func (s *Session) EnsureAPIVersion(ctx context.Context, operation string, major, minor int) error {
	if err := s.ensureLoggedOn(ctx); err != nil {
		return err
	}
	aMaj, aMin := s.APIVersion()
	if aMaj > major || (aMaj == major && aMin >= minor) {
		return nil
	}
	return &VersionError{
		Operation:     operation,
		RequiredMajor: major, RequiredMinor: minor,
		ActualMajor: aMaj, ActualMinor: aMin,
	}
}

// logonResponse is the body of a successful POST /api/sessions.
type logonResponse struct {
	APISession  string `json:"api-session"`
	MajorVer    int    `json:"api-major-version"`
	MinorVer    int    `json:"api-minor-version"`
	ObjectTopic string `json:"notification-topic"`
	JobTopic    string `json:"job-notification-topic"`
}

// Logon authenticates against the first reachable candidate host and pins
// the session to it. Connect failures, connection refusals and certificate
// validation failures advance to the next candidate; an HMC that answers
// but rejects the credentials ends the attempt with a server auth error.
func (s *Session) Logon(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logonLocked(ctx)
}

func (s *Session) logonLocked(ctx context.Context) error {
	if s.userid == "" {
		return &AuthError{Host: s.hostLocked(), Message: "session has no credentials for logon"}
	}

	candidates := s.hosts
	if s.host != "" {
		// Re-logon sticks to the pinned host.
		candidates = []string{s.host}
	}

	body, err := json.Marshal(map[string]string{
		"userid":   s.userid,
		"password": s.password,
	})
	if err != nil {
		return err
	}

	var lastErr error
	for _, host := range candidates {
		s.logger.Debug("logging on", map[string]interface{}{
			"host":   host,
			"userid": s.userid,
		})
		status, respBody, err := s.doHTTP(ctx, host, http.MethodPost, sessionsURI, body, contentTypeJSON, "")
		if err != nil {
			if isConnectFailure(err) {
				s.logger.Warn("logon candidate unreachable, trying next", map[string]interface{}{
					"host":  host,
					"error": err.Error(),
				})
				lastErr = err
				continue
			}
			return err
		}
		if status != http.StatusOK && status != http.StatusCreated {
			he := errorFromResponse(http.MethodPost, sessionsURI, status, respBody)
			if status == http.StatusForbidden || status == http.StatusUnauthorized {
				return &AuthError{Host: host, Message: he.Message, Err: he}
			}
			return he
		}

		var lr logonResponse
		if err := json.Unmarshal(respBody, &lr); err != nil {
			line, col := offsetToLineCol(respBody, err)
			return &ParseError{Line: line, Column: col, Err: err}
		}
		s.token = lr.APISession
		s.host = host
		s.apiMajor = lr.MajorVer
		s.apiMinor = lr.MinorVer
		s.objectTopic = lr.ObjectTopic
		s.jobTopic = lr.JobTopic
		s.logger.Info("logged on", map[string]interface{}{
			"host":        host,
			"userid":      s.userid,
			"api_version": fmt.Sprintf("%d.%d", lr.MajorVer, lr.MinorVer),
			"token":       redacted,
		})
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return &ConnectionError{Host: s.hosts[0], Attempts: 0, Kind: ErrConnection}
}

func (s *Session) hostLocked() string {
	if s.host != "" {
		return s.host
	}
	return s.hosts[0]
}

// Logoff terminates the session on the HMC and drops the token. It is
// idempotent: only the first call has observable effect.
func (s *Session) Logoff(ctx context.Context) error {
	s.updaterMu.Lock()
	if s.updater != nil {
		s.updater.stop()
		s.updater = nil
	}
	s.updaterMu.Unlock()

	s.mu.Lock()
	token := s.token
	host := s.host
	s.token = ""
	s.mu.Unlock()

	s.closeOnce.Do(func() { close(s.closed) })

	if token == "" {
		return nil
	}
	_, body, err := s.doHTTPUnlessClosed(ctx, host, http.MethodDelete, thisSessionURI, nil, "", token)
	_ = body
	if err != nil && !errors.Is(err, ErrSessionClosed) {
		s.logger.Warn("logoff request failed", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.logger.Info("logged off", map[string]interface{}{"host": host})
	return nil
}

// doHTTPUnlessClosed is doHTTP without the closed-session guard, so that
// Logoff itself can still reach the HMC after closing the session.
func (s *Session) doHTTPUnlessClosed(ctx context.Context, host, method, uri string, body []byte, contentType, token string) (int, []byte, error) {
	status, respBody, err := s.exchange(ctx, host, method, uri, body, contentType, token)
	if err != nil {
		return 0, nil, &ConnectionError{Host: host, Attempts: 1, Kind: ErrConnection, Err: err}
	}
	return status, respBody, nil
}

// ensureLoggedOn performs the deferred first logon.
func (s *Session) ensureLoggedOn(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" {
		return nil
	}
	return s.logonLocked(ctx)
}

// relogon refreshes an expired session token. seenToken is the token the
// failing request carried: when another goroutine already refreshed it, the
// caller just retries with the current token.
func (s *Session) relogon(ctx context.Context, seenToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && s.token != seenToken {
		return nil
	}
	if s.userid == "" {
		return &AuthError{Host: s.hostLocked(), Message: "session token expired and no credentials available for re-logon"}
	}
	s.token = ""
	return s.logonLocked(ctx)
}

// request performs one authenticated exchange, interposing logon and the
// transparent re-logon on a 403.5 (session token expired) answer. A second
// consecutive 403.5 surfaces as a server authentication error.
func (s *Session) request(ctx context.Context, method, uri string, body []byte, contentType string) (int, []byte, error) {
	if err := s.ensureLoggedOn(ctx); err != nil {
		return 0, nil, err
	}

	s.mu.Lock()
	token, host := s.token, s.hostLocked()
	s.mu.Unlock()

	status, respBody, err := s.doHTTP(ctx, host, method, uri, body, contentType, token)
	if err != nil {
		return 0, nil, err
	}
	if status != http.StatusForbidden {
		return status, respBody, nil
	}
	he := errorFromResponse(method, uri, status, respBody)
	if he.Reason != 5 {
		return status, respBody, nil
	}

	s.logger.Debug("session token expired, re-logging on", map[string]interface{}{
		"method": method,
		"uri":    uri,
	})
	if err := s.relogon(ctx, token); err != nil {
		return 0, nil, err
	}

	s.mu.Lock()
	token, host = s.token, s.hostLocked()
	s.mu.Unlock()

	status, respBody, err = s.doHTTP(ctx, host, method, uri, body, contentType, token)
	if err != nil {
		return 0, nil, err
	}
	if status == http.StatusForbidden {
		if he := errorFromResponse(method, uri, status, respBody); he.Reason == 5 {
			return 0, nil, &AuthError{Host: host, Message: "session token rejected immediately after re-logon", Err: he}
		}
	}
	return status, respBody, nil
}

// RequestOptions carries the per-call overrides of Post and Delete.
type RequestOptions struct {
	WaitForCompletion bool
	OperationTimeout  time.Duration
	BusyRetries       int
	BusyWait          time.Duration
}

// RequestOption overrides one request knob.
type RequestOption func(*RequestOptions)

// NoWait makes Post return the job handle of an asynchronous operation
// instead of polling it to completion.
func NoWait() RequestOption {
	return func(o *RequestOptions) { o.WaitForCompletion = false }
}

// WithOperationTimeout overrides the session's operation timeout for one
// call.
func WithOperationTimeout(d time.Duration) RequestOption {
	return func(o *RequestOptions) { o.OperationTimeout = d }
}

// WithBusyRetry opts into bounded retries of the HMC's 409.1/409.2 "server
// busy" answers.
func WithBusyRetry(retries int, wait time.Duration) RequestOption {
	return func(o *RequestOptions) { o.BusyRetries = retries; o.BusyWait = wait }
}

func (s *Session) requestOptions(opts []RequestOption) RequestOptions {
	o := RequestOptions{
		WaitForCompletion: true,
		OperationTimeout:  s.rt.OperationTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Get issues GET uri and decodes the JSON response body.
func (s *Session) Get(ctx context.Context, uri string) (map[string]interface{}, error) {
	status, body, err := s.request(ctx, http.MethodGet, uri, nil, "")
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, errorFromResponse(http.MethodGet, uri, status, body)
	}
	return decodeJSONBody(body)
}

// Post issues POST uri with a JSON body. Synchronous operations return the
// decoded response. Asynchronous operations (202 with a job-uri) are polled
// to completion by default and return the job results; with NoWait the job
// handle is returned instead. A 202 without a body (whole-HMC operations)
// returns nil, nil, nil.
func (s *Session) Post(ctx context.Context, uri string, body map[string]interface{}, opts ...RequestOption) (map[string]interface{}, *Job, error) {
	o := s.requestOptions(opts)
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
	}
	s.logger.Debug("POST", map[string]interface{}{
		"uri":  uri,
		"body": redactBody(body),
	})
	status, respBody, err := s.requestWithBusyRetry(ctx, http.MethodPost, uri, encoded, contentTypeJSON, o)
	if err != nil {
		return nil, nil, err
	}
	return s.handlePostResponse(ctx, uri, status, respBody, o)
}

// Upload issues POST uri with an opaque body sent verbatim under the given
// content type (used for ISO image upload). The HMC answers such requests
// synchronously or with the usual job protocol.
func (s *Session) Upload(ctx context.Context, uri string, data []byte, contentType string, opts ...RequestOption) (map[string]interface{}, *Job, error) {
	o := s.requestOptions(opts)
	status, respBody, err := s.requestWithBusyRetry(ctx, http.MethodPost, uri, data, contentType, o)
	if err != nil {
		return nil, nil, err
	}
	return s.handlePostResponse(ctx, uri, status, respBody, o)
}

func (s *Session) handlePostResponse(ctx context.Context, uri string, status int, respBody []byte, o RequestOptions) (map[string]interface{}, *Job, error) {
	switch {
	case status == http.StatusAccepted:
		result, err := decodeJSONBody(respBody)
		if err != nil {
			return nil, nil, err
		}
		jobURI, _ := result["job-uri"].(string)
		if jobURI == "" {
			// Asynchronous operation without completion tracking.
			return nil, nil, nil
		}
		job := &Job{URI: jobURI, session: s}
		if !o.WaitForCompletion {
			return nil, job, nil
		}
		results, err := s.WaitForCompletion(ctx, job, o.OperationTimeout)
		return results, nil, err
	case status >= 200 && status < 300:
		result, err := decodeJSONBody(respBody)
		return result, nil, err
	default:
		return nil, nil, errorFromResponse(http.MethodPost, uri, status, respBody)
	}
}

// Delete issues DELETE uri. The HMC answers 204 on success.
func (s *Session) Delete(ctx context.Context, uri string, opts ...RequestOption) error {
	o := s.requestOptions(opts)
	status, body, err := s.requestWithBusyRetry(ctx, http.MethodDelete, uri, nil, "", o)
	if err != nil {
		return err
	}
	if status >= 400 {
		return errorFromResponse(http.MethodDelete, uri, status, body)
	}
	return nil
}

// requestWithBusyRetry wraps request with the opt-in bounded retry of
// 409.1/409.2 answers. Busy retries are counted separately from the
// transport retries.
func (s *Session) requestWithBusyRetry(ctx context.Context, method, uri string, body []byte, contentType string, o RequestOptions) (int, []byte, error) {
	retries := o.BusyRetries
	for {
		status, respBody, err := s.request(ctx, method, uri, body, contentType)
		if err != nil {
			return 0, nil, err
		}
		if status == http.StatusConflict && retries > 0 {
			he := errorFromResponse(method, uri, status, respBody)
			if he.Reason == 1 || he.Reason == 2 {
				retries--
				s.logger.Debug("HMC busy, retrying", map[string]interface{}{
					"method":    method,
					"uri":       uri,
					"remaining": retries,
				})
				select {
				case <-time.After(o.BusyWait):
					continue
				case <-ctx.Done():
					return 0, nil, ctx.Err()
				case <-s.closed:
					return 0, nil, ErrSessionClosed
				}
			}
		}
		return status, respBody, nil
	}
}

// versionResponse is the body of GET /api/version.
type versionResponse struct {
	MajorVer   int    `json:"api-major-version"`
	MinorVer   int    `json:"api-minor-version"`
	HMCVersion string `json:"hmc-version"`
	HMCName    string `json:"hmc-name"`
}

// QueryAPIVersion fetches the HMC and API versions without requiring a
// logon.
func (s *Session) QueryAPIVersion(ctx context.Context) (major, minor int, hmcVersion string, err error) {
	s.mu.Lock()
	host := s.hostLocked()
	s.mu.Unlock()

	status, body, err := s.doHTTP(ctx, host, http.MethodGet, versionURI, nil, "", "")
	if err != nil {
		return 0, 0, "", err
	}
	if status != http.StatusOK {
		return 0, 0, "", errorFromResponse(http.MethodGet, versionURI, status, body)
	}
	var vr versionResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		line, col := offsetToLineCol(body, err)
		return 0, 0, "", &ParseError{Line: line, Column: col, Err: err}
	}
	s.mu.Lock()
	s.apiMajor, s.apiMinor, s.hmcVersion = vr.MajorVer, vr.MinorVer, vr.HMCVersion
	s.mu.Unlock()
	return vr.MajorVer, vr.MinorVer, vr.HMCVersion, nil
}

// WaitForAvailable repeatedly probes the HMC's version endpoint until it
// answers validly, for use after an HMC restart.
func (s *Session) WaitForAvailable(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		_, _, _, err := s.QueryAPIVersion(ctx)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return &OperationTimeoutError{JobURI: versionURI, Timeout: timeout}
		}
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return ErrSessionClosed
		}
	}
}

// ChangePassword changes the userid's password through the logon endpoint
// and re-logs on with the new password.
func (s *Session) ChangePassword(ctx context.Context, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userid == "" {
		return &AuthError{Host: s.hostLocked(), Message: "session has no credentials"}
	}
	body, err := json.Marshal(map[string]string{
		"userid":       s.userid,
		"password":     s.password,
		"new-password": newPassword,
	})
	if err != nil {
		return err
	}
	host := s.hostLocked()
	status, respBody, err := s.doHTTP(ctx, host, http.MethodPost, sessionsURI, body, contentTypeJSON, "")
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		he := errorFromResponse(http.MethodPost, sessionsURI, status, respBody)
		if status == http.StatusForbidden || status == http.StatusUnauthorized {
			return &AuthError{Host: host, Message: he.Message, Err: he}
		}
		return he
	}
	var lr logonResponse
	if err := json.Unmarshal(respBody, &lr); err != nil {
		line, col := offsetToLineCol(respBody, err)
		return &ParseError{Line: line, Column: col, Err: err}
	}
	s.password = newPassword
	s.token = lr.APISession
	s.host = host
	return nil
}

// InvalidateCache drops name-to-URI cache entries for the given resource
// classes, or for every class when none are named.
func (s *Session) InvalidateCache(classes ...string) {
	s.cache.InvalidateClass(classes...)
}
