package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Default ports of the HMC Web Services API and its notification bus.
const (
	DefaultHMCPort          = 6794
	DefaultNotificationPort = 61612
)

// sessionHeader carries the session token on authenticated requests.
const sessionHeader = "X-API-Session"

const (
	contentTypeJSON = "application/json"

	// errorBodyLimit caps how much of an HMC error body is preserved
	// verbatim for errors and logs.
	errorBodyLimit = 16 * 1024
)

var errRedirectLimit = errors.New("redirect limit reached")

// newHTTPClient builds the HTTP client used for one session, applying the
// certificate policy and the connect/read timeouts.
func newHTTPClient(policy CertPolicy, rt RetryTimeoutConfig, instrument bool) (*http.Client, error) {
	tlsCfg, err := policy.TLSConfig()
	if err != nil {
		return nil, err
	}
	var transport http.RoundTripper = &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: rt.ConnectTimeout,
		}).DialContext,
		TLSClientConfig:       tlsCfg,
		TLSHandshakeTimeout:   rt.ConnectTimeout,
		ResponseHeaderTimeout: rt.ReadTimeout,
	}
	if instrument {
		transport = otelhttp.NewTransport(transport)
	}
	maxRedirects := rt.MaxRedirects
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errRedirectLimit
			}
			return nil
		},
	}, nil
}

// retryBudgets tracks the separate connect and read retry allowances of one
// request. Connect failures draw from the connect budget; failures after the
// connection was established draw from the read budget, which is zero for
// non-idempotent methods.
type retryBudgets struct {
	connect int
	read    int
}

func newRetryBudgets(method string, rt RetryTimeoutConfig) retryBudgets {
	b := retryBudgets{connect: rt.ConnectRetries}
	if method == http.MethodGet {
		b.read = rt.ReadRetries
	}
	return b
}

// allow consumes one retry from the budget matching the failure phase and
// reports whether another attempt is permitted.
func (b *retryBudgets) allow(connectPhase bool) bool {
	if connectPhase {
		if b.connect == 0 {
			return false
		}
		b.connect--
		return true
	}
	if b.read == 0 {
		return false
	}
	b.read--
	return true
}

// doHTTP performs one HTTP exchange against the session's pinned host,
// applying connect retries, and read retries for idempotent methods. It
// returns the status code and the raw response body; HTTP-level error
// statuses are not an error at this layer.
func (s *Session) doHTTP(ctx context.Context, host, method, uri string, body []byte, contentType, token string) (int, []byte, error) {
	budgets := newRetryBudgets(method, s.rt)
	attempt := 0
	for {
		attempt++
		select {
		case <-s.closed:
			return 0, nil, ErrSessionClosed
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		default:
		}

		status, respBody, err := s.exchange(ctx, host, method, uri, body, contentType, token)
		if err == nil {
			return status, respBody, nil
		}

		kind, connectPhase, retryable := classifyTransportError(err)
		if !retryable || !budgets.allow(connectPhase) {
			return 0, nil, &ConnectionError{Host: host, Attempts: attempt, Kind: kind, Err: err}
		}
		s.logger.Debug("retrying request after transport failure", map[string]interface{}{
			"method":  method,
			"uri":     uri,
			"attempt": attempt,
			"error":   err.Error(),
		})
	}
}

// exchange is a single request/response round trip.
func (s *Session) exchange(ctx context.Context, host, method, uri string, body []byte, contentType, token string) (int, []byte, error) {
	reqURL := "https://" + host + uri
	reqCtx, cancel := context.WithTimeout(ctx, s.rt.ReadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, reqURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "*/*")
	if len(body) > 0 {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set(sessionHeader, token)
	}

	start := time.Now()
	resp, err := s.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	fields := map[string]interface{}{
		"method":   method,
		"uri":      uri,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}
	if resp.StatusCode >= 400 {
		fields["body"] = truncateBody(respBody)
		s.logger.Debug("HMC request failed", fields)
	} else {
		s.logger.Debug("HMC request", fields)
	}
	return resp.StatusCode, respBody, nil
}

// classifyTransportError maps a transport failure to its sentinel, the
// retry budget it draws from (connect phase or read phase), and whether a
// retry can help at all.
func classifyTransportError(err error) (kind error, connectPhase, retryable bool) {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err == errRedirectLimit {
		return ErrRetriesExceeded, false, false
	}

	dial := false
	var oe *net.OpError
	if errors.As(err, &oe) && oe.Op == "dial" {
		dial = true
	}
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ue) && ue.Timeout()) {
		if dial {
			return ErrConnectTimeout, true, true
		}
		return ErrReadTimeout, false, true
	}
	if dial {
		return ErrConnection, true, true
	}
	return ErrConnection, false, true
}

// isConnectFailure reports whether a request error never reached the HMC,
// which during logon advances host failover to the next candidate.
// Certificate validation failures count as connect failures here.
func isConnectFailure(err error) bool {
	if errors.Is(err, ErrConnectTimeout) || errors.Is(err, ErrConnection) {
		return true
	}
	var ae *AuthError
	return errors.As(err, &ae) && ae.Client
}

// hmcErrorBody is the documented JSON error body of the HMC.
type hmcErrorBody struct {
	Reason  int    `json:"reason"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// errorFromResponse builds the HTTPError for a 4xx/5xx response. Non-JSON
// bodies get the reserved reason codes: 900 when the HMC answered with its
// "Web Services API is not enabled" HTML page, 999 otherwise.
func errorFromResponse(method, uri string, status int, body []byte) *HTTPError {
	var parsed hmcErrorBody
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil && (parsed.Message != "" || parsed.Reason != 0) {
		return &HTTPError{
			Status:  status,
			Reason:  parsed.Reason,
			Message: parsed.Message,
			Method:  method,
			URI:     uri,
			Stack:   parsed.Stack,
		}
	}
	text := truncateBody(body)
	reason := ReasonNonJSONError
	if looksLikeWSDisabled(text) {
		reason = ReasonHTMLError
	}
	return &HTTPError{
		Status:  status,
		Reason:  reason,
		Message: text,
		Method:  method,
		URI:     uri,
	}
}

// looksLikeWSDisabled heuristically detects the HTML page the console
// serves when its Web Services interface is turned off.
func looksLikeWSDisabled(body string) bool {
	lower := strings.ToLower(body)
	if !strings.Contains(lower, "<html") {
		return false
	}
	return strings.Contains(lower, "web services") &&
		(strings.Contains(lower, "not enabled") || strings.Contains(lower, "disabled"))
}

func truncateBody(body []byte) string {
	if len(body) > errorBodyLimit {
		return string(body[:errorBodyLimit]) + fmt.Sprintf("... (%d bytes truncated)", len(body)-errorBodyLimit)
	}
	return string(body)
}

// decodeJSONBody decodes a JSON response body into a generic property map.
// Decode failures carry line/column information when available.
func decodeJSONBody(body []byte) (map[string]interface{}, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		line, col := offsetToLineCol(body, err)
		return nil, &ParseError{Line: line, Column: col, Err: err}
	}
	return out, nil
}

// offsetToLineCol converts a json.SyntaxError offset to line and column.
func offsetToLineCol(body []byte, err error) (int, int) {
	var syn *json.SyntaxError
	var off int64
	if errors.As(err, &syn) {
		off = syn.Offset
	} else {
		var ut *json.UnmarshalTypeError
		if errors.As(err, &ut) {
			off = ut.Offset
		} else {
			return 0, 0
		}
	}
	line, col := 1, 1
	for i := int64(0); i < off && i < int64(len(body)); i++ {
		if body[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
