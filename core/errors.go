package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that structured error types wrap with context
var (
	// Transport-related errors
	ErrConnection      = errors.New("connection error")
	ErrConnectTimeout  = errors.New("connect timeout")
	ErrReadTimeout     = errors.New("read timeout")
	ErrRetriesExceeded = errors.New("retries exceeded")

	// Authentication errors
	ErrClientAuth = errors.New("client authentication error")
	ErrServerAuth = errors.New("server authentication error")

	// Response handling errors
	ErrParse   = errors.New("response parse error")
	ErrVersion = errors.New("HMC API version too low")

	// Waiting errors
	ErrOperationTimeout = errors.New("operation timeout")
	ErrStatusTimeout    = errors.New("status timeout")

	// Lookup errors
	ErrNotFound      = errors.New("no resource matched the filter")
	ErrNoUniqueMatch = errors.New("more than one resource matched the filter")

	// Resource state errors
	ErrCeasedExistence = errors.New("resource has ceased to exist")
	ErrConsistency     = errors.New("inconsistent HMC response")

	// Filter errors
	ErrFilterConversion = errors.New("filter match value conversion failed")

	// Notification errors
	ErrNotification      = errors.New("notification error")
	ErrNotificationJMS   = errors.New("notification JMS error")
	ErrNotificationParse = errors.New("notification parse error")

	// Lifecycle errors
	ErrSessionClosed = errors.New("session closed")
)

// ConnectionError reports a transport-level failure after retries were
// exhausted. Kind is one of the transport sentinels (ErrConnectTimeout,
// ErrReadTimeout, ErrRetriesExceeded) or the generic ErrConnection.
type ConnectionError struct {
	Host     string // host:port the request was directed at
	Attempts int    // number of attempts made
	Kind     error  // sentinel classifying the failure
	Err      error  // underlying error from the transport
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v to %s after %d attempt(s): %v", e.Kind, e.Host, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%v to %s after %d attempt(s)", e.Kind, e.Host, e.Attempts)
}

func (e *ConnectionError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, ErrConnection, e.Err}
	}
	return []error{e.Kind, ErrConnection}
}

// AuthError reports an authentication failure. Client=true means the failure
// happened locally (e.g. certificate validation); otherwise the HMC rejected
// the credentials or session token.
type AuthError struct {
	Host    string
	Client  bool
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	side := "server"
	if e.Client {
		side = "client"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s authentication failed for %s: %s: %v", side, e.Host, e.Message, e.Err)
	}
	return fmt.Sprintf("%s authentication failed for %s: %s", side, e.Host, e.Message)
}

func (e *AuthError) Unwrap() []error {
	sentinel := ErrServerAuth
	if e.Client {
		sentinel = ErrClientAuth
	}
	if e.Err != nil {
		return []error{sentinel, e.Err}
	}
	return []error{sentinel}
}

// Reason codes synthesized locally for non-JSON HMC error bodies.
const (
	// ReasonHTMLError is used when the HMC answered with an HTML error page,
	// which happens when the Web Services API is disabled on the console.
	ReasonHTMLError = 900

	// ReasonNonJSONError is used for any other error body that is not the
	// documented JSON error format.
	ReasonNonJSONError = 999
)

// HTTPError is the structured form of an HMC error response, or of a failed
// asynchronous job (synthesized from the job error fields).
type HTTPError struct {
	Status  int    // HTTP status code
	Reason  int    // HMC reason code; 900/999 for non-JSON bodies
	Message string // HMC message text
	Method  string // request method
	URI     string // request URI
	Stack   string // optional server-side stack, if the HMC supplied one
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d.%d: %s", e.Method, e.URI, e.Status, e.Reason, e.Message)
}

// ParseError reports a response body that could not be decoded as the
// expected content type.
type ParseError struct {
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("cannot parse response body at line %d column %d: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("cannot parse response body: %v", e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }

// VersionError reports that the HMC API version is below the minimum
// required by an operation.
type VersionError struct {
	Operation     string
	RequiredMajor int
	RequiredMinor int
	ActualMajor   int
	ActualMinor   int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("%s requires HMC API version %d.%d, but the HMC reports %d.%d",
		e.Operation, e.RequiredMajor, e.RequiredMinor, e.ActualMajor, e.ActualMinor)
}

func (e *VersionError) Unwrap() error { return ErrVersion }

// OperationTimeoutError reports that a job did not reach a terminal status
// within the operation timeout.
type OperationTimeoutError struct {
	JobURI  string
	Timeout time.Duration
}

func (e *OperationTimeoutError) Error() string {
	return fmt.Sprintf("job %s did not complete within %v", e.JobURI, e.Timeout)
}

func (e *OperationTimeoutError) Unwrap() error { return ErrOperationTimeout }

// StatusTimeoutError reports that a resource did not reach one of the
// desired status values within the status timeout.
type StatusTimeoutError struct {
	URI     string
	Actual  string
	Desired []string
	Timeout time.Duration
}

func (e *StatusTimeoutError) Error() string {
	return fmt.Sprintf("resource %s still has status %q after %v, wanted one of [%s]",
		e.URI, e.Actual, e.Timeout, strings.Join(e.Desired, ", "))
}

func (e *StatusTimeoutError) Unwrap() error { return ErrStatusTimeout }

// NotFoundError reports a Find that matched no resource.
type NotFoundError struct {
	Class  string
	Filter string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s matches filter %s", e.Class, e.Filter)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NoUniqueMatchError reports a Find that matched more than one resource.
// URIs lists every matching resource.
type NoUniqueMatchError struct {
	Class  string
	Filter string
	URIs   []string
}

func (e *NoUniqueMatchError) Error() string {
	return fmt.Sprintf("%d %s resources match filter %s: %s",
		len(e.URIs), e.Class, e.Filter, strings.Join(e.URIs, ", "))
}

func (e *NoUniqueMatchError) Unwrap() error { return ErrNoUniqueMatch }

// CeasedExistenceError reports an operation on an auto-updated resource
// whose underlying HMC resource no longer exists.
type CeasedExistenceError struct {
	URI string
}

func (e *CeasedExistenceError) Error() string {
	return fmt.Sprintf("resource %s has ceased to exist on the HMC", e.URI)
}

func (e *CeasedExistenceError) Unwrap() error { return ErrCeasedExistence }

// ConsistencyError reports an invariant violated by an HMC response.
type ConsistencyError struct {
	URI     string
	Message string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("inconsistent HMC response for %s: %s", e.URI, e.Message)
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistency }

// FilterConversionError reports a filter match value whose static type could
// not be converted to the property's type.
type FilterConversionError struct {
	Property string
	Value    interface{}
	Want     string // target type name
}

func (e *FilterConversionError) Error() string {
	return fmt.Sprintf("filter value %v (%T) for property %q cannot be converted to %s",
		e.Value, e.Value, e.Property, e.Want)
}

func (e *FilterConversionError) Unwrap() error { return ErrFilterConversion }

// NotificationJMSError reports an error frame sent by the HMC on the
// notification connection. It is delivered in-band; the stream continues.
type NotificationJMSError struct {
	Headers map[string]string
	Message string
}

func (e *NotificationJMSError) Error() string {
	return fmt.Sprintf("HMC reported a JMS error on the notification connection: %s", e.Message)
}

func (e *NotificationJMSError) Unwrap() []error {
	return []error{ErrNotificationJMS, ErrNotification}
}

// NotificationParseError reports a notification body that could not be
// decoded. It is delivered in-band; the stream continues.
type NotificationParseError struct {
	Body []byte
	Err  error
}

func (e *NotificationParseError) Error() string {
	return fmt.Sprintf("cannot parse notification body: %v", e.Err)
}

func (e *NotificationParseError) Unwrap() []error {
	return []error{ErrNotificationParse, ErrNotification}
}

// IsRetryableConnection reports whether an error is a transient transport
// failure that a caller may reasonably retry.
func IsRetryableConnection(err error) bool {
	return errors.Is(err, ErrConnectTimeout) ||
		errors.Is(err, ErrReadTimeout) ||
		errors.Is(err, ErrConnection)
}

// IsAuthError reports whether an error is an authentication failure on
// either side.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrClientAuth) || errors.Is(err, ErrServerAuth)
}

// IsLookupError reports whether an error came from a filter lookup that
// produced zero or multiple matches.
func IsLookupError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoUniqueMatch)
}

// BusyStatus reports whether an HTTPError is the HMC's "server busy"
// answer (409 with reason 1 or 2), which operations may retry.
func BusyStatus(err error) bool {
	var he *HTTPError
	if !errors.As(err, &he) {
		return false
	}
	return he.Status == 409 && (he.Reason == 1 || he.Reason == 2)
}
