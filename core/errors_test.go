package core

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionErrorUnwrap(t *testing.T) {
	underlying := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	err := &ConnectionError{Host: "hmc1:6794", Attempts: 4, Kind: ErrConnectTimeout, Err: underlying}

	assert.True(t, errors.Is(err, ErrConnectTimeout))
	assert.True(t, errors.Is(err, ErrConnection))
	var oe *net.OpError
	assert.True(t, errors.As(err, &oe))
	assert.Contains(t, err.Error(), "hmc1:6794")
	assert.Contains(t, err.Error(), "4 attempt(s)")
}

func TestAuthErrorSides(t *testing.T) {
	server := &AuthError{Host: "hmc1", Message: "userid or password is not valid"}
	assert.True(t, errors.Is(server, ErrServerAuth))
	assert.False(t, errors.Is(server, ErrClientAuth))
	assert.Contains(t, server.Error(), "server authentication failed")

	client := &AuthError{Host: "hmc1", Client: true, Message: "certificate signed by unknown authority"}
	assert.True(t, errors.Is(client, ErrClientAuth))
	assert.Contains(t, client.Error(), "client authentication failed")

	assert.True(t, IsAuthError(server))
	assert.True(t, IsAuthError(client))
	assert.False(t, IsAuthError(errors.New("other")))
}

func TestAuthErrorExposesWrappedHTTPError(t *testing.T) {
	auth := &AuthError{
		Host:    "hmc1",
		Message: "userid or password is not valid",
		Err:     &HTTPError{Status: 403, Reason: 4, Method: "POST", URI: "/api/sessions"},
	}

	assert.True(t, errors.Is(auth, ErrServerAuth))
	var he *HTTPError
	require.True(t, errors.As(auth, &he), "the HMC's status and reason stay reachable")
	assert.Equal(t, 403, he.Status)
	assert.Equal(t, 4, he.Reason)
}

func TestHTTPErrorFormat(t *testing.T) {
	err := &HTTPError{Status: 404, Reason: 1, Message: "no such resource", Method: "GET", URI: "/api/cpcs/1"}
	assert.Equal(t, "GET /api/cpcs/1: HTTP 404.1: no such resource", err.Error())
}

func TestBusyStatus(t *testing.T) {
	assert.True(t, BusyStatus(&HTTPError{Status: 409, Reason: 1}))
	assert.True(t, BusyStatus(&HTTPError{Status: 409, Reason: 2}))
	assert.False(t, BusyStatus(&HTTPError{Status: 409, Reason: 6}))
	assert.False(t, BusyStatus(&HTTPError{Status: 403, Reason: 5}))
	assert.False(t, BusyStatus(errors.New("not http")))
}

func TestLookupErrors(t *testing.T) {
	nf := &NotFoundError{Class: "partition", Filter: `{name: "P1"}`}
	assert.True(t, errors.Is(nf, ErrNotFound))
	assert.True(t, IsLookupError(nf))
	assert.Contains(t, nf.Error(), "partition")

	num := &NoUniqueMatchError{Class: "partition", Filter: `{status: "active"}`, URIs: []string{"/api/partitions/a", "/api/partitions/b"}}
	assert.True(t, errors.Is(num, ErrNoUniqueMatch))
	assert.True(t, IsLookupError(num))
	assert.Contains(t, num.Error(), "/api/partitions/a")
	assert.Contains(t, num.Error(), "2 partition resources")
}

func TestTimeoutErrors(t *testing.T) {
	ot := &OperationTimeoutError{JobURI: "/api/jobs/1"}
	assert.True(t, errors.Is(ot, ErrOperationTimeout))

	st := &StatusTimeoutError{URI: "/api/partitions/1", Actual: "paused", Desired: []string{"active"}}
	assert.True(t, errors.Is(st, ErrStatusTimeout))
	assert.Contains(t, st.Error(), `"paused"`)
	assert.Contains(t, st.Error(), "active")
}

func TestNotificationErrorsUnwrapToFamily(t *testing.T) {
	jms := &NotificationJMSError{Message: "denied"}
	assert.True(t, errors.Is(jms, ErrNotificationJMS))
	assert.True(t, errors.Is(jms, ErrNotification))

	pe := &NotificationParseError{Body: []byte("{"), Err: errors.New("unexpected end")}
	assert.True(t, errors.Is(pe, ErrNotificationParse))
	assert.True(t, errors.Is(pe, ErrNotification))
}

func TestCeasedAndConsistency(t *testing.T) {
	ce := &CeasedExistenceError{URI: "/api/partitions/1"}
	assert.True(t, errors.Is(ce, ErrCeasedExistence))

	cons := &ConsistencyError{URI: "/api/jobs/1", Message: "job status response has no status field"}
	assert.True(t, errors.Is(cons, ErrConsistency))
}

func TestIsRetryableConnection(t *testing.T) {
	assert.True(t, IsRetryableConnection(&ConnectionError{Kind: ErrReadTimeout}))
	assert.True(t, IsRetryableConnection(&ConnectionError{Kind: ErrConnectTimeout}))
	assert.False(t, IsRetryableConnection(&AuthError{}))
}
