package core

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryBudgetsAreSeparate(t *testing.T) {
	rt := RetryTimeoutConfig{ConnectRetries: 3, ReadRetries: 1}

	b := newRetryBudgets(http.MethodGet, rt)
	assert.True(t, b.allow(false))
	assert.False(t, b.allow(false), "read failures must not spill into the connect budget")
	assert.True(t, b.allow(true), "the connect budget is untouched by read failures")
	assert.True(t, b.allow(true))
	assert.True(t, b.allow(true))
	assert.False(t, b.allow(true))

	b = newRetryBudgets(http.MethodPost, rt)
	assert.False(t, b.allow(false), "non-idempotent methods get no read retries")
	assert.True(t, b.allow(true))
}

func TestClassifyTransportError(t *testing.T) {
	kind, connectPhase, retryable := classifyTransportError(
		&net.OpError{Op: "dial", Err: errors.New("connection refused")})
	assert.Equal(t, ErrConnection, kind)
	assert.True(t, connectPhase)
	assert.True(t, retryable)

	kind, connectPhase, retryable = classifyTransportError(
		&net.OpError{Op: "dial", Err: context.DeadlineExceeded})
	assert.Equal(t, ErrConnectTimeout, kind)
	assert.True(t, connectPhase)
	assert.True(t, retryable)

	kind, connectPhase, retryable = classifyTransportError(context.DeadlineExceeded)
	assert.Equal(t, ErrReadTimeout, kind)
	assert.False(t, connectPhase)
	assert.True(t, retryable)

	kind, _, retryable = classifyTransportError(
		&url.Error{Op: "Get", URL: "https://hmc1/api/version", Err: errRedirectLimit})
	assert.Equal(t, ErrRetriesExceeded, kind)
	assert.False(t, retryable)
}
