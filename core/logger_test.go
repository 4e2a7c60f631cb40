package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactBody(t *testing.T) {
	body := map[string]interface{}{
		"userid":       "ensadmin",
		"password":     "secret",
		"new-password": "newsecret",
	}
	got := redactBody(body)
	assert.Equal(t, "ensadmin", got["userid"])
	assert.Equal(t, redacted, got["password"])
	assert.Equal(t, redacted, got["new-password"])

	// The original body is untouched.
	assert.Equal(t, "secret", body["password"])
}

func TestRedactBodyWithoutPassword(t *testing.T) {
	body := map[string]interface{}{"name": "P1"}
	assert.Equal(t, body, redactBody(body))
	assert.Nil(t, redactBody(nil))
}

func TestZapLoggerFields(t *testing.T) {
	zcore, logs := observer.New(zap.DebugLevel)
	l := NewZapLogger(zap.New(zcore))

	l.Info("logged on", map[string]interface{}{"host": "hmc1", "token": redacted})
	l.Debug("HMC request", map[string]interface{}{"status": 200})
	l.Warn("logon candidate unreachable, trying next", nil)
	l.Error("boom", nil)

	entries := logs.All()
	assert.Len(t, entries, 4)
	assert.Equal(t, "logged on", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "hmc1", fields["host"])
	assert.Equal(t, redacted, fields["token"])
}

func TestProductionLoggerHonorsOff(t *testing.T) {
	t.Setenv("ZHMC_LOG", "off")
	_, ok := NewProductionLogger().(*NoOpLogger)
	assert.True(t, ok)
}
