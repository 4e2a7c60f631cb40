package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationAccessorsPreferHeaders(t *testing.T) {
	n := Notification{
		Headers: map[string]string{
			"notification-type": NotificationStatusChange,
			"object-uri":        "/api/partitions/1",
			"class":             "partition",
		},
		Body: map[string]interface{}{
			"notification-type": NotificationPropertyChange,
			"object-uri":        "/api/partitions/other",
			"class":             "cpc",
		},
	}
	assert.Equal(t, NotificationStatusChange, n.Type())
	assert.Equal(t, "/api/partitions/1", n.ObjectURI())
	assert.Equal(t, "partition", n.Class())
}

func TestNotificationAccessorsFallBackToBody(t *testing.T) {
	n := Notification{
		Body: map[string]interface{}{
			"notification-type": NotificationInventoryChange,
			"object-uri":        "/api/partitions/1",
			"class":             "partition",
			"action":            InventoryAdd,
		},
	}
	assert.Equal(t, NotificationInventoryChange, n.Type())
	assert.Equal(t, "/api/partitions/1", n.ObjectURI())
	assert.Equal(t, "partition", n.Class())
	assert.Equal(t, InventoryAdd, n.Action())
}

func TestNotificationElementURI(t *testing.T) {
	n := Notification{Headers: map[string]string{"element-uri": "/api/partitions/1/nics/2"}}
	assert.Equal(t, "/api/partitions/1/nics/2", n.ObjectURI())
}

func TestNotificationPropertyDiff(t *testing.T) {
	n := Notification{
		Body: map[string]interface{}{
			"change-reports": []interface{}{
				map[string]interface{}{"property-name": "status", "new-value": "active"},
				map[string]interface{}{"property-name": "description", "new-value": "web server"},
				map[string]interface{}{"new-value": "ignored, no name"},
			},
		},
	}
	diff := n.PropertyDiff()
	assert.Equal(t, map[string]interface{}{
		"status":      "active",
		"description": "web server",
	}, diff)
}

func TestNotificationPropertyDiffEmpty(t *testing.T) {
	assert.Empty(t, Notification{}.PropertyDiff())
	assert.Empty(t, Notification{Body: map[string]interface{}{"change-reports": "bogus"}}.PropertyDiff())
}

func TestParseNotificationBody(t *testing.T) {
	headers := map[string]string{"notification-type": NotificationOSMessage}

	n := ParseNotificationBody(headers, []byte(`{"os-messages":[{"message-text":"boot"}]}`))
	require.NoError(t, n.Err)
	assert.Equal(t, NotificationOSMessage, n.Type())
	assert.NotNil(t, n.Body["os-messages"])

	n = ParseNotificationBody(headers, nil)
	require.NoError(t, n.Err)
	assert.Nil(t, n.Body)

	n = ParseNotificationBody(headers, []byte(`{broken`))
	require.Error(t, n.Err)
	assert.True(t, errors.Is(n.Err, ErrNotificationParse))
	var pe *NotificationParseError
	require.True(t, errors.As(n.Err, &pe))
	assert.Equal(t, []byte(`{broken`), pe.Body)
}
