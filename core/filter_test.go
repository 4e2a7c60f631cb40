package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMatchesStringRegex(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		actual  string
		want    bool
	}{
		{"exact", "PART1", "PART1", true},
		{"anchored prefix", "PART", "PART1", false},
		{"anchored suffix", "ART1", "PART1", false},
		{"wildcard", "PART.*", "PART1", true},
		{"alternation", "PART1|PART2", "PART2", true},
		{"quoted literal", regexpQuote("a.b"), "a.b", true},
		{"quoted literal no wildcard", regexpQuote("a.b"), "axb", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilter().Where("name", tt.pattern)
			got, err := f.Matches(map[string]interface{}{"name": tt.actual})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterMatchesTypedValues(t *testing.T) {
	props := map[string]interface{}{
		"dpm-enabled": true,
		"processors":  float64(4),
		"name":        "CPC1",
	}

	tests := []struct {
		name   string
		prop   string
		value  interface{}
		want   bool
	}{
		{"bool native", "dpm-enabled", true, true},
		{"bool mismatch", "dpm-enabled", false, false},
		{"bool from string", "dpm-enabled", "TRUE", true},
		{"number native", "processors", float64(4), true},
		{"number from int", "processors", 4, true},
		{"number from string", "processors", "4", true},
		{"number mismatch", "processors", "5", false},
		{"int against string prop", "name", 7, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewFilter().Where(tt.prop, tt.value).Matches(props)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterConversionFailure(t *testing.T) {
	props := map[string]interface{}{"dpm-enabled": true}
	_, err := NewFilter().Where("dpm-enabled", "yes").Matches(props)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFilterConversion))

	var fce *FilterConversionError
	require.True(t, errors.As(err, &fce))
	assert.Equal(t, "dpm-enabled", fce.Property)
	assert.Equal(t, "bool", fce.Want)
}

func TestFilterListValueIsOr(t *testing.T) {
	props := map[string]interface{}{"status": "active"}

	got, err := NewFilter().Where("status", []string{"stopped", "active"}).Matches(props)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = NewFilter().Where("status", []interface{}{"stopped", "paused"}).Matches(props)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestFilterAbsentPropertyNeverMatches(t *testing.T) {
	got, err := NewFilter().Where("status", "active").Matches(map[string]interface{}{"name": "P1"})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestFilterMultipleArgsAreAnd(t *testing.T) {
	f := NewFilter().Where("name", "P.*").Where("status", "active")

	got, err := f.Matches(map[string]interface{}{"name": "P1", "status": "active"})
	require.NoError(t, err)
	assert.True(t, got)

	got, err = f.Matches(map[string]interface{}{"name": "P1", "status": "stopped"})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestFilterEmptyMatchesEverything(t *testing.T) {
	var nilFilter *Filter
	got, err := nilFilter.Matches(map[string]interface{}{"name": "x"})
	require.NoError(t, err)
	assert.True(t, got)
	assert.True(t, nilFilter.Empty())
	assert.True(t, NewFilter().Empty())
}

func TestFilterSplit(t *testing.T) {
	f := NewFilter().
		Where("name", "P1").
		Where("status", "active").
		Where("description", "web.*")

	server, client := f.Split([]string{"name", "status"})
	assert.Equal(t, []string{"name", "status"}, server.Props())
	assert.Equal(t, []string{"description"}, client.Props())

	q := server.QueryValues()
	assert.Equal(t, []string{"P1"}, q["name"])
	assert.Equal(t, []string{"active"}, q["status"])
}

func TestFilterQueryValuesExpandsLists(t *testing.T) {
	f := NewFilter().Where("status", []string{"active", "degraded"})
	q := f.QueryValues()
	assert.Equal(t, []string{"active", "degraded"}, q["status"])
}

func TestFilterString(t *testing.T) {
	assert.Equal(t, "{}", NewFilter().String())
	s := NewFilter().Where("name", "P1").String()
	assert.Contains(t, s, "name")
	assert.Contains(t, s, "P1")
}
