package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Filter is an ordered list of (property, match value) arguments used by
// List, Find and FindAll to narrow a result set.
//
// Match semantics:
//   - a string property matches a string value if the value, taken as a
//     regular expression anchored at both ends, matches the actual value
//   - non-string properties match by equality on the property's native
//     type; a match value of a different static type is converted first
//     (booleans accept "true"/"false" case-insensitively, numbers accept
//     lexical integer and float strings); failed conversion is a
//     FilterConversionError
//   - a list match value matches if any element matches
//   - a property absent from a resource never matches, without error
type Filter struct {
	args []filterArg
}

type filterArg struct {
	prop  string
	value interface{}
}

// regexpQuote escapes a literal string for use as a name filter value,
// since string filter values are regular expressions on the wire.
func regexpQuote(s string) string {
	return regexp.QuoteMeta(s)
}

// NewFilter returns an empty filter, which matches every resource.
func NewFilter() *Filter {
	return &Filter{}
}

// Where appends a filter argument and returns the filter for chaining.
func (f *Filter) Where(prop string, value interface{}) *Filter {
	f.args = append(f.args, filterArg{prop: prop, value: value})
	return f
}

// ByName is shorthand for a filter on a single name property.
func ByName(nameProp, name string) *Filter {
	return NewFilter().Where(nameProp, name)
}

// Empty reports whether the filter has no arguments.
func (f *Filter) Empty() bool {
	return f == nil || len(f.args) == 0
}

// Props returns the property names mentioned by the filter, in order.
func (f *Filter) Props() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.args))
	for i, a := range f.args {
		out[i] = a.prop
	}
	return out
}

// Value returns the match value for a property and whether the filter
// mentions it.
func (f *Filter) Value(prop string) (interface{}, bool) {
	if f == nil {
		return nil, false
	}
	for _, a := range f.args {
		if a.prop == prop {
			return a.value, true
		}
	}
	return nil, false
}

// Split partitions the filter into the arguments whose property is listed in
// serverProps (sent as query parameters) and the remainder (evaluated
// client-side).
func (f *Filter) Split(serverProps []string) (server, client *Filter) {
	server, client = NewFilter(), NewFilter()
	if f == nil {
		return server, client
	}
	isServer := make(map[string]bool, len(serverProps))
	for _, p := range serverProps {
		isServer[p] = true
	}
	for _, a := range f.args {
		if isServer[a.prop] {
			server.args = append(server.args, a)
		} else {
			client.args = append(client.args, a)
		}
	}
	return server, client
}

// QueryValues renders the filter as URI query parameters. Only string
// renderable values are expected here; lists produce repeated parameters.
func (f *Filter) QueryValues() map[string][]string {
	out := make(map[string][]string)
	if f == nil {
		return out
	}
	for _, a := range f.args {
		switch v := a.value.(type) {
		case []interface{}:
			for _, e := range v {
				out[a.prop] = append(out[a.prop], fmt.Sprint(e))
			}
		case []string:
			for _, e := range v {
				out[a.prop] = append(out[a.prop], e)
			}
		default:
			out[a.prop] = append(out[a.prop], fmt.Sprint(v))
		}
	}
	return out
}

// String renders the filter for error messages, e.g. {name: "P1"}.
func (f *Filter) String() string {
	if f.Empty() {
		return "{}"
	}
	parts := make([]string, len(f.args))
	for i, a := range f.args {
		parts[i] = fmt.Sprintf("%s: %#v", a.prop, a.value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Matches evaluates the filter against a property snapshot.
func (f *Filter) Matches(props map[string]interface{}) (bool, error) {
	if f == nil {
		return true, nil
	}
	for _, a := range f.args {
		actual, ok := props[a.prop]
		if !ok {
			return false, nil
		}
		matched, err := matchValue(a.prop, actual, a.value)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

// matchValue evaluates one filter argument, expanding list match values
// into an OR over the elements.
func matchValue(prop string, actual, match interface{}) (bool, error) {
	switch list := match.(type) {
	case []interface{}:
		for _, e := range list {
			ok, err := matchScalar(prop, actual, e)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case []string:
		for _, e := range list {
			ok, err := matchScalar(prop, actual, e)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return matchScalar(prop, actual, match)
}

func matchScalar(prop string, actual, match interface{}) (bool, error) {
	switch av := actual.(type) {
	case string:
		ms, ok := match.(string)
		if !ok {
			// A non-string match value against a string property is
			// compared by its string rendering, exactly.
			return fmt.Sprint(match) == av, nil
		}
		re, err := regexp.Compile("^(?:" + ms + ")$")
		if err != nil {
			return false, &FilterConversionError{Property: prop, Value: match, Want: "regular expression"}
		}
		return re.MatchString(av), nil
	case bool:
		mb, err := toBool(prop, match)
		if err != nil {
			return false, err
		}
		return av == mb, nil
	case float64:
		mf, err := toFloat(prop, match)
		if err != nil {
			return false, err
		}
		return av == mf, nil
	case int:
		mf, err := toFloat(prop, match)
		if err != nil {
			return false, err
		}
		return float64(av) == mf, nil
	case int64:
		mf, err := toFloat(prop, match)
		if err != nil {
			return false, err
		}
		return float64(av) == mf, nil
	case nil:
		return match == nil, nil
	}
	// Other property types (lists, mappings) only match by deep string
	// rendering equality, which mirrors the HMC's own behavior for
	// non-scalar query properties.
	return fmt.Sprint(actual) == fmt.Sprint(match), nil
}

func toBool(prop string, v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(b) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, &FilterConversionError{Property: prop, Value: v, Want: "bool"}
}

func toFloat(prop string, v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, &FilterConversionError{Property: prop, Value: v, Want: "number"}
}
