package bronto

import (
	"strconv"
	"strings"
)

func toBoolean(intf any) (result bool, ok bool) {
	if intf == nil {
		return
	}
	var supportedValue any
	switch fv := intf.(type) {
	case bool, string:
		supportedValue = fv
	case []any:
		if len(fv) > 0 {
			switch fv[0].(type) {
			case bool, string:
				supportedValue = fv[0]
			}
		}
	}
	if supportedValue != nil {
		switch fv := supportedValue.(type) {
		case bool:
			result = fv
			ok = true
		case string:
			switch strings.ToLower(strings.TrimSpace(fv)) {
			case "1", "true", "ok", "yes", "on":
				result = true
				ok = true
			case "0", "false", "no", "off":
				result = false
				ok = true
			}
		}
	}
	return
}

func toString(intf any) (result string, ok bool) {
	if intf == nil {
		return
	}
	result, ok = intf.(string)
	return
}

// toAttributeString renders a scalar directory value as a contact field content
func toAttributeString(intf any) (result string, ok bool) {
	if intf == nil {
		return
	}
	ok = true
	switch v := intf.(type) {
	case string:
		result = v
	case bool:
		if v {
			result = "true"
		} else {
			result = "false"
		}
	case float64:
		result = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		ok = false
	}
	return
}

type Set[K comparable] map[K]struct{}

func NewSet[K comparable]() Set[K] {
	return make(Set[K])
}
func (s Set[K]) Has(key K) (ok bool) {
	_, ok = s[key]
	return
}
func (s Set[K]) Add(key K) {
	s[key] = struct{}{}
}
