package anonymizer

import (
	"fmt"
	"math"
)

// Params holds operator parameters. Values may come from Go callers (int,
// bool, string) or straight from decoded JSON (float64), so accessors accept
// both.
type Params map[string]any

// merge returns a copy of defaults overlaid with p.
func (p Params) merge(defaults Params) Params {
	out := make(Params, len(defaults)+len(p))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (p Params) has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

func (p Params) getString(key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidParams, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidParams, key, v)
	}
	return s, nil
}

func (p Params) getBool(key string) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return false, fmt.Errorf("%w: %s is required", ErrInvalidParams, key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a boolean, got %T", ErrInvalidParams, key, v)
	}
	return b, nil
}

func (p Params) getInt(key string) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidParams, key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidParams, key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: %s must be an integer, got %T", ErrInvalidParams, key, v)
	}
}
