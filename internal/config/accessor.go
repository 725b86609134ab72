package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// tree is the generic JSON form of a Config that dot paths address.
type tree = map[string]any

func toTree(cfg *Config) (tree, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var t tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return t, nil
}

// fromTree decodes t into cfg, rejecting keys Config has no field for.
func fromTree(t tree, cfg *Config) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var next Config
	if err := dec.Decode(&next); err != nil {
		return err
	}
	*cfg = next
	return nil
}

func splitPath(path string) ([]string, error) {
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid config path %q", path)
		}
	}
	return parts, nil
}

// GetByPath returns the value at a dot path such as "delivery.timeoutMs" or
// "browser.selectors.sendButton".
func GetByPath(cfg *Config, path string) (any, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	t, err := toTree(cfg)
	if err != nil {
		return nil, err
	}

	var cur any = t
	for i, key := range parts {
		m, ok := cur.(tree)
		if !ok {
			return nil, fmt.Errorf("%s is a %T, not a section", strings.Join(parts[:i], "."), cur)
		}
		if cur, ok = m[key]; !ok {
			return nil, fmt.Errorf("key not found: %s", path)
		}
	}
	return cur, nil
}

// SetByPath sets the value at a dot path. String values are converted to the
// type of the value they replace, so "true" sets a bool and "5000" a number.
// The result is not validated; callers run Validate before saving.
func SetByPath(cfg *Config, path string, value any) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	t, err := toTree(cfg)
	if err != nil {
		return err
	}

	parent := t
	for _, key := range parts[:len(parts)-1] {
		switch child := parent[key].(type) {
		case tree:
			parent = child
		case nil:
			// omitempty sections such as browser.selectors
			next := tree{}
			parent[key] = next
			parent = next
		default:
			return fmt.Errorf("cannot set %s: %s is a %T", path, key, child)
		}
	}

	leaf := parts[len(parts)-1]
	v, err := coerce(parent[leaf], value)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	parent[leaf] = v

	if err := fromTree(t, cfg); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

// coerce converts a string value to the JSON type of current.
func coerce(current, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	switch current.(type) {
	case bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("expects true or false, got %q", s)
		}
		return b, nil
	case float64:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("expects a number, got %q", s)
		}
		return n, nil
	case tree:
		return nil, fmt.Errorf("is a section; set one of its keys instead")
	}
	return s, nil
}

// Sanitize returns a deep copy of cfg with secrets masked.
func Sanitize(cfg *Config) *Config {
	t, err := toTree(cfg)
	if err != nil {
		return cfg
	}
	var out Config
	if err := fromTree(t, &out); err != nil {
		return cfg
	}
	if out.Notify.Telegram.Token != "" {
		out.Notify.Telegram.Token = maskString(out.Notify.Telegram.Token)
	}
	return &out
}

// maskString keeps the first and last 4 characters.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every leaf path with its current value.
func ListPaths(cfg *Config) map[string]any {
	t, err := toTree(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	var walk func(prefix string, m tree)
	walk = func(prefix string, m tree) {
		for k, v := range m {
			if prefix != "" {
				k = prefix + "." + k
			}
			if sub, ok := v.(tree); ok {
				walk(k, sub)
				continue
			}
			out[k] = v
		}
	}
	walk("", t)
	return out
}
