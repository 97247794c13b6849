package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// fieldKinds maps every dot path of Config, omitempty fields included, to
// the kind of its leaf value.
var fieldKinds = func() map[string]reflect.Kind {
	out := make(map[string]reflect.Kind)
	collectKinds("", reflect.TypeOf(Config{}), out)
	return out
}()

func collectKinds(prefix string, t reflect.Type, out map[string]reflect.Kind) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct {
			collectKinds(name, f.Type, out)
			continue
		}
		out[name] = f.Type.Kind()
	}
}

// toMap renders cfg as its JSON object form.
func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByPath returns the value at a dot path such as "bot.concurrency".
// Known fields left empty read as nil.
func GetByPath(cfg *Config, path string) (any, error) {
	if _, ok := fieldKinds[path]; !ok {
		return nil, fmt.Errorf("unknown config key: %s", path)
	}
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}
	return lookup(m, path), nil
}

func lookup(m map[string]any, path string) any {
	var current any = m
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[key]
	}
	return current
}

// SetByPath parses value for the field at path and stores it in cfg. Lists
// take a comma-separated string.
func SetByPath(cfg *Config, path string, value string) error {
	kind, ok := fieldKinds[path]
	if !ok {
		return fmt.Errorf("unknown config key: %s", path)
	}
	m, err := toMap(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	parent := m
	for _, key := range parts[:len(parts)-1] {
		child, ok := parent[key].(map[string]any)
		if !ok {
			child = make(map[string]any)
			parent[key] = child
		}
		parent = child
	}

	parsed, err := parseValue(kind, value)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	parent[parts[len(parts)-1]] = parsed

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

// parseValue converts s to the JSON value for a field of the given kind.
func parseValue(kind reflect.Kind, s string) (any, error) {
	switch kind {
	case reflect.Bool:
		return strconv.ParseBool(s)
	case reflect.Int, reflect.Int64:
		return strconv.ParseInt(s, 10, 64)
	case reflect.Float64:
		return strconv.ParseFloat(s, 64)
	case reflect.Slice:
		var items []string
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	default:
		return s, nil
	}
}

// Sanitize returns a copy of cfg with credentials masked.
func Sanitize(cfg *Config) *Config {
	safe := *cfg
	safe.Anthropic.FallbackModels = append([]string(nil), cfg.Anthropic.FallbackModels...)
	for _, s := range []*string{&safe.Slack.BotToken, &safe.Slack.AppToken, &safe.Anthropic.APIKey} {
		if *s != "" {
			*s = maskString(*s)
		}
	}
	return &safe
}

// maskString keeps the first and last four characters of long secrets.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every settable path with its current value.
func ListPaths(cfg *Config) map[string]any {
	m, err := toMap(cfg)
	if err != nil {
		return nil
	}
	result := make(map[string]any, len(fieldKinds))
	for path := range fieldKinds {
		result[path] = lookup(m, path)
	}
	return result
}
