package provider

import (
	"fmt"
	"strconv"
	"time"
)

// Config is the per-instance configuration handed to a Factory.
type Config map[string]any

// String returns the string value for key, or def when absent or empty.
func (c Config) String(key, def string) string {
	if v, ok := c[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Int returns the integer value for key, or def. Numeric strings and JSON
// numbers are accepted.
func (c Config) Int(key string, def int) (int, error) {
	switch v := c[key].(type) {
	case nil:
		return def, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		if v == "" {
			return def, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("config %q: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("config %q: unsupported type %T", key, v)
	}
}

// Duration returns the duration value for key, or def. Strings are parsed
// with time.ParseDuration; numbers are milliseconds.
func (c Config) Duration(key string, def time.Duration) (time.Duration, error) {
	switch v := c[key].(type) {
	case nil:
		return def, nil
	case time.Duration:
		return v, nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v) * time.Millisecond, nil
	case string:
		if v == "" {
			return def, nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("config %q: %w", key, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("config %q: unsupported type %T", key, v)
	}
}

// Bool returns the boolean value for key, or def.
func (c Config) Bool(key string, def bool) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}

// Factory creates Provider instances of one provider type.
//
// Contract:
//   - Metadata is cheap, side-effect free and stable; Metadata().ID is the
//     key the factory is registered under.
//   - Create must not retain cfg after returning.
type Factory interface {
	Metadata() Metadata
	Create(cfg Config) (Provider, error)
}

// FactoryFunc creates a provider from configuration.
type FactoryFunc func(cfg Config) (Provider, error)

type funcFactory struct {
	meta Metadata
	fn   FactoryFunc
}

// NewFactory builds a Factory from metadata and a constructor function.
func NewFactory(meta Metadata, fn FactoryFunc) Factory {
	return &funcFactory{meta: meta.normalized(), fn: fn}
}

func (f *funcFactory) Metadata() Metadata {
	return f.meta
}

func (f *funcFactory) Create(cfg Config) (Provider, error) {
	return f.fn(cfg)
}

// Alias registers f under a different id, so one provider type can back
// several independently configured instances. Created providers receive
// id as their "id" config value unless cfg sets one.
func Alias(id string, f Factory) Factory {
	meta := f.Metadata()
	meta.ID = id
	return NewFactory(meta, func(cfg Config) (Provider, error) {
		c := make(Config, len(cfg)+1)
		for k, v := range cfg {
			c[k] = v
		}
		if c.String("id", "") == "" {
			c["id"] = id
		}
		return f.Create(c)
	})
}
