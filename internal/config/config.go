package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Environment variables that override exchange credentials from the file.
const (
	EnvAPIKey    = "TRENDBOT_API_KEY"
	EnvAPISecret = "TRENDBOT_API_SECRET"
)

// Load reads path and every file it includes, applies defaults for keys the
// files leave unset, and validates the result. Included files are merged
// first so the including file wins.
func Load(path string) (*Config, error) {
	files, err := resolveIncludes(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range files {
		if err := mergeFile(v, file); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	keys := make(keySet)
	markKeys("", v.AllSettings(), keys)
	cfg.applyDefaults(keys)
	applyEnv(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeHook(dc *mapstructure.DecoderConfig) {
	dc.TagName = "toml"
	dc.WeaklyTypedInput = true
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPISecret)); v != "" {
		cfg.Exchange.APISecret = v
	}
}

func mergeFile(v *viper.Viper, path string) error {
	tmp := viper.New()
	tmp.SetConfigFile(path)
	if err := tmp.ReadInConfig(); err != nil {
		return err
	}
	return v.MergeConfigMap(tmp.AllSettings())
}

func resolveIncludes(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	r := includeResolver{seen: map[string]bool{}, stack: map[string]bool{}}
	if err := r.walk(abs); err != nil {
		return nil, err
	}
	return r.ordered, nil
}

type includeResolver struct {
	seen    map[string]bool
	stack   map[string]bool
	ordered []string
}

func (r *includeResolver) walk(path string) error {
	path = filepath.Clean(path)
	if r.stack[path] {
		return fmt.Errorf("include cycle detected: %s", path)
	}
	if r.seen[path] {
		return nil
	}
	r.stack[path] = true
	includes, err := readIncludes(path)
	if err != nil {
		return fmt.Errorf("parse include of %s: %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := r.walk(inc); err != nil {
			return err
		}
	}
	delete(r.stack, path)
	r.seen[path] = true
	r.ordered = append(r.ordered, path)
	return nil
}

func readIncludes(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	raw := v.Get("include")
	if raw == nil {
		return nil, nil
	}
	var items []string
	switch val := raw.(type) {
	case []any:
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("include only supports strings")
			}
			items = append(items, s)
		}
	case []string:
		items = val
	default:
		return nil, fmt.Errorf("include must be a string array")
	}
	out := items[:0:0]
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// markKeys records the dotted path of every leaf present in the files, so
// an explicit zero is not replaced by a default.
func markKeys(prefix string, node any, dest keySet) {
	switch val := node.(type) {
	case map[string]any:
		for k, child := range val {
			markKeys(joinKey(prefix, k), child, dest)
		}
	case map[any]any:
		for k, child := range val {
			if ks, ok := k.(string); ok {
				markKeys(joinKey(prefix, ks), child, dest)
			}
		}
	default:
		if prefix != "" {
			dest.mark(prefix)
		}
	}
}

func joinKey(prefix, key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
