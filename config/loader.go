// Package config holds the typed producer/consumer option structs (the
// two namespaces spec.md §6 calls "kafka options" and "internal options",
// flattened into one struct per role) and the koanf-based loader that
// merges a YAML file with environment overrides, generalizing the
// teacher's source/kafka.LoadConfig.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// SupportedSchema is the only schema_version this loader accepts.
const SupportedSchema = "v1"

// load reads path (if non-empty and present) as YAML, merges in
// envPrefix-scoped environment variables (delimiter "__"), checks
// schema_version when set, and unmarshals into dst.
func load(path, envPrefix string, dst any) error {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if sv := k.String("schema_version"); sv != "" && sv != SupportedSchema {
		return fmt.Errorf("config: schema_version %q not supported (want %q)", sv, SupportedSchema)
	}
	_ = k.Load(env.Provider(envPrefix, "__", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	return k.Unmarshal("", dst)
}
