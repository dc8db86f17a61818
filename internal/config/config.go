// Package config loads switchgear's YAML configuration, expanding
// ${NAME} / ${NAME:-default} shell-style environment references
// before handing the document to cleanenv. The loader mirrors the
// teacher's config.Path/Load helper shape, swapped from TOML to YAML
// per spec.md §6.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Path is a filesystem path with a fluent Join helper, identical in
// spirit to the teacher's config.Path.
type Path string

func (p Path) Join(elem ...string) Path {
	parts := append([]string{string(p)}, elem...)
	return Path(filepath.Join(parts...))
}

func (p Path) ToString() string {
	return string(p)
}

// envRef matches ${NAME} and ${NAME:-default}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandEnv performs shell-style ${NAME} / ${NAME:-default} expansion
// over raw YAML bytes. cleanenv's env/env-default struct tags only
// cover whole top-level fields bound directly to an env var; they
// cannot substitute inside a larger string value (e.g. a URL that
// embeds a hostname from the environment), so this pass runs first.
func expandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envRef.FindSubmatch(match)
		name := string(groups[1])
		def := string(groups[3])
		if val, ok := os.LookupEnv(name); ok {
			return []byte(val)
		}
		return []byte(def)
	})
}

// Load reads the YAML file at path, expands environment references,
// and unmarshals the result into cfg (which must be a pointer).
func Load(path Path, cfg any) error {
	raw, err := os.ReadFile(path.ToString())
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	expanded := expandEnv(raw)

	tmp, err := os.CreateTemp("", "switchgear-config-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to stage expanded config: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(expanded); err != nil {
		return fmt.Errorf("failed to write expanded config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush expanded config: %w", err)
	}

	if err := cleanenv.ReadConfig(tmp.Name(), cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return Validate(cfg)
}

// Validate runs structural validation for the concrete Config type.
// Any type that does not implement validator is accepted unchecked,
// which keeps Load usable in tests against partial config structs.
type validator interface {
	Validate() error
}

func Validate(cfg any) error {
	if v, ok := cfg.(validator); ok {
		return v.Validate()
	}
	return nil
}

// SplitHostPort is a small helper used by the three HTTP surfaces to
// turn a "host:port" address into a bind string, tolerating a bare
// port ("8080" -> ":8080").
func SplitHostPort(address string) string {
	if strings.HasPrefix(address, ":") {
		return address
	}
	if !strings.Contains(address, ":") {
		return ":" + address
	}
	return address
}
