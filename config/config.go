// Package config handles objcbridge.toml configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"

	"github.com/chazu/objcbridge/abi"
)

// FileName is the name of the configuration file.
const FileName = "objcbridge.toml"

// DefaultLibrary is the Objective-C runtime shipped with macOS.
const DefaultLibrary = "/usr/lib/libobjc.A.dylib"

// DefaultFrameworks are loaded after the runtime so their classes register.
var DefaultFrameworks = []string{"/System/Library/Frameworks/Foundation.framework/Foundation"}

// ErrInvalid is returned when a configuration fails schema validation.
var ErrInvalid = errors.New("invalid configuration")

//go:embed schema.cue
var schemaSource string

// Config represents an objcbridge.toml file.
type Config struct {
	Runtime Runtime `toml:"runtime" json:"runtime"`
	Catalog Catalog `toml:"catalog" json:"catalog"`
	Log     Log     `toml:"log" json:"log"`

	// Dir is the directory containing the configuration file (set at load
	// time).
	Dir string `toml:"-" json:"-"`
}

// Runtime selects the runtime library and target ABI.
type Runtime struct {
	Library    string   `toml:"library" json:"library"`
	Frameworks []string `toml:"frameworks" json:"frameworks"`
	Arch       string   `toml:"arch" json:"arch"`
	UnionStret bool     `toml:"union-stret" json:"union-stret"`
}

// Catalog configures the attribute name catalog.
type Catalog struct {
	Path string `toml:"path" json:"path"`
}

// Log configures logging.
type Log struct {
	Verbosity int `toml:"verbosity" json:"verbosity"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Runtime: Runtime{
			Library:    DefaultLibrary,
			Frameworks: slices.Clone(DefaultFrameworks),
			Arch:       "host",
		},
		Catalog: Catalog{Path: filepath.Join(".objcbridge", "catalog.db")},
		Log:     Log{Verbosity: 1},
	}
}

// Load parses objcbridge.toml from dir.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, nil
}

// Parse decodes a configuration over the defaults and validates it.
// Unknown keys are an error.
func Parse(data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if c.Runtime.Frameworks == nil {
		c.Runtime.Frameworks = []string{}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find objcbridge.toml, then loads
// it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks the configuration against the embedded CUE schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Arch returns the configured target architecture.
func (c *Config) Arch() (abi.Arch, error) {
	a, err := abi.ByName(c.Runtime.Arch)
	if err != nil {
		return abi.Arch{}, err
	}
	return a.WithUnionStructReturn(c.Runtime.UnionStret), nil
}

// CatalogPath returns the catalog database path, resolved against Dir.
func (c *Config) CatalogPath() string {
	if filepath.IsAbs(c.Catalog.Path) || c.Dir == "" {
		return c.Catalog.Path
	}
	return filepath.Join(c.Dir, c.Catalog.Path)
}
