// Package toolchain holds the names of the external programs the test runner
// drives: the coverage tools and the language-binding test commands. The
// defaults match a stock LLVM and lcov installation and can be overridden
// from a TOML file.
package toolchain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
)

const (
	DefaultProfdata        = "llvm-profdata"
	DefaultCov             = "llvm-cov"
	DefaultGenhtml         = "genhtml"
	DefaultSourceDir       = "../../src"
	DefaultAggregateScript = "./tools/coverage.sh"
)

type Config struct {
	Coverage  CoverageConfig            `toml:"coverage"`
	Languages map[string]LanguageConfig `toml:"languages"`
}

type CoverageConfig struct {
	Profdata string `toml:"profdata"`
	Cov      string `toml:"cov"`
	Genhtml  string `toml:"genhtml"`
	// SourceDir restricts the export to the library's own sources. Relative
	// paths are resolved against the build directory.
	SourceDir           string `toml:"source_dir"`
	IgnoreFilenameRegex string `toml:"ignore_filename_regex"`
	// AggregateScript runs from the project root once every test passed.
	AggregateScript string       `toml:"aggregate_script"`
	StageTimeout    TOMLDuration `toml:"stage_timeout"`
}

type LanguageConfig struct {
	Command []string          `toml:"command"`
	Dir     string            `toml:"dir"` // Relative to the project root
	Env     map[string]string `toml:"env"`
}

type TOMLDuration time.Duration

func (t *TOMLDuration) UnmarshalText(b []byte) error {
	d, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}

	*t = TOMLDuration(d)
	return nil
}

// Default returns the built-in toolchain.
func Default() Config {
	return Config{
		Coverage: CoverageConfig{
			Profdata:        DefaultProfdata,
			Cov:             DefaultCov,
			Genhtml:         DefaultGenhtml,
			SourceDir:       DefaultSourceDir,
			AggregateScript: DefaultAggregateScript,
		},
		Languages: map[string]LanguageConfig{
			"rust": {
				Command: []string{"cargo", "test", "--manifest-path", "rust/Cargo.toml"},
				Env:     map[string]string{"MACH_BUILD": "1"},
			},
			"ocaml": {
				Command: []string{"dune", "test", "--root", "ocaml"},
			},
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Keys the file sets that are not known are logged and ignored.
func Load(logger log.Logger, path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var file Config
	md, err := toml.DecodeFile(path, &file)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read toolchain config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 && logger != nil {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		logger.Warn("Unknown keys in toolchain config", "path", path, "keys", strings.Join(keys, ", "))
	}

	cfg.merge(file)
	if err := cfg.Check(); err != nil {
		return Config{}, fmt.Errorf("invalid toolchain config %s: %w", path, err)
	}
	return cfg, nil
}

// merge overlays the non-empty settings of other onto c.
func (c *Config) merge(other Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Coverage.Profdata, other.Coverage.Profdata)
	set(&c.Coverage.Cov, other.Coverage.Cov)
	set(&c.Coverage.Genhtml, other.Coverage.Genhtml)
	set(&c.Coverage.SourceDir, other.Coverage.SourceDir)
	set(&c.Coverage.IgnoreFilenameRegex, other.Coverage.IgnoreFilenameRegex)
	set(&c.Coverage.AggregateScript, other.Coverage.AggregateScript)
	if other.Coverage.StageTimeout != 0 {
		c.Coverage.StageTimeout = other.Coverage.StageTimeout
	}

	if c.Languages == nil {
		c.Languages = make(map[string]LanguageConfig)
	}
	for name, lang := range other.Languages {
		c.Languages[name] = lang
	}
}

// Check validates the configuration.
func (c Config) Check() error {
	if c.Coverage.StageTimeout < 0 {
		return errors.New("coverage.stage_timeout cannot be negative")
	}
	for name, lang := range c.Languages {
		if len(lang.Command) == 0 || lang.Command[0] == "" {
			return fmt.Errorf("languages.%s.command cannot be empty", name)
		}
	}
	return nil
}
