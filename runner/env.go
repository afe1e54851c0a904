package runner

import (
	"maps"
	"slices"
	"strings"
)

// Environment is an immutable set of environment variables for a child
// process. Derivations return copies, so a shared Environment can be extended
// per test without affecting other tests.
type Environment struct {
	vars map[string]string
}

// NewEnvironment parses KEY=VALUE entries as returned by os.Environ.
// Later entries win.
func NewEnvironment(environ []string) Environment {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		// Windows keeps per-drive entries such as "=C:=C:\\", whose key starts with '='.
		start := 0
		if strings.HasPrefix(kv, "=") {
			start = 1
		}
		idx := strings.IndexByte(kv[start:], '=')
		if idx < 0 {
			continue
		}
		idx += start
		vars[kv[:idx]] = kv[idx+1:]
	}
	return Environment{vars: vars}
}

// SharedEnvironment copies the ambient environment and sets the run-wide
// test-data directory pointer.
func SharedEnvironment(ambient []string, testDir string) Environment {
	return NewEnvironment(ambient).With(TestDirEnvVar, testDir)
}

// With returns a copy of e with key set to value.
func (e Environment) With(key, value string) Environment {
	vars := maps.Clone(e.vars)
	if vars == nil {
		vars = make(map[string]string, 1)
	}
	vars[key] = value
	return Environment{vars: vars}
}

// ForTest returns the environment for one test: e plus the profiling output
// path for stem.
func (e Environment) ForTest(stem string) Environment {
	return e.With(ProfileEnvVar, ProfileFile(stem))
}

// Get returns the value of key.
func (e Environment) Get(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

// Len returns the number of variables.
func (e Environment) Len() int {
	return len(e.vars)
}

// Environ renders e as sorted KEY=VALUE entries, suitable for exec.Cmd.Env.
func (e Environment) Environ() []string {
	keys := slices.Sorted(maps.Keys(e.vars))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+e.vars[k])
	}
	return out
}

// ProfileFile is the raw profile file name for stem, relative to the build root.
func ProfileFile(stem string) string {
	return stem + ProfileExt
}

// WorkingContext is everything a test or tool invocation needs from the run:
// the directory children run in and the environment shared by all tests.
type WorkingContext struct {
	BuildRoot string
	Env       Environment
}
