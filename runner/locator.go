package runner

import (
	"os"
	"path/filepath"
	"runtime"
)

// Locator resolves test stems to executables in a build-output directory.
type Locator struct {
	BuildRoot string
	GOOS      string
}

// NewLocator returns a Locator for the host platform.
func NewLocator(buildRoot string) Locator {
	return Locator{BuildRoot: buildRoot, GOOS: runtime.GOOS}
}

// BinaryName returns the executable file name for stem on goos.
func BinaryName(stem, goos string) string {
	if goos == "windows" {
		return stem + WindowsExeSuffix
	}
	return stem
}

// Path returns the expected executable path for stem without checking it exists.
func (l Locator) Path(stem string) string {
	goos := l.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	return filepath.Join(l.BuildRoot, BinaryName(stem, goos))
}

// Locate returns the executable path for stem, or a *MissingBinaryError if
// the build did not produce it.
func (l Locator) Locate(stem string) (string, error) {
	path := l.Path(stem)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", &MissingBinaryError{Test: stem, Path: path}
	}
	return path, nil
}
