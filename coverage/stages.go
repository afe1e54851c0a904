// Package coverage turns the raw profile written by an instrumented test
// binary into an lcov export and an HTML report, and runs the project-wide
// coverage script once the whole suite passed.
package coverage

import (
	"fmt"
	"path/filepath"

	"github.com/cryspen/mach-test/runner"
	"github.com/cryspen/mach-test/types"
)

// Stage is one step of the per-test coverage pipeline.
type Stage string

const (
	StagePrepare Stage = "prepare" // Create the output directories
	StageMerge   Stage = "merge"   // Raw profile to indexed profile
	StageExport  Stage = "export"  // Indexed profile to lcov
	StageRender  Stage = "render"  // lcov to HTML
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{StagePrepare, StageMerge, StageExport, StageRender}

// RootDir is the directory, relative to the build root, holding all
// per-test coverage output.
const RootDir = "coverage"

// Artifacts returns the files the pipeline produces for stem, relative to
// the build root. Each stage consumes the previous stage's output.
func Artifacts(stem string) *types.CoverageArtifacts {
	dir := filepath.Join(RootDir, stem)
	return &types.CoverageArtifacts{
		RawProfile:    runner.ProfileFile(stem),
		Dir:           dir,
		MergedProfile: filepath.Join(dir, stem+".profdata"),
		LCOV:          filepath.Join(dir, stem+".lcov"),
		HTMLDir:       filepath.Join(dir, "html"),
	}
}

// StageFailedError is returned when a pipeline stage fails. Later stages
// are not attempted.
type StageFailedError struct {
	Test   string
	Stage  Stage
	Err    error
	Output string // Diagnostics the tool wrote to stderr
}

func (e *StageFailedError) Error() string {
	return fmt.Sprintf("coverage %s stage failed for test %s: %v", e.Stage, e.Test, e.Err)
}

func (e *StageFailedError) Unwrap() error {
	return e.Err
}
