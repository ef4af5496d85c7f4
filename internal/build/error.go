package build

import (
	"errors"
	"fmt"
)

// ErrPinChanged is returned when a version is already installed from a
// different archive or checksum than the recipe now pins.
var ErrPinChanged = errors.New("installed keg does not match the recipe pin")

// Step names a stage of the install pipeline.
type Step string

const (
	StepRecipe        Step = "recipe"
	StepLock          Step = "lock"
	StepCache         Step = "cache"
	StepFetch         Step = "fetch"
	StepVerify        Step = "verify"
	StepExtract       Step = "extract"
	StepBuild         Step = "build"
	StepVerifyVersion Step = "verify-version"
	StepTest          Step = "test"
	StepCommit        Step = "commit"
)

// Error reports the step at which installing a recipe failed.
// Every failure is fatal and leaves nothing installed.
type Error struct {
	Recipe string // name@version
	Step   Step
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Recipe, e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
