package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrCommitConflict marks a manifest push rejected because another run
// advanced the branch first. It is the only recoverable pipeline error:
// the committer re-fetches, re-applies its deltas and retries.
var ErrCommitConflict = errors.New("Configuration repository was updated concurrently")

// GateFailure is a quality gate that did not pass.
// It is fatal iff the gate was configured hard.
type GateFailure struct {
	Gate   string
	Status GateStatus
	Hard   bool
}

func (self GateFailure) Error() string {
	status, _ := self.Status.String()
	return fmt.Sprintf("Gate %q reported %s", self.Gate, status)
}

// BuildFailure is always fatal; no partially built artifact is ever tagged.
type BuildFailure struct {
	Component string
	Err       error
}

func (self BuildFailure) Error() string {
	return fmt.Sprintf("Building image for component %q failed: %s", self.Component, self.Err)
}

func (self BuildFailure) Unwrap() error {
	return self.Err
}

// PushFailure aborts promotion and commit for the entire run, not just
// the failing component, so that no component advances without the others.
type PushFailure struct {
	Component string
	Err       error
}

func (self PushFailure) Error() string {
	return fmt.Sprintf("Publishing image for component %q failed: %s", self.Component, self.Err)
}

func (self PushFailure) Unwrap() error {
	return self.Err
}

// PromotionFailure is always fatal; manifests must not be left inconsistent.
type PromotionFailure struct {
	Component string
	Reason    string
}

func (self PromotionFailure) Error() string {
	return fmt.Sprintf("Promoting component %q failed: %s", self.Component, self.Reason)
}

// CommitFailure is a push that failed for good, either immediately
// (auth, network) or after the conflict retries were exhausted.
type CommitFailure struct {
	Attempts int
	Err      error
}

func (self CommitFailure) Error() string {
	if self.Attempts > 1 {
		return fmt.Sprintf("Committing manifests failed after %d attempts: %s", self.Attempts, self.Err)
	}
	return fmt.Sprintf("Committing manifests failed: %s", self.Err)
}

func (self CommitFailure) Unwrap() error {
	return self.Err
}
