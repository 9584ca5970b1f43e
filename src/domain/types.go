package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var BuildInfo = struct {
	Version string
	Commit  string
}{"unset", "unset"}

// Component is one deployable unit of the application.
// The set of components is fixed configuration for the lifetime of a run.
type Component struct {
	Name            string
	SourcePath      string
	ImageRepository string
}

// ImageReference points at one tagged image in a registry.
type ImageReference struct {
	Repository string
	Tag        string
}

func (self ImageReference) String() string {
	return self.Repository + ":" + self.Tag
}

// NewImageReference derives the image reference for a component and build.
// The tag is the build identifier verbatim, so it is deterministic
// and reproducible for a given build.
func NewImageReference(component Component, buildID uint64) ImageReference {
	return ImageReference{
		Repository: component.ImageRepository,
		Tag:        strconv.FormatUint(buildID, 10),
	}
}

type Tier uint

const (
	TierCanary Tier = iota
	TierStable
)

func (self *Tier) String() (string, error) {
	switch *self {
	case TierCanary:
		return "canary", nil
	case TierStable:
		return "stable", nil
	default:
		return "", fmt.Errorf("Unknown value %d", *self)
	}
}

func (self *Tier) FromString(str string) error {
	switch str {
	case "canary":
		*self = TierCanary
	case "stable":
		*self = TierStable
	default:
		return fmt.Errorf("Unknown value %q", str)
	}
	return nil
}

func (self *Tier) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	return self.FromString(str)
}

func (self Tier) MarshalJSON() ([]byte, error) {
	if str, err := self.String(); err != nil {
		return nil, err
	} else {
		return json.Marshal(str)
	}
}

// Manifest is one deployment descriptor in the configuration repository.
// Exactly one canary and one stable manifest exist per component at all
// times; they are only ever overwritten, never absent.
type Manifest struct {
	Component Component
	Tier      Tier
	Image     ImageReference
	Path      string
}

type RunOutcome uint

const (
	RunOutcomeSuccess RunOutcome = iota
	RunOutcomeFailure
	RunOutcomeSkipped
)

func (self *RunOutcome) String() (string, error) {
	switch *self {
	case RunOutcomeSuccess:
		return "success", nil
	case RunOutcomeFailure:
		return "failure", nil
	case RunOutcomeSkipped:
		return "skipped", nil
	default:
		return "", fmt.Errorf("Unknown value %d", *self)
	}
}

func (self *RunOutcome) FromString(str string) error {
	switch str {
	case "success":
		*self = RunOutcomeSuccess
	case "failure":
		*self = RunOutcomeFailure
	case "skipped":
		*self = RunOutcomeSkipped
	default:
		return fmt.Errorf("Unknown value %q", str)
	}
	return nil
}

func (self *RunOutcome) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	return self.FromString(str)
}

func (self RunOutcome) MarshalJSON() ([]byte, error) {
	if str, err := self.String(); err != nil {
		return nil, err
	} else {
		return json.Marshal(str)
	}
}

// Notified means the outcome is reported to the configured channel.
// Skipped runs count as successful for the process exit status.
func (self RunOutcome) Successful() bool {
	return self != RunOutcomeFailure
}

// BuildRun identifies one delivery run. The ID is supplied by the
// invoking environment, strictly increasing across runs, and is the
// sole source of image tags for the run.
type BuildRun struct {
	RunID     uuid.UUID `db:"run_id"` // correlation id for logs and audit rows
	ID        uint64    `db:"id"`
	CommitSHA string    `db:"commit_sha"`
	StartedAt time.Time `db:"started_at"`
	Outcome   *RunOutcome
}

func NewBuildRun(id uint64, commitSHA string) BuildRun {
	return BuildRun{
		RunID:     uuid.New(),
		ID:        id,
		CommitSHA: commitSHA,
		StartedAt: time.Now().UTC(),
	}
}

type GateStatus uint

const (
	GateStatusPass GateStatus = iota
	GateStatusFail
	GateStatusError
)

func (self *GateStatus) String() (string, error) {
	switch *self {
	case GateStatusPass:
		return "pass", nil
	case GateStatusFail:
		return "fail", nil
	case GateStatusError:
		return "error", nil
	default:
		return "", fmt.Errorf("Unknown value %d", *self)
	}
}

func (self *GateStatus) FromString(str string) error {
	switch str {
	case "pass":
		*self = GateStatusPass
	case "fail":
		*self = GateStatusFail
	case "error":
		*self = GateStatusError
	default:
		return fmt.Errorf("Unknown value %q", str)
	}
	return nil
}

func (self *GateStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	return self.FromString(str)
}

func (self GateStatus) MarshalJSON() ([]byte, error) {
	if str, err := self.String(); err != nil {
		return nil, err
	} else {
		return json.Marshal(str)
	}
}

// GateResult is the outcome of one quality gate.
// Hard results can abort the run; soft results are recorded only.
type GateResult struct {
	GateName string
	Status   GateStatus
	Hard     bool
	Detail   string
}

// Blocking reports whether this result alone aborts the run.
func (self GateResult) Blocking() bool {
	return self.Hard && self.Status != GateStatusPass
}

type GateReport []GateResult

// HardFailure returns the first blocking result, or nil if the report is clean.
func (self GateReport) HardFailure() *GateResult {
	for i := range self {
		if self[i].Blocking() {
			return &self[i]
		}
	}
	return nil
}

// PromotionRecord is the audit entry written once a component's promotion
// completes. It serves traceability only and feeds no control decision.
type PromotionRecord struct {
	Component           string    `db:"component"`
	PreviousStableImage string    `db:"previous_stable_image"`
	NewStableImage      string    `db:"new_stable_image"`
	NewCanaryImage      string    `db:"new_canary_image"`
	BuildID             uint64    `db:"build_id"`
	Timestamp           time.Time `db:"timestamp"`
}

// ManifestDelta is one manifest write captured during promotion.
// On a push conflict the committer re-applies these deltas against the
// refreshed checkout instead of re-running the pipeline.
type ManifestDelta struct {
	Component Component
	Tier      Tier
	Path      string
	Image     ImageReference
}

type Decision uint

const (
	DecisionProceed Decision = iota
	DecisionSkip
)

func (self Decision) Skip() bool {
	return self == DecisionSkip
}

type CommitOutcome uint

const (
	CommitOutcomeCommitted CommitOutcome = iota
	CommitOutcomeNoChanges
)
