package sequence

import (
	"fmt"

	"github.com/ravenlinux/raven-liveboot/pkg/schema"
)

// StageResult is the outcome of a single stage. Exactly one constructor
// applies: Ok to continue, SoftFail to continue degraded, HardFail to stop
// the sequence and hand over to the rescue shell.
type StageResult struct {
	Stage string
	Err   error
	hard  bool
}

func Ok() StageResult {
	return StageResult{}
}

func SoftFail(stage string, err error) StageResult {
	return StageResult{Stage: stage, Err: err}
}

func HardFail(stage string, err error) StageResult {
	return StageResult{Stage: stage, Err: err, hard: true}
}

func (r StageResult) IsOk() bool   { return r.Err == nil }
func (r StageResult) IsHard() bool { return r.Err != nil && r.hard }
func (r StageResult) IsSoft() bool { return r.Err != nil && !r.hard }

// BootContext is the accumulating record of what the sequence has
// discovered so far. It is owned by the sequencer and read by the rescue
// shell to print the diagnostic trail.
type BootContext struct {
	Stage         string
	DeviceFound   string
	ImageFound    string
	OverlayActive bool
	ErrorTrail    []schema.StageError

	fatal *StageResult
}

func NewBootContext() *BootContext {
	return &BootContext{}
}

// Enter marks the stage currently executing.
func (c *BootContext) Enter(stage string) {
	c.Stage = stage
}

// Record adds a stage result to the trail. Hard failures also latch the
// fatal state: once set, no later stage body runs.
func (c *BootContext) Record(r StageResult) {
	if r.IsOk() {
		return
	}
	c.ErrorTrail = append(c.ErrorTrail, schema.StageError{
		Stage:   r.Stage,
		Message: r.Err.Error(),
	})
	if r.IsHard() && c.fatal == nil {
		fatal := r
		c.fatal = &fatal
	}
}

// Fatal returns the first hard failure, or nil while the sequence is still
// viable.
func (c *BootContext) Fatal() *StageResult {
	return c.fatal
}

// FatalErr is Fatal as a plain error for graph callbacks.
func (c *BootContext) FatalErr() error {
	if c.fatal == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", c.fatal.Stage, c.fatal.Err)
}
