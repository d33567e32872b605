// Package doctor checks the health of a knecht ledger directory. Each
// check inspects the raw files rather than going through a Store, so a
// ledger that no longer opens can still be diagnosed. Some checks can
// repair what they find when run with --fix.
package doctor

import (
	"time"

	"github.com/knechtdev/knecht/internal/fsys"
)

// CheckStatus is the outcome of a check.
type CheckStatus int

const (
	// StatusOK means nothing needs attention.
	StatusOK CheckStatus = iota
	// StatusWarning means the ledger works but something should be tidied.
	StatusWarning
	// StatusError means commands will fail or give wrong answers.
	StatusError
)

// Check is one diagnostic. Checks run in registration order.
type Check interface {
	// Name is a short identifier such as "tasks-file".
	Name() string
	Run(ctx *CheckContext) *CheckResult
	CanFix() bool
	// Fix is only called when CanFix is true and Run was not OK.
	Fix(ctx *CheckContext) error
}

// CheckContext is shared by every check in one run.
type CheckContext struct {
	// Dir is the ledger directory, the .knecht/ folder itself.
	Dir string
	FS  fsys.FS
	// LockTimeout is passed to the store opened by fixes. Zero disables
	// the advisory lock.
	LockTimeout time.Duration
	Verbose     bool
}

// CheckResult is what a check found.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	// Details are printed only in verbose mode.
	Details []string
	// FixHint is printed when the problem remains after the run.
	FixHint string
	Fixed   bool
}
