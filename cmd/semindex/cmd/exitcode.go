package cmd

import (
	"errors"

	ierrors "github.com/aman-cerp/semindex/internal/errors"
)

// Exit codes, per the documented command surface.
const (
	ExitOK            = 0
	ExitOther         = 1
	ExitUsage         = 2
	ExitConfig        = 3
	ExitProviderFailed = 4
	ExitStorage       = 5
)

// usageError marks a command-line invocation error (bad args, missing
// required flags) distinctly from a failure inside the core packages, so
// Execute can map it to ExitUsage without inspecting cobra's own error
// text.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func newUsageError(msg string) error { return &usageError{msg: msg} }

// ExitCode classifies err into one of the documented exit codes.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var ue *usageError
	if errors.As(err, &ue) {
		return ExitUsage
	}

	var ie *ierrors.IndexError
	if errors.As(err, &ie) {
		switch ie.Category {
		case ierrors.CategoryConfig:
			return ExitConfig
		case ierrors.CategoryNetwork:
			return ExitProviderFailed
		case ierrors.CategoryIO:
			return ExitStorage
		case ierrors.CategoryValidation:
			return ExitUsage
		}
	}

	return ExitOther
}
