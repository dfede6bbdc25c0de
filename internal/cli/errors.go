package cli

import (
	"errors"

	"github.com/shinji-kodama/diag-attach/internal/model"
)

// toCLIError maps a domain error to a CLIError carrying the matching exit
// code. CLIErrors pass through unchanged.
func toCLIError(err error) *model.CLIError {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}

	switch {
	case errors.Is(err, model.ErrPortExhausted):
		return model.WrapCLIError(model.ExitPortAllocationFailed, "no available port", err)
	case errors.Is(err, model.ErrInvalidPortRange):
		return model.WrapCLIError(model.ExitInvalidInput, "invalid port range", err)
	case errors.Is(err, model.ErrInjectionFailed):
		return model.WrapCLIError(model.ExitInjectionFailed, "agent injection failed", err)
	case errors.Is(err, model.ErrAttachFailed):
		return model.WrapCLIError(model.ExitAttachFailed, "attach failed", err)
	default:
		return model.WrapCLIError(model.ExitGeneralError, "command failed", err)
	}
}
