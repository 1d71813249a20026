package cli

import (
	"errors"

	"github.com/hassrename/hren/internal/config"
	"github.com/hassrename/hren/internal/directory"
	"github.com/hassrename/hren/internal/history"
	"github.com/hassrename/hren/internal/pattern"
	"github.com/hassrename/hren/internal/plan"
	"github.com/hassrename/hren/internal/session"
)

// Error codes for structured error responses.
// These codes are stable and can be relied upon by agents.
const (
	// Configuration errors
	ErrConfigInvalid = "CONFIG_INVALID"
	ErrHostMissing   = "HOST_NOT_CONFIGURED"
	ErrTokenMissing  = "TOKEN_NOT_CONFIGURED"

	// Empty results
	ErrNoEntities = "NO_ENTITIES"
	ErrEmptyPlan  = "EMPTY_PLAN"

	// Platform errors
	ErrDirectoryFailed = "DIRECTORY_ERROR"
	ErrAuthFailed      = "AUTH_FAILED"
	ErrChannelFailed   = "CHANNEL_ERROR"

	// File errors
	ErrFileNotFound   = "FILE_NOT_FOUND"
	ErrFileReadError  = "FILE_READ_ERROR"
	ErrFileWriteError = "FILE_WRITE_ERROR"
	ErrMappingInvalid = "MAPPING_INVALID"

	// Database errors
	ErrDatabaseError = "DATABASE_ERROR"
	ErrRunNotFound   = "RUN_NOT_FOUND"

	// Input errors
	ErrInvalidInput    = "INVALID_INPUT"
	ErrMissingArgument = "MISSING_ARGUMENT"

	// General errors
	ErrInternal             = "INTERNAL_ERROR"
	ErrConfirmationRequired = "CONFIRMATION_REQUIRED"
)

// Warning codes for non-fatal issues.
const (
	WarnVolumePath     = "OUTPUT_OUTSIDE_VOLUME"
	WarnAlreadyApplied = "ALREADY_APPLIED"
	WarnHistoryFailed  = "HISTORY_WRITE_FAILED"
	WarnPreviewOnly    = "PREVIEW_ONLY"
)

// errorCode maps an error from the rename pipeline to its stable code.
func errorCode(err error) string {
	var cfgErr *pattern.ConfigError
	var rowErr *plan.RowError
	var statusErr *directory.StatusError
	var authErr *session.AuthError
	var chanErr *session.ChannelError

	switch {
	case errors.As(err, &cfgErr):
		return ErrConfigInvalid
	case errors.Is(err, config.ErrNoHost):
		return ErrHostMissing
	case errors.Is(err, config.ErrNoToken):
		return ErrTokenMissing
	case errors.Is(err, directory.ErrNoEntities):
		return ErrNoEntities
	case errors.Is(err, plan.ErrEmptyPlan):
		return ErrEmptyPlan
	case errors.As(err, &rowErr):
		return ErrMappingInvalid
	case errors.As(err, &statusErr):
		return ErrDirectoryFailed
	case errors.As(err, &authErr):
		return ErrAuthFailed
	case errors.As(err, &chanErr):
		return ErrChannelFailed
	case errors.Is(err, session.ErrNotConfirmed):
		return ErrConfirmationRequired
	case errors.Is(err, history.ErrRunNotFound):
		return ErrRunNotFound
	default:
		return ErrInternal
	}
}
