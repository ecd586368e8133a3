package services

import (
	"errors"
	"fmt"
)

// Error categories. Every concrete error below wraps exactly one of these so
// callers can branch with errors.Is on the category.
var (
	ErrValidation     = errors.New("validation failed")
	ErrStateConflict  = errors.New("state conflict")
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTransientInfra = errors.New("transient infrastructure error")
)

var (
	ErrNoCapacity             = fmt.Errorf("%w: no spare capacity", ErrStateConflict)
	ErrDuplicateActiveRequest = fmt.Errorf("%w: an active request already exists", ErrStateConflict)
	ErrInvalidState           = fmt.Errorf("%w: request is not pending", ErrStateConflict)
	ErrCapacityExceeded       = fmt.Errorf("%w: capacity exhausted, request expired", ErrStateConflict)
	ErrAlreadyMember          = fmt.Errorf("%w: already a member", ErrStateConflict)
	ErrPhaseExists            = fmt.Errorf("%w: phase key already in use", ErrStateConflict)
	ErrThemeAlreadyAssigned   = fmt.Errorf("%w: team already has a theme", ErrStateConflict)

	ErrRequestNotFound      = fmt.Errorf("%w: request", ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("%w: notification", ErrNotFound)
	ErrPhaseNotFound        = fmt.Errorf("%w: phase", ErrNotFound)
	ErrTeamNotFound         = fmt.Errorf("%w: team", ErrNotFound)
	ErrThemeNotFound        = fmt.Errorf("%w: theme", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("%w: user", ErrNotFound)

	ErrNotApprover  = fmt.Errorf("%w: only the approving party can respond", ErrUnauthorized)
	ErrNotInitiator = fmt.Errorf("%w: only the initiator can cancel", ErrUnauthorized)
	ErrNotTeamOwner = fmt.Errorf("%w: only the team owner can do this", ErrUnauthorized)

	ErrInvalidPhaseWindow = fmt.Errorf("%w: phase end must be after its start", ErrValidation)
	ErrInvalidPhaseKind   = fmt.Errorf("%w: unknown phase kind", ErrValidation)
	ErrInvalidRequestKind = fmt.Errorf("%w: unknown request kind", ErrValidation)
	ErrMissingTheme       = fmt.Errorf("%w: theme is required", ErrValidation)
	ErrMissingCounterpart = fmt.Errorf("%w: counterparty is required", ErrValidation)
	ErrCohortMismatch     = fmt.Errorf("%w: users and subject must share a cohort", ErrValidation)
	ErrNotEligible        = fmt.Errorf("%w: user is not eligible", ErrValidation)
	ErrWrongRole          = fmt.Errorf("%w: user has the wrong role for this request", ErrValidation)
	ErrSelfRequest        = fmt.Errorf("%w: cannot address a request to yourself", ErrValidation)
)
