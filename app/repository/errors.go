package repository

import "errors"

var (
	ErrNotFound             = errors.New("repository: record not found")
	ErrDuplicate            = errors.New("repository: duplicate key")
	ErrStatusConflict       = errors.New("repository: status conflict")
	ErrInsufficientCredits  = errors.New("repository: insufficient credits")
	ErrNotPayAsYouGo        = errors.New("repository: organization is not on pay-as-you-go")
	ErrNoActiveSubscription = errors.New("repository: no active subscription")
)
