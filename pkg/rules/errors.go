package rules

import "errors"

var (
	// ErrBadgeNotFound indicates a rule references a badge missing from the
	// badge catalog.
	ErrBadgeNotFound = errors.New("badge not found")
)
