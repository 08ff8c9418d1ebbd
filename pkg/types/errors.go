package types

import "errors"

// Domain errors shared across packages
var (
	ErrEmptyContent = errors.New("content cannot be empty")
)
