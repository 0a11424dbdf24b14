package repository

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrNavigationFailed  = errors.New("navigation failed")
	ErrNavigationTimeout = errors.New("navigation timed out")
	ErrBadStatus         = errors.New("unexpected document status")
	ErrInventoryMissing  = errors.New("inventory file missing")
)
