package store

import "errors"

var (
	ErrNotFound   = errors.New("record not found")
	ErrEmptyChain = errors.New("milestone chain is empty")
)
