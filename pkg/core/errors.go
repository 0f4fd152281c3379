package core

import "errors"

var (
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrInvalidComment  = errors.New("invalid comment")
	ErrCommentTooLarge = errors.New("comment exceeds maximum allowed size")
)
