package core

import (
	"fmt"
	"sync/atomic"
	"unicode/utf8"
)

// DefaultMaxCommentBytes is the default upper bound for a single
// description or comment. NPS exports rarely exceed a few hundred bytes.
const DefaultMaxCommentBytes = 16 * 1024

var maxCommentBytes atomic.Int64

func init() {
	maxCommentBytes.Store(DefaultMaxCommentBytes)
}

// SetMaxCommentBytes overrides the runtime comment size limit.
func SetMaxCommentBytes(limit int64) error {
	if limit <= 0 {
		return fmt.Errorf("max comment bytes must be > 0")
	}
	maxCommentBytes.Store(limit)
	return nil
}

// GetMaxCommentBytes returns the active runtime comment size limit.
func GetMaxCommentBytes() int64 {
	limit := maxCommentBytes.Load()
	if limit <= 0 {
		return DefaultMaxCommentBytes
	}
	return limit
}

// ValidateComment checks that a description or comment fits the size limit
// and is valid UTF-8. Blank text is allowed; it grades as no input.
func ValidateComment(text string) error {
	size := len(text)
	maxBytes := GetMaxCommentBytes()
	if int64(size) > maxBytes {
		return fmt.Errorf("%w: %d bytes > %d", ErrCommentTooLarge, size, maxBytes)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidComment)
	}
	return nil
}
