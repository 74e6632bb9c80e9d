package document

import "errors"

var (
	ErrOutOfRange = errors.New("out of range")
	// ErrContiguity reports line records that no longer tile the buffer.
	ErrContiguity = errors.New("line records are not contiguous")
	// ErrDepthPropagation reports a line whose comment depth at start differs
	// from the comment depth at the end of the line before it.
	ErrDepthPropagation = errors.New("comment depth does not propagate")
	// ErrEditMismatch reports an edit that does not describe the new content.
	ErrEditMismatch = errors.New("edit does not match content")
)
