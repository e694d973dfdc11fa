package upload

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

var ErrUnknownPurpose = errors.New("unknown_purpose")
var ErrInvalidContentType = errors.New("invalid_content_type")
var ErrFileTooLarge = errors.New("file_too_large")
var ErrMissingContext = errors.New("missing_context")
var ErrEmptyFile = errors.New("empty_file")
var ErrFilenameRequired = errors.New("filename_required")
var ErrKeyMismatch = errors.New("object_key_mismatch")
var ErrNotFound = errors.New("not_found")
var ErrMultipartUnavailable = errors.New("multipart_unavailable")

// TooLargeError 同时携带实际大小和上限，便于前端直接展示
type TooLargeError struct {
	Purpose Purpose
	Kind    Kind
	Size    int64
	Limit   int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("%s: %d bytes (%s) exceeds the %d bytes (%s) limit for %s %s",
		ErrFileTooLarge, e.Size, humanize.IBytes(uint64(e.Size)), e.Limit, humanize.IBytes(uint64(e.Limit)), e.Purpose, e.Kind)
}

func (e *TooLargeError) Is(target error) bool {
	return target == ErrFileTooLarge
}
