package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAuth             = errors.New("authentication error")
	ErrAuthExpired      = errors.New("authorization expired")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrUploadSlot       = errors.New("upload slot error")
	ErrUpload           = errors.New("upload error")
	ErrTranscodeTimeout = errors.New("transcode timeout")
	ErrContentService   = errors.New("content service error")
	ErrVersionStore     = errors.New("version store error")
	ErrValidation       = errors.New("validation error")
	ErrConfiguration    = errors.New("configuration error")
	ErrNotFound         = errors.New("not found")
	ErrCanceled         = errors.New("canceled")
	ErrTransient        = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a higher layer may resubmit the failed unit of work.
// Slot and upload failures are final; transcode timeouts and transient
// failures are worth another attempt.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrUploadSlot), errors.Is(err, ErrUpload), errors.Is(err, ErrValidation):
		return false
	case errors.Is(err, ErrTranscodeTimeout), errors.Is(err, ErrTransient):
		return true
	default:
		return false
	}
}

// Kind returns a short label for the first marker found in err, used for
// journal rows and CLI output.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range []struct {
		marker error
		label  string
	}{
		{ErrAuthExpired, "auth_expired"},
		{ErrNotAuthenticated, "not_authenticated"},
		{ErrAuth, "auth"},
		{ErrUploadSlot, "upload_slot"},
		{ErrUpload, "upload"},
		{ErrTranscodeTimeout, "transcode_timeout"},
		{ErrContentService, "content_service"},
		{ErrVersionStore, "version_store"},
		{ErrValidation, "validation"},
		{ErrConfiguration, "configuration"},
		{ErrNotFound, "not_found"},
		{ErrCanceled, "canceled"},
		{ErrTransient, "transient"},
	} {
		if errors.Is(err, m.marker) {
			return m.label
		}
	}
	return "unknown"
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
