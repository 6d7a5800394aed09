package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrDownload       = errors.New("image download failed")
	ErrUpload         = errors.New("file upload failed")
	ErrReply          = errors.New("reply failed")
)

// Step names a stage of the image pipeline.
type Step string

const (
	StepDownload Step = "download"
	StepUpload   Step = "upload"
	StepReply    Step = "reply"
)

// StepError carries the stage that failed and the underlying cause.
// It unwraps to both the stage sentinel and the cause.
type StepError struct {
	Step  Step
	Cause error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.sentinel(), e.Cause)
}

func (e *StepError) Unwrap() []error {
	return []error{e.sentinel(), e.Cause}
}

func (e *StepError) sentinel() error {
	switch e.Step {
	case StepDownload:
		return ErrDownload
	case StepUpload:
		return ErrUpload
	case StepReply:
		return ErrReply
	default:
		return fmt.Errorf("step %s failed", e.Step)
	}
}

// DownloadError wraps a fetch failure.
func DownloadError(format string, args ...any) error {
	return &StepError{Step: StepDownload, Cause: fmt.Errorf(format, args...)}
}

// UploadError wraps a file upload failure.
func UploadError(format string, args ...any) error {
	return &StepError{Step: StepUpload, Cause: fmt.Errorf(format, args...)}
}

// ReplyError wraps a message post failure.
func ReplyError(format string, args ...any) error {
	return &StepError{Step: StepReply, Cause: fmt.Errorf(format, args...)}
}

// FailedStep returns the stage recorded in err, if any.
func FailedStep(err error) (Step, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step, true
	}
	return "", false
}
