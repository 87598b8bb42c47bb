// Package apperrors implements loom's error taxonomy: every failure that
// crosses a package boundary is classified into one of a small set of
// sentinel markers so the orchestrator and job registry can decide, without
// inspecting message text, whether a file should be marked failed, whether
// other files may continue, and what to log.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfig marks invalid settings or a missing required credential.
	// Fatal; surfaced immediately, before any file is processed.
	ErrConfig = errors.New("config error")
	// ErrInput marks unreadable or unsupported input audio. Fails the
	// affected file; other files continue.
	ErrInput = errors.New("input error")
	// ErrOperator marks a failed call into a black-box ML operator. Fails
	// the current stage; downstream stages are skipped for that split and
	// the file is marked failed.
	ErrOperator = errors.New("operator error")
	// ErrConsistency marks an artifact invariant violated on read (e.g.
	// unsorted intervals). The bad artifact is never mutated; the stage
	// fails.
	ErrConsistency = errors.New("consistency error")
	// ErrCancelled marks a cooperative stop. Partial artifacts remain; no
	// failed marker is recorded.
	ErrCancelled = errors.New("cancelled")
)

// Kind names the taxonomy a Error belongs to.
type Kind string

const (
	KindConfig      Kind = "config"
	KindInput       Kind = "input"
	KindOperator    Kind = "operator"
	KindConsistency Kind = "consistency"
	KindCancelled   Kind = "cancelled"
)

// Error provides structured error context for pipeline failures: which
// marker it belongs to, which stage and split raised it, and what to show a
// human.
type Error struct {
	Marker  error
	Kind    Kind
	Stage   string
	Split   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	detail := buildDetail(e.Stage, e.Split, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", detail, e.Cause)
	}
	return detail
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	if e.Marker != nil && errors.Is(e.Marker, target) {
		return true
	}
	return errors.Is(e.Cause, target)
}

// Wrap builds an error tagged with the given marker and stage/split context.
func Wrap(marker error, stage, split, message string, cause error) error {
	if marker == nil {
		marker = ErrOperator
	}
	return &Error{
		Marker:  marker,
		Kind:    classify(marker),
		Stage:   strings.TrimSpace(stage),
		Split:   strings.TrimSpace(split),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Details exposes a snapshot of an Error for structured logging, falling
// back to a generic operator-kind wrapper for errors loom did not originate.
type Details struct {
	Kind    Kind
	Stage   string
	Split   string
	Message string
	Cause   error
}

func Detail(err error) Details {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return Details{Kind: e.Kind, Stage: e.Stage, Split: e.Split, Message: e.Message, Cause: e.Cause}
	}
	return Details{Kind: KindOperator, Message: errorMessage(err), Cause: err}
}

// FailureState names the terminal job state a stage error should resolve
// to. Cancelled errors never produce a failed marker, matching §7.
type FailureState string

const (
	StateFailed    FailureState = "failed"
	StateCancelled FailureState = "cancelled"
)

// Resolve maps an error to the job state the orchestrator should persist.
func Resolve(err error) FailureState {
	if errors.Is(err, ErrCancelled) {
		return StateCancelled
	}
	return StateFailed
}

func classify(marker error) Kind {
	switch {
	case errors.Is(marker, ErrConfig):
		return KindConfig
	case errors.Is(marker, ErrInput):
		return KindInput
	case errors.Is(marker, ErrOperator):
		return KindOperator
	case errors.Is(marker, ErrConsistency):
		return KindConsistency
	case errors.Is(marker, ErrCancelled):
		return KindCancelled
	default:
		return KindOperator
	}
}

func buildDetail(stage, split, message string) string {
	parts := make([]string, 0, 3)
	if stage != "" {
		parts = append(parts, stage)
	}
	if split != "" {
		parts = append(parts, split)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
