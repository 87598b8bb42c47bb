package operator

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"loom/internal/apperrors"
)

type recordingSink struct {
	messages []string
}

func (r *recordingSink) Step(message string, _ float64) {
	r.messages = append(r.messages, message)
}

func fakeCommandContext(script string) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
}

func withFakeCommand(t *testing.T, script string) {
	t.Helper()
	original := commandContext
	commandContext = fakeCommandContext(script)
	t.Cleanup(func() { commandContext = original })
}

func TestSubprocessRunForwardsProgressEvents(t *testing.T) {
	withFakeCommand(t, `echo '{"stage":"denoise","message":"working","fraction":0.5}'`)

	sink := &recordingSink{}
	sub := Subprocess{Binary: "fake", Stage: "denoise"}
	if err := sub.Run(context.Background(), nil, sink); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.messages) != 1 || sink.messages[0] != "working" {
		t.Errorf("expected one forwarded message, got %v", sink.messages)
	}
}

func TestSubprocessRunSkipsNonJSONLines(t *testing.T) {
	withFakeCommand(t, `echo 'not json'; echo '{"message":"ok","fraction":1}'`)

	sink := &recordingSink{}
	sub := Subprocess{Binary: "fake", Stage: "denoise"}
	if err := sub.Run(context.Background(), nil, sink); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.messages) != 1 || sink.messages[0] != "ok" {
		t.Errorf("expected only the JSON line forwarded, got %v", sink.messages)
	}
}

func TestSubprocessRunReportsErrorEvent(t *testing.T) {
	withFakeCommand(t, `echo '{"error":"model crashed"}'`)

	sub := Subprocess{Binary: "fake", Stage: "denoise"}
	err := sub.Run(context.Background(), nil, NoopSink{})
	if err == nil {
		t.Fatal("expected an error from the {\"error\":...} event")
	}
	if !errors.Is(err, apperrors.ErrOperator) {
		t.Errorf("expected ErrOperator, got %v", err)
	}
}

func TestSubprocessRunReportsNonZeroExit(t *testing.T) {
	withFakeCommand(t, `exit 1`)

	sub := Subprocess{Binary: "fake", Stage: "denoise"}
	err := sub.Run(context.Background(), nil, NoopSink{})
	if err == nil {
		t.Fatal("expected an error from non-zero exit")
	}
	if !errors.Is(err, apperrors.ErrOperator) {
		t.Errorf("expected ErrOperator, got %v", err)
	}
}

func TestSubprocessRunReportsCancellation(t *testing.T) {
	withFakeCommand(t, `sleep 5`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sub := Subprocess{Binary: "fake", Stage: "denoise"}
	err := sub.Run(ctx, nil, NoopSink{})
	if err == nil {
		t.Fatal("expected an error from cancelled context")
	}
	if !errors.Is(err, apperrors.ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}
