package logging

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewOperationErrorKeepsNil(t *testing.T) {
	if err := NewOperationError("op", "req", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestOperationErrorUnwraps(t *testing.T) {
	base := errors.New("disk full")
	err := NewOperationError("imagestore.save", "req-1", base)

	if !errors.Is(err, base) {
		t.Fatal("expected errors.Is to find the wrapped error")
	}
	if got, want := err.Error(), "imagestore.save [req-1]: disk full"; got != want {
		t.Fatalf("unexpected message: got %q want %q", got, want)
	}
}

func TestOperationOfReturnsInnermost(t *testing.T) {
	inner := NewOperationError("grpcclient.verify", "", errors.New("unavailable"))
	outer := NewOperationError("usecase.authenticate", "req-2", inner)

	if op := OperationOf(outer); op != "grpcclient.verify" {
		t.Fatalf("expected innermost operation, got %q", op)
	}
	if op := OperationOf(errors.New("plain")); op != "" {
		t.Fatalf("expected empty operation, got %q", op)
	}
}

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "face-login.log")
	logger, err := NewLogger(logFile)
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}
	logger.Info("hello")
	_ = logger.Sync()

	matches, err := filepath.Glob(logFile + ".*")
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected a rotated log file to be created")
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected log file to contain the entry")
	}
}
