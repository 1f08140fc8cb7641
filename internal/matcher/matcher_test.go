package matcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-login/internal/faceverifier"
)

// stubVerifier answers by reference file name.
type stubVerifier struct {
	verified map[string]bool
	failing  map[string]error
	calls    []string
	requests []faceverifier.Request
}

func (s *stubVerifier) Verify(ctx context.Context, req faceverifier.Request) (*faceverifier.Verification, error) {
	name := filepath.Base(req.ReferencePath)
	s.calls = append(s.calls, name)
	s.requests = append(s.requests, req)
	if err, ok := s.failing[name]; ok {
		return nil, err
	}
	return &faceverifier.Verification{Verified: s.verified[name], Distance: 0.5}, nil
}

func referenceDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestFindMatchEmptyDirectoryIsNotFound(t *testing.T) {
	verifier := &stubVerifier{}
	m := New(referenceDir(t), verifier, zap.NewNop())

	match, err := m.FindMatch(context.Background(), "probe.png")
	if err != nil {
		t.Fatalf("FindMatch() error = %v", err)
	}
	if match.Found {
		t.Fatal("expected no match for an empty directory")
	}
	if len(verifier.calls) != 0 {
		t.Fatalf("expected no verifier calls, got %v", verifier.calls)
	}
}

func TestFindMatchReturnsSingleVerifiedReference(t *testing.T) {
	verifier := &stubVerifier{verified: map[string]bool{"carol.jpg": true}}
	m := New(referenceDir(t, "alice.png", "bob.png", "carol.jpg", "dave.png"), verifier, zap.NewNop())

	match, err := m.FindMatch(context.Background(), "probe.png")
	if err != nil {
		t.Fatalf("FindMatch() error = %v", err)
	}
	if !match.Found || match.Label != "carol" {
		t.Fatalf("expected carol, got %+v", match)
	}
	want := []string{"alice.png", "bob.png", "carol.jpg"}
	if len(verifier.calls) != len(want) {
		t.Fatalf("expected scan to stop after carol, calls = %v", verifier.calls)
	}
	for i := range want {
		if verifier.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", verifier.calls, want)
		}
	}
}

func TestFindMatchSkipsFailingComparisons(t *testing.T) {
	verifier := &stubVerifier{
		verified: map[string]bool{"bob.png": true},
		failing:  map[string]error{"alice.png": errors.New("face could not be detected")},
	}
	m := New(referenceDir(t, "alice.png", "bob.png"), verifier, zap.NewNop())

	match, err := m.FindMatch(context.Background(), "probe.png")
	if err != nil {
		t.Fatalf("FindMatch() error = %v", err)
	}
	if !match.Found || match.Label != "bob" {
		t.Fatalf("expected bob after skipping alice, got %+v", match)
	}
	if len(match.Comparisons) != 2 || !match.Comparisons[0].Failed() || match.Comparisons[1].Failed() {
		t.Fatalf("unexpected comparisons %+v", match.Comparisons)
	}
}

func TestFindMatchAllFailingIsNotFound(t *testing.T) {
	boom := errors.New("unreadable image")
	verifier := &stubVerifier{failing: map[string]error{"alice.png": boom, "bob.png": boom}}
	m := New(referenceDir(t, "alice.png", "bob.png"), verifier, zap.NewNop())

	match, err := m.FindMatch(context.Background(), "probe.png")
	if err != nil {
		t.Fatalf("FindMatch() error = %v", err)
	}
	if match.Found {
		t.Fatal("expected not found")
	}
	if len(verifier.calls) != 2 {
		t.Fatalf("expected both references to be tried, got %v", verifier.calls)
	}
}

func TestFindMatchFirstByNameWins(t *testing.T) {
	verifier := &stubVerifier{verified: map[string]bool{"alice.png": true, "zed.png": true}}
	m := New(referenceDir(t, "zed.png", "alice.png"), verifier, zap.NewNop())

	match, err := m.FindMatch(context.Background(), "probe.png")
	if err != nil {
		t.Fatalf("FindMatch() error = %v", err)
	}
	if match.Label != "alice" {
		t.Fatalf("expected alice to win by name order, got %q", match.Label)
	}
}

func TestFindMatchSendsNonStrictDetection(t *testing.T) {
	verifier := &stubVerifier{}
	dir := referenceDir(t, "alice.png")
	m := New(dir, verifier, zap.NewNop())

	if _, err := m.FindMatch(context.Background(), "/tmp/probe.png"); err != nil {
		t.Fatal(err)
	}
	req := verifier.requests[0]
	if req.EnforceDetection {
		t.Error("expected EnforceDetection=false")
	}
	if req.ProbePath != "/tmp/probe.png" || req.ReferencePath != filepath.Join(dir, "alice.png") {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestFindMatchMissingDirectoryIsError(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "missing"), &stubVerifier{}, zap.NewNop())
	if _, err := m.FindMatch(context.Background(), "probe.png"); err == nil {
		t.Fatal("expected error for a missing reference directory")
	}
}

func TestFindMatchStopsOnCancelledContext(t *testing.T) {
	verifier := &stubVerifier{}
	m := New(referenceDir(t, "alice.png"), verifier, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.FindMatch(ctx, "probe.png"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(verifier.calls) != 0 {
		t.Fatalf("expected no verifier calls, got %v", verifier.calls)
	}
}

func TestFindMatchAppliesPerComparisonTimeout(t *testing.T) {
	verifier := faceverifier.VerifierFunc(func(ctx context.Context, req faceverifier.Request) (*faceverifier.Verification, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	m := New(referenceDir(t, "alice.png"), verifier, zap.NewNop(), WithTimeout(10*time.Millisecond))

	match, err := m.FindMatch(context.Background(), "probe.png")
	if err != nil {
		t.Fatalf("FindMatch() error = %v", err)
	}
	if match.Found || !errors.Is(match.Comparisons[0].Err, context.DeadlineExceeded) {
		t.Fatalf("expected a timed out comparison, got %+v", match.Comparisons)
	}
}

func TestListReferencesSkipsDirectoriesAndDotFiles(t *testing.T) {
	dir := referenceDir(t, "bob.jpeg", ".gitkeep", "alice.smith.png")
	if err := os.Mkdir(filepath.Join(dir, "archive"), 0o755); err != nil {
		t.Fatal(err)
	}

	refs, err := ListReferences(dir)
	if err != nil {
		t.Fatalf("ListReferences() error = %v", err)
	}
	if len(refs) != 2 || refs[0].Label != "alice.smith" || refs[1].Label != "bob" {
		t.Fatalf("unexpected references %+v", refs)
	}
}
