// Package matcher runs the probe image against every reference image and
// stops at the first positive verification.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-login/internal/faceverifier"
	"github.com/example/face-login/internal/metrics"
)

var errNoVerification = errors.New("verifier returned no result")

// Reference is a known identity image. Label is the file name without its
// extension.
type Reference struct {
	Label string
	Path  string
}

// Comparison is the outcome of verifying the probe against one reference.
// Err is set when the verifier could not compare the pair; such a comparison
// counts as no match.
type Comparison struct {
	Label    string
	Path     string
	Verified bool
	Distance float64
	Elapsed  time.Duration
	Err      error
}

// Failed reports whether the verifier errored on this comparison.
func (c Comparison) Failed() bool {
	return c.Err != nil
}

// Match is the result of a scan. Label is set only when Found is true.
type Match struct {
	Found       bool
	Label       string
	Comparisons []Comparison
}

// Matcher scans a reference directory with a face verifier.
type Matcher struct {
	referenceDir string
	verifier     faceverifier.Verifier
	timeout      time.Duration
	logger       *zap.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithTimeout bounds each verifier call. Zero leaves calls unbounded.
func WithTimeout(d time.Duration) Option {
	return func(m *Matcher) { m.timeout = d }
}

// New returns a matcher over referenceDir.
func New(referenceDir string, verifier faceverifier.Verifier, logger *zap.Logger, opts ...Option) *Matcher {
	m := &Matcher{
		referenceDir: referenceDir,
		verifier:     verifier,
		logger:       logger.Named("matcher"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ListReferences enumerates reference images sorted by file name. The order
// decides the winner when several references would verify. Directories and
// dot-files are skipped.
func ListReferences(dir string) ([]Reference, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	refs := make([]Reference, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		refs = append(refs, Reference{
			Label: strings.TrimSuffix(name, filepath.Ext(name)),
			Path:  filepath.Join(dir, name),
		})
	}
	return refs, nil
}

// FindMatch compares probePath with each reference in order. An empty
// directory, or one where nothing verifies, yields Found=false. Errors are
// returned only when the directory cannot be listed or ctx is done.
func (m *Matcher) FindMatch(ctx context.Context, probePath string) (*Match, error) {
	refs, err := ListReferences(m.referenceDir)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}

	match := &Match{Comparisons: make([]Comparison, 0, len(refs))}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cmp := m.compare(ctx, probePath, ref)
		match.Comparisons = append(match.Comparisons, cmp)
		if cmp.Verified {
			match.Found = true
			match.Label = ref.Label
			return match, nil
		}
	}

	m.logger.Info("no reference matched", zap.Int("references", len(refs)))
	return match, nil
}

func (m *Matcher) compare(ctx context.Context, probePath string, ref Reference) Comparison {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := m.verifier.Verify(ctx, faceverifier.Request{
		ProbePath:        probePath,
		ReferencePath:    ref.Path,
		EnforceDetection: false,
	})
	if err == nil && result == nil {
		err = errNoVerification
	}

	cmp := Comparison{Label: ref.Label, Path: ref.Path, Elapsed: time.Since(start)}
	if err != nil {
		cmp.Err = err
		metrics.ObserveComparison(metrics.OutcomeError, cmp.Elapsed)
		m.logger.Warn("failed to compare with reference", zap.String("reference", ref.Label), zap.Error(err))
		return cmp
	}

	cmp.Verified = result.Verified
	cmp.Distance = result.Distance
	outcome := metrics.OutcomeNoMatch
	if cmp.Verified {
		outcome = metrics.OutcomeMatch
	}
	metrics.ObserveComparison(outcome, cmp.Elapsed)
	m.logger.Info("compared with reference",
		zap.String("reference", ref.Label),
		zap.Bool("verified", cmp.Verified),
		zap.Float64("distance", cmp.Distance),
		zap.Duration("elapsed", cmp.Elapsed),
	)
	return cmp
}
