package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/face-login/internal/imagestore"
	"github.com/example/face-login/internal/logging"
	"github.com/example/face-login/internal/matcher"
	"github.com/example/face-login/internal/metrics"
	"github.com/example/face-login/internal/repository"
	"github.com/example/face-login/internal/retry"
)

var (
	// ErrAuditDisabled is returned by audit queries when no repository is configured.
	ErrAuditDisabled = errors.New("login attempt audit log is disabled")
	// ErrAttemptNotFound is returned when no attempt matches the request and user.
	ErrAttemptNotFound = errors.New("login attempt not found")
)

const attemptCacheTTL = 5 * time.Minute

// Status is the outcome of a login attempt.
type Status int

const (
	StatusSuccess Status = iota
	StatusNotFound
	StatusInvalidInput
	StatusInternalError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotFound:
		return "not_found"
	case StatusInvalidInput:
		return "invalid_input"
	default:
		return "internal_error"
	}
}

// LoginResult is returned to the transport layer. UserID is only set on success.
type LoginResult struct {
	Status      Status
	UserID      string
	RequestID   string
	Comparisons int
	Duration    time.Duration
}

// ImageStore persists the probe image.
type ImageStore interface {
	Save(payload string) (*imagestore.Probe, error)
}

// FaceMatcher finds the identity shown on a stored probe.
type FaceMatcher interface {
	FindMatch(ctx context.Context, probePath string) (*matcher.Match, error)
}

// AttemptRepository defines the persistence operations needed by the use case.
type AttemptRepository interface {
	SaveAttempt(ctx context.Context, attempt *repository.LoginAttempt) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.LoginAttempt, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// LoginUseCase encapsulates the face login flow.
type LoginUseCase struct {
	store   ImageStore
	matcher FaceMatcher
	repo    AttemptRepository
	cache   Cache
	logger  *zap.Logger
	policy  retry.Policy
}

// Option configures optional collaborators.
type Option func(*LoginUseCase)

// WithRepository enables the attempt audit log.
func WithRepository(repo AttemptRepository) Option {
	return func(uc *LoginUseCase) { uc.repo = repo }
}

// WithCache enables caching of recent attempts.
func WithCache(cache Cache) Option {
	return func(uc *LoginUseCase) { uc.cache = cache }
}

// WithRetryPolicy overrides the cache retry policy.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(uc *LoginUseCase) { uc.policy = policy }
}

func NewLoginUseCase(store ImageStore, faceMatcher FaceMatcher, logger *zap.Logger, opts ...Option) *LoginUseCase {
	uc := &LoginUseCase{
		store:   store,
		matcher: faceMatcher,
		logger:  logger.Named("login_usecase"),
		policy:  retry.DefaultPolicy,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type cachedAttempt struct {
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	ProbePath string    `json:"probe_path"`
	Hash      string    `json:"sha1_hash"`
	Compared  int       `json:"compared"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Authenticate decodes and stores the probe image and looks for a matching
// reference. A nil image means the request carried none. Failures other than
// per-reference verifier errors end as StatusInternalError; their details are
// logged only.
func (uc *LoginUseCase) Authenticate(ctx context.Context, image *string) *LoginResult {
	start := time.Now()
	result := &LoginResult{RequestID: uuid.NewString()}
	opLogger := logging.WithOperation(uc.logger, "usecase.authenticate", result.RequestID)

	var probe *imagestore.Probe
	defer func() {
		result.Duration = time.Since(start)
		metrics.ObserveLogin(result.Status.String())
		uc.record(ctx, opLogger, result, probe)
	}()

	if image == nil {
		opLogger.Warn("no image in login request")
		result.Status = StatusInvalidInput
		return result
	}

	var err error
	probe, err = uc.store.Save(*image)
	if err != nil {
		opLogger.Error("failed to store probe image", zap.Error(logging.NewOperationError("imagestore.save", result.RequestID, err)))
		result.Status = StatusInternalError
		return result
	}
	opLogger.Info("saved probe image", zap.String("path", probe.Path), zap.Int("bytes", probe.Size))

	match, err := uc.matcher.FindMatch(ctx, probe.Path)
	if err != nil {
		opLogger.Error("face matching failed", zap.Error(logging.NewOperationError("matcher.find_match", result.RequestID, err)))
		result.Status = StatusInternalError
		return result
	}

	result.Comparisons = len(match.Comparisons)
	if !match.Found {
		opLogger.Info("face not recognized", zap.Int("compared", result.Comparisons))
		result.Status = StatusNotFound
		return result
	}

	opLogger.Info("face recognized", zap.String("user", match.Label), zap.Int("compared", result.Comparisons))
	result.Status = StatusSuccess
	result.UserID = match.Label
	return result
}

// record writes the attempt to the audit log and cache. Audit failures never
// change the login outcome.
func (uc *LoginUseCase) record(ctx context.Context, opLogger *zap.Logger, result *LoginResult, probe *imagestore.Probe) {
	if uc.repo == nil && uc.cache == nil {
		return
	}

	attempt := &repository.LoginAttempt{
		RequestID: result.RequestID,
		UserID:    result.UserID,
		Status:    result.Status.String(),
		Compared:  result.Comparisons,
		LatencyMs: result.Duration.Milliseconds(),
		CreatedAt: time.Now().UTC(),
	}
	if probe != nil {
		attempt.ProbePath = probe.Path
		attempt.SHA1Hash = probe.SHA1
	}

	if uc.repo != nil {
		if err := uc.repo.SaveAttempt(ctx, attempt); err != nil {
			opLogger.Warn("failed to persist login attempt", zap.Error(err))
		}
	}

	if uc.cache != nil {
		serialized, err := json.Marshal(cachedAttempt{
			RequestID: attempt.RequestID,
			UserID:    attempt.UserID,
			Status:    attempt.Status,
			ProbePath: attempt.ProbePath,
			Hash:      attempt.SHA1Hash,
			Compared:  attempt.Compared,
			LatencyMs: attempt.LatencyMs,
			CreatedAt: attempt.CreatedAt,
		})
		if err != nil {
			opLogger.Warn("failed to serialize login attempt", zap.Error(err))
			return
		}
		key := attemptCacheKey(result.RequestID)
		if err := uc.withRedisRetry(ctx, result.RequestID, "cache.set.attempt", func() error {
			return uc.cache.Set(ctx, key, string(serialized), attemptCacheTTL)
		}); err != nil {
			opLogger.Warn("failed to cache login attempt", zap.Error(err))
		}
	}
}

// GetAttempt returns an attempt owned by userID, from the cache when present
// and from the audit log otherwise.
func (uc *LoginUseCase) GetAttempt(ctx context.Context, userID, requestID string) (*repository.LoginAttempt, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_attempt", requestID)

	if uc.cache != nil {
		cached, err := uc.withRedisGet(ctx, requestID, "cache.get.attempt", attemptCacheKey(requestID))
		switch {
		case err == nil:
			var payload cachedAttempt
			if err := json.Unmarshal([]byte(cached), &payload); err != nil {
				opLogger.Warn("failed to decode cached attempt", zap.Error(err))
				break
			}
			if payload.UserID != userID {
				return nil, ErrAttemptNotFound
			}
			return &repository.LoginAttempt{
				RequestID: payload.RequestID,
				UserID:    payload.UserID,
				Status:    payload.Status,
				ProbePath: payload.ProbePath,
				SHA1Hash:  payload.Hash,
				Compared:  payload.Compared,
				LatencyMs: payload.LatencyMs,
				CreatedAt: payload.CreatedAt,
			}, nil
		case !errors.Is(err, redis.Nil):
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
	}

	if uc.repo == nil {
		if uc.cache == nil {
			return nil, ErrAuditDisabled
		}
		return nil, ErrAttemptNotFound
	}

	attempt, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if err != nil {
		opLogger.Info("attempt lookup failed", zap.Error(err))
		return nil, ErrAttemptNotFound
	}
	return attempt, nil
}

func (uc *LoginUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	return retry.Do(ctx, uc.logger, uc.policy, operation, requestID, fn)
}

func (uc *LoginUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
