package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/face-login/internal/retry"
)

// LoginAttempt is the audit record of one /login request.
type LoginAttempt struct {
	ID        uint      `gorm:"primaryKey"`
	RequestID string    `gorm:"column:request_id;uniqueIndex;size:64"`
	UserID    string    `gorm:"column:user_id;size:255;index"`
	Status    string    `gorm:"column:status;size:32"`
	ProbePath string    `gorm:"column:probe_path;type:text"`
	SHA1Hash  string    `gorm:"column:sha1_hash;size:40"`
	Compared  int       `gorm:"column:compared"`
	LatencyMs int64     `gorm:"column:latency_ms"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (LoginAttempt) TableName() string {
	return "login_attempts"
}

// MetricsAggregation holds raw totals over all recorded attempts.
type MetricsAggregation struct {
	TotalCount       int64
	SuccessCount     int64
	AverageLatencyMs float64
}

// AttemptRepository persists login attempts with gorm.
type AttemptRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

func NewAttemptRepository(db *gorm.DB, logger *zap.Logger) *AttemptRepository {
	return &AttemptRepository{
		db:     db,
		logger: logger.Named("attempt_repository"),
		policy: retry.DefaultPolicy,
	}
}

// AutoMigrate ensures the schema is available.
func (r *AttemptRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&LoginAttempt{})
}

func (r *AttemptRepository) SaveAttempt(ctx context.Context, attempt *LoginAttempt) error {
	return r.executeWithRetry(ctx, "repository.save_attempt", attempt.RequestID, func() error {
		return r.db.WithContext(ctx).Create(attempt).Error
	})
}

// FindByRequestIDAndUser retrieves an attempt owned by userID.
func (r *AttemptRepository) FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*LoginAttempt, error) {
	var attempt LoginAttempt
	err := r.executeWithRetry(ctx, "repository.find_attempt", requestID, func() error {
		return r.db.WithContext(ctx).First(&attempt, "request_id = ? AND user_id = ?", requestID, userID).Error
	})
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *AttemptRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&LoginAttempt{}).
			Select("COUNT(*) AS total_count, "+
				"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS success_count, "+
				"COALESCE(AVG(latency_ms), 0) AS average_latency_ms", "success").
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *AttemptRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	return retry.Do(ctx, r.logger, r.policy, operation, requestID, fn)
}
