package storage

import (
	"context"
	"errors"
	"time"

	"github.com/xaenox/wheel-bot/internal/models"
)

var ErrNotFound = errors.New("not found")

type Storage interface {
	GetOrCreateUser(ctx context.Context, telegramID int64, username, firstName string) (*models.User, error)
	DeleteUser(ctx context.Context, userID int64) error

	CreateWheel(ctx context.Context, userID int64, name string, scores []models.Score) (*models.Wheel, error)
	UpdateWheelAnalysis(ctx context.Context, wheelID int64, analysis string) error
	GetWheel(ctx context.Context, wheelID int64) (*models.Wheel, error)
	GetWheelScores(ctx context.Context, wheelID int64) ([]models.Score, error)
	ListUserWheels(ctx context.Context, userID int64) ([]*models.Wheel, error)
	// DeleteWheels removes the given wheels owned by userID together with their categories.
	DeleteWheels(ctx context.Context, userID int64, wheelIDs []int64) (int, error)
	DeleteAllWheels(ctx context.Context, userID int64) (int, error)

	SaveComparison(ctx context.Context, cmp *models.WheelComparison) error
	LogAction(ctx context.Context, entry *models.ActionLog) error

	Close() error

	StatsStorage
}

// StatsStorage holds the read-only aggregate queries used by the dashboard.
type StatsStorage interface {
	ListUsersWithLastAction(ctx context.Context) ([]models.UserActivity, error)
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	NewUsersSince(ctx context.Context, since time.Time) ([]*models.User, error)
	CountWheelsSince(ctx context.Context, since time.Time) (int, error)
	UsersWithWheelsSince(ctx context.Context, since time.Time) ([]models.UserWheelActivity, error)
	// InactiveUsers returns users whose last wheel falls in [from, to) and who
	// created nothing since, oldest activity first.
	InactiveUsers(ctx context.Context, from, to time.Time) ([]models.UserWheelActivity, error)
}
