package storage

import (
	"context"
	"time"

	"github.com/xaenox/wheel-bot/internal/models"
)

// StatsWindow is the period the dashboard and /stats report on.
const StatsWindow = 30 * 24 * time.Hour

// CollectStatistics aggregates the last StatsWindow before now. Inactive users
// made their last wheel in the window before that one.
func CollectStatistics(ctx context.Context, s StatsStorage, now time.Time) (*models.Statistics, error) {
	since := now.Add(-StatsWindow)

	newUsers, err := s.NewUsersSince(ctx, since)
	if err != nil {
		return nil, err
	}
	wheels, err := s.CountWheelsSince(ctx, since)
	if err != nil {
		return nil, err
	}
	inactive, err := s.InactiveUsers(ctx, since.Add(-StatsWindow), since)
	if err != nil {
		return nil, err
	}

	return &models.Statistics{
		NewUsers:      len(newUsers),
		WheelsCreated: wheels,
		InactiveUsers: len(inactive),
	}, nil
}
