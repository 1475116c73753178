package wheel

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/wheel-bot/internal/models"
)

// ownedIDs keeps the ids among want (all of them when want is nil) that belong
// to userID.
func (s *Service) ownedIDs(ctx context.Context, userID int64, want []int64) ([]int64, error) {
	wheels, err := s.store.ListUserWheels(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wheels: %w", err)
	}
	wanted := make(map[int64]bool, len(want))
	for _, id := range want {
		wanted[id] = true
	}
	var ids []int64
	for _, w := range wheels {
		if want == nil || wanted[w.ID] {
			ids = append(ids, w.ID)
		}
	}
	return ids, nil
}

// removeImages never fails the caller; a stale image is harmless.
func (s *Service) removeImages(userID int64, ids []int64) {
	if len(ids) == 0 || s.charts == nil {
		return
	}
	if err := s.charts.RemoveWheelImages(ids); err != nil {
		s.logger.Warn("Failed to remove wheel images",
			zap.Int64("user_id", userID),
			zap.Int64s("wheel_ids", ids),
			zap.Error(err))
	}
}

// DeleteWheels removes the user's wheels among ids and returns how many were
// deleted. Ids of other users' wheels are ignored.
func (s *Service) DeleteWheels(ctx context.Context, userID int64, ids []int64) (int, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	owned, err := s.ownedIDs(ctx, userID, ids)
	if err != nil {
		return 0, err
	}
	if len(owned) == 0 {
		return 0, nil
	}

	s.removeImages(userID, owned)
	n, err := s.store.DeleteWheels(ctx, userID, owned)
	if err != nil {
		return 0, fmt.Errorf("failed to delete wheels: %w", err)
	}
	for _, id := range owned {
		s.LogAction(ctx, userID, models.ActionDeleteWheel, "", &id)
	}
	return n, nil
}

func (s *Service) DeleteAllWheels(ctx context.Context, userID int64) (int, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	owned, err := s.ownedIDs(ctx, userID, nil)
	if err != nil {
		return 0, err
	}
	s.removeImages(userID, owned)

	n, err := s.store.DeleteAllWheels(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete wheels: %w", err)
	}
	s.LogAction(ctx, userID, models.ActionDeleteAllWheels, fmt.Sprintf("count=%d", n), nil)
	return n, nil
}

// WipeAccount deletes every wheel and then the user. It cannot be undone.
func (s *Service) WipeAccount(ctx context.Context, userID int64) (int, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	owned, err := s.ownedIDs(ctx, userID, nil)
	if err != nil {
		return 0, err
	}
	s.removeImages(userID, owned)

	n, err := s.store.DeleteAllWheels(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete wheels: %w", err)
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return n, fmt.Errorf("failed to delete user: %w", err)
	}
	s.logger.Info("Account wiped", zap.Int64("user_id", userID), zap.Int("wheels", n))
	return n, nil
}
