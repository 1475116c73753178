package wheel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/wheel-bot/internal/analysis"
	"github.com/xaenox/wheel-bot/internal/metrics"
	"github.com/xaenox/wheel-bot/internal/models"
	"github.com/xaenox/wheel-bot/internal/monthlabel"
	"github.com/xaenox/wheel-bot/internal/storage"
)

// ListHistory returns the user's wheels, newest first.
func (s *Service) ListHistory(ctx context.Context, userID int64) ([]*models.Wheel, error) {
	wheels, err := s.store.ListUserWheels(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wheels: %w", err)
	}
	return wheels, nil
}

// SortByMonth orders wheels by the month their name refers to, oldest first.
// Wheels with unparsable names keep their relative order at the end.
func SortByMonth(wheels []*models.Wheel) []*models.Wheel {
	type keyed struct {
		w     *models.Wheel
		month monthlabel.Month
		ok    bool
	}
	items := make([]keyed, len(wheels))
	for i, w := range wheels {
		m, err := monthlabel.Parse(w.Name)
		items[i] = keyed{w: w, month: m, ok: err == nil}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.ok != b.ok {
			return a.ok
		}
		if !a.ok {
			return false
		}
		return a.month.Before(b.month)
	})

	out := make([]*models.Wheel, len(items))
	for i, it := range items {
		out[i] = it.w
	}
	return out
}

// previousFilled scans wheels in order for the first one labelled with the
// month before ref.
func previousFilled(wheels []*models.Wheel, ref time.Time) *models.Wheel {
	target, err := monthlabel.Parse(monthlabel.PreviousMonthLabel(ref))
	if err != nil {
		return nil
	}
	for _, w := range wheels {
		m, err := monthlabel.Parse(w.Name)
		if err != nil {
			continue
		}
		if m == target {
			return w
		}
	}
	return nil
}

// PreviousFilledWheel returns the wheel for the calendar month before ref,
// or nil. It is the default comparison baseline.
func (s *Service) PreviousFilledWheel(ctx context.Context, userID int64, ref time.Time) (*models.Wheel, error) {
	wheels, err := s.ListHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	return previousFilled(wheels, ref), nil
}

// Pair names the two wheels to compare. Baseline is the previous month's wheel.
type Pair struct {
	Selected int64
	Baseline int64
}

// ResolveComparisonPair picks what /compare compares. lastOpened is the wheel
// the user opened from history in this session, if any.
func (s *Service) ResolveComparisonPair(ctx context.Context, userID int64, lastOpened *int64) (Pair, error) {
	wheels, err := s.ListHistory(ctx, userID)
	if err != nil {
		return Pair{}, err
	}
	prev := previousFilled(wheels, s.now())

	if lastOpened != nil && prev != nil {
		if *lastOpened == prev.ID {
			return Pair{}, ErrSelfComparison
		}
		return Pair{Selected: *lastOpened, Baseline: prev.ID}, nil
	}

	if prev == nil {
		return Pair{}, ErrComparisonUnavailable
	}
	for _, w := range wheels {
		if w.ID != prev.ID {
			return Pair{Selected: w.ID, Baseline: prev.ID}, nil
		}
	}
	return Pair{}, ErrComparisonUnavailable
}

// OpenedWheel is a wheel picked from history.
type OpenedWheel struct {
	Wheel  *models.Wheel
	Scores []models.Score
	Image  Attempt[string]
	// CompareWith is the previous month's wheel when it differs from Wheel.
	CompareWith *models.Wheel
	// SelfComparison is set when Wheel is itself the previous month's wheel.
	SelfComparison bool
}

func (s *Service) ownedWheel(ctx context.Context, userID, wheelID int64) (*models.Wheel, error) {
	w, err := s.store.GetWheel(ctx, wheelID)
	if err != nil {
		return nil, err
	}
	if w.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return w, nil
}

// OpenWheel loads one of the user's wheels, redraws it and finds what it can
// be compared with.
func (s *Service) OpenWheel(ctx context.Context, userID, wheelID int64) (*OpenedWheel, error) {
	w, err := s.ownedWheel(ctx, userID, wheelID)
	if err != nil {
		return nil, err
	}
	scores, err := s.store.GetWheelScores(ctx, wheelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load wheel scores: %w", err)
	}

	out := &OpenedWheel{Wheel: w, Scores: scores, Image: s.redraw(wheelID, scores)}

	prev, err := s.PreviousFilledWheel(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	switch {
	case prev == nil:
	case prev.ID == w.ID:
		out.SelfComparison = true
	default:
		out.CompareWith = prev
	}

	s.LogAction(ctx, userID, models.ActionOpenWheel, w.Name, &w.ID)
	return out, nil
}

// redraw renders the current style and otherwise falls back to a stored
// legacy image without drawing one.
func (s *Service) redraw(wheelID int64, scores []models.Score) Attempt[string] {
	path, err := s.charts.Render(wheelID, scores)
	if err == nil {
		return succeeded(path)
	}
	metrics.RecordRenderFailure("sectors")
	s.logger.Warn("Chart rendering failed, looking for legacy image",
		zap.Int64("wheel_id", wheelID),
		zap.Error(err))
	if s.legacy != nil {
		if p, ok := s.legacy.Existing(wheelID); ok {
			return succeeded(p)
		}
	}
	return failed[string](err)
}

// Comparison is the outcome of comparing two wheels. Older and Newer are in
// chronological order whatever order they were requested in.
type Comparison struct {
	Older    *models.Wheel
	Newer    *models.Wheel
	Image    Attempt[string]
	Analysis string
}

// monthOf is the month a wheel describes: its label when parsable, else the
// month it was created in.
func monthOf(w *models.Wheel) monthlabel.Month {
	if m, err := monthlabel.Parse(w.Name); err == nil {
		return m
	}
	return monthlabel.Of(w.CreatedAt)
}

func chronological(a, b *models.Wheel) (older, newer *models.Wheel) {
	ma, mb := monthOf(a), monthOf(b)
	switch {
	case ma.Before(mb):
		return a, b
	case mb.Before(ma):
		return b, a
	case b.CreatedAt.Before(a.CreatedAt):
		return b, a
	default:
		return a, b
	}
}

// DisplayDate formats the date a wheel stands for as dd.mm.yyyy.
func DisplayDate(w *models.Wheel) string {
	if m, err := monthlabel.Parse(w.Name); err == nil {
		return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).Format("02.01.2006")
	}
	return w.CreatedAt.Format("02.01.2006")
}

// Compare draws both wheels together and asks for a comparison, older first.
// A successful analysis is cached as a WheelComparison.
func (s *Service) Compare(ctx context.Context, userID, wheelA, wheelB int64) (*Comparison, error) {
	if wheelA == wheelB {
		return nil, ErrSelfComparison
	}
	a, err := s.ownedWheel(ctx, userID, wheelA)
	if err != nil {
		return nil, err
	}
	b, err := s.ownedWheel(ctx, userID, wheelB)
	if err != nil {
		return nil, err
	}
	scoresA, err := s.store.GetWheelScores(ctx, wheelA)
	if err != nil {
		return nil, fmt.Errorf("failed to load wheel scores: %w", err)
	}
	scoresB, err := s.store.GetWheelScores(ctx, wheelB)
	if err != nil {
		return nil, fmt.Errorf("failed to load wheel scores: %w", err)
	}

	out := &Comparison{}
	path, err := s.charts.RenderComparison(a.ID, b.ID, scoresA, scoresB, a.Name, b.Name)
	if err != nil {
		metrics.RecordRenderFailure("comparison")
		s.logger.Warn("Comparison chart rendering failed",
			zap.Int64("wheel_a", a.ID),
			zap.Int64("wheel_b", b.ID),
			zap.Error(err))
		out.Image = failed[string](err)
	} else {
		out.Image = succeeded(path)
	}

	out.Older, out.Newer = chronological(a, b)
	olderScores, newerScores := scoresA, scoresB
	if out.Older.ID != a.ID {
		olderScores, newerScores = scoresB, scoresA
	}
	out.Analysis = s.analyzer.Compare(ctx,
		models.AlignScores(olderScores), models.AlignScores(newerScores),
		DisplayDate(out.Older), DisplayDate(out.Newer))

	if !analysis.IsFailure(out.Analysis) {
		text := out.Analysis
		err := s.store.SaveComparison(ctx, &models.WheelComparison{
			WheelID1:           out.Older.ID,
			WheelID2:           out.Newer.ID,
			ComparisonAnalysis: &text,
		})
		if err != nil {
			s.logger.Warn("Failed to cache comparison",
				zap.Int64("user_id", userID),
				zap.Error(err))
		}
	}

	s.LogAction(ctx, userID, models.ActionCompareWheels,
		fmt.Sprintf("%d:%d", out.Older.ID, out.Newer.ID), nil)
	return out, nil
}

// IsNotFound reports a wheel that is missing or owned by someone else.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
