// Package wheel coordinates the life of a wheel: which months can still be
// filled, building and analysing new wheels, history, comparison and deletion.
package wheel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xaenox/wheel-bot/internal/analysis"
	"github.com/xaenox/wheel-bot/internal/metrics"
	"github.com/xaenox/wheel-bot/internal/models"
	"github.com/xaenox/wheel-bot/internal/monthlabel"
	"github.com/xaenox/wheel-bot/internal/storage"
)

// WheelRenderer draws a single wheel in one chart style.
type WheelRenderer interface {
	Render(wheelID int64, scores []models.Score) (string, error)
	// Existing returns a previously rendered image, if any.
	Existing(wheelID int64) (string, bool)
}

// ChartRenderer is the main renderer. It also draws comparisons and owns the
// image files.
type ChartRenderer interface {
	WheelRenderer
	RenderComparison(wheelA, wheelB int64, scoresA, scoresB []models.Score, labelA, labelB string) (string, error)
	RemoveWheelImages(wheelIDs []int64) error
}

// Analyzer returns analysis text, or text starting with analysis.FailurePrefix.
type Analyzer interface {
	Analyze(ctx context.Context, scores []models.Score) string
	Compare(ctx context.Context, older, newer []models.Score, dateOlder, dateNewer string) string
}

type Service struct {
	store    storage.Storage
	charts   ChartRenderer
	legacy   WheelRenderer
	analyzer Analyzer
	locks    *userLocks
	now      func() time.Time
	logger   *zap.Logger
}

// NewService wires the orchestrator. legacy is used only when charts fails.
func NewService(store storage.Storage, charts ChartRenderer, legacy WheelRenderer, analyzer Analyzer, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		charts:   charts,
		legacy:   legacy,
		analyzer: analyzer,
		locks:    newUserLocks(),
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the reference clock used for month calculations.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Now() time.Time { return s.now() }

func (s *Service) RegisterUser(ctx context.Context, telegramID int64, username, firstName string) (*models.User, error) {
	user, err := s.store.GetOrCreateUser(ctx, telegramID, username, firstName)
	if err != nil {
		return nil, fmt.Errorf("failed to register user: %w", err)
	}
	return user, nil
}

// LogAction appends to the audit log. Failures are only logged.
func (s *Service) LogAction(ctx context.Context, userID int64, kind models.ActionKind, details string, wheelID *int64) {
	err := s.store.LogAction(ctx, &models.ActionLog{
		UserID:  userID,
		Action:  kind,
		Details: details,
		WheelID: wheelID,
	})
	if err != nil {
		s.logger.Warn("Failed to log user action",
			zap.Int64("user_id", userID),
			zap.String("action", string(kind)),
			zap.Error(err))
	}
}

// FillableMonths lists the labels the user may still build a wheel for.
type FillableMonths struct {
	Labels []string
	// Skipped counts stored wheels whose name is not a month label.
	Skipped int
}

// filledMonths parses every wheel name, skipping the unparsable ones.
func filledMonths(wheels []*models.Wheel) (map[monthlabel.Month]*models.Wheel, int) {
	filled := make(map[monthlabel.Month]*models.Wheel, len(wheels))
	skipped := 0
	for _, w := range wheels {
		m, err := monthlabel.Parse(w.Name)
		if err != nil {
			skipped++
			continue
		}
		if _, ok := filled[m]; !ok {
			filled[m] = w
		}
	}
	return filled, skipped
}

// ListFillableMonths returns those of the last three months that have no
// wheel yet, most recent first. An empty list means a session must not start.
func (s *Service) ListFillableMonths(ctx context.Context, userID int64) (FillableMonths, error) {
	wheels, err := s.store.ListUserWheels(ctx, userID)
	if err != nil {
		return FillableMonths{}, fmt.Errorf("failed to list wheels: %w", err)
	}

	filled, skipped := filledMonths(wheels)
	if skipped > 0 {
		metrics.RecordUnparsableLabels(skipped)
		s.logger.Warn("Skipped wheels with unparsable names",
			zap.Int64("user_id", userID),
			zap.Int("skipped", skipped))
	}

	out := FillableMonths{Skipped: skipped}
	for _, label := range monthlabel.LastThreeMonthLabels(s.now()) {
		m, err := monthlabel.Parse(label)
		if err != nil {
			continue
		}
		if _, ok := filled[m]; !ok {
			out.Labels = append(out.Labels, label)
		}
	}
	return out, nil
}

// FinalizeResult is what a completed rating session produces.
type FinalizeResult struct {
	Wheel *models.Wheel
	// Image holds the newer chart, or the legacy one when the newer failed.
	Image Attempt[string]
	// Analysis is either the analysis or a failure report, see analysis.IsFailure.
	Analysis string
	// Saved reports whether the analysis was stored on the wheel.
	Saved Attempt[bool]
}

func validateScores(values map[string]int) error {
	for _, c := range models.Categories {
		v, ok := values[c]
		if !ok {
			continue
		}
		if v < models.MinScore || v > models.MaxScore {
			return fmt.Errorf("%w: %s=%d", ErrInvalidRating, c, v)
		}
	}
	for name := range values {
		if !models.IsCategory(name) {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidRating, name)
		}
	}
	return nil
}

// Finalize stores a wheel for label, then renders and analyses it. Only
// validation and the initial write can fail the call; rendering and analysis
// problems are reported inside the result.
func (s *Service) Finalize(ctx context.Context, userID int64, label string, values map[string]int) (*FinalizeResult, error) {
	month, err := monthlabel.Parse(label)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLabel, err)
	}
	if err := validateScores(values); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	existing, err := s.store.ListUserWheels(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wheels: %w", err)
	}
	if filled, _ := filledMonths(existing); filled[month] != nil {
		return nil, ErrMonthAlreadyFilled
	}

	scores := models.OrderedScores(values)
	w, err := s.store.CreateWheel(ctx, userID, label, scores)
	if err != nil {
		return nil, fmt.Errorf("failed to create wheel: %w", err)
	}
	metrics.RecordWheelCreated()
	s.LogAction(ctx, userID, models.ActionCreateWheel, label, &w.ID)

	res := &FinalizeResult{Wheel: w}

	// both branches report through res and never fail the group
	var g errgroup.Group
	g.Go(func() error {
		res.Image = s.renderWheel(w.ID, scores)
		return nil
	})
	g.Go(func() error {
		res.Analysis = s.analyzer.Analyze(ctx, scores)
		return nil
	})
	_ = g.Wait()

	if analysis.IsFailure(res.Analysis) {
		res.Saved = failed[bool](errors.New(res.Analysis))
		return res, nil
	}

	if err := s.store.UpdateWheelAnalysis(ctx, w.ID, res.Analysis); err != nil {
		s.logger.Warn("Failed to persist wheel analysis",
			zap.Int64("user_id", userID),
			zap.Int64("wheel_id", w.ID),
			zap.Error(err))
		res.Saved = failed[bool](err)
		return res, nil
	}
	text := res.Analysis
	res.Wheel.LLMAnalysis = &text
	res.Saved = succeeded(true)
	return res, nil
}

// renderWheel tries the current chart style, then the legacy one.
func (s *Service) renderWheel(wheelID int64, scores []models.Score) Attempt[string] {
	path, err := s.charts.Render(wheelID, scores)
	if err == nil {
		return succeeded(path)
	}
	metrics.RecordRenderFailure("sectors")
	s.logger.Warn("Chart rendering failed, trying legacy style",
		zap.Int64("wheel_id", wheelID),
		zap.Error(err))

	if s.legacy == nil {
		return failed[string](err)
	}
	path, legacyErr := s.legacy.Render(wheelID, scores)
	if legacyErr != nil {
		metrics.RecordRenderFailure("legacy")
		s.logger.Warn("Legacy chart rendering failed",
			zap.Int64("wheel_id", wheelID),
			zap.Error(legacyErr))
		return failed[string](errors.Join(err, legacyErr))
	}
	return succeeded(path)
}
