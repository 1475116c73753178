package wheel

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/wheel-bot/internal/metrics"
	"github.com/xaenox/wheel-bot/internal/models"
)

type Stage string

const (
	StageSelectingMonth Stage = "selecting_month"
	StageRating         Stage = "rating"
	// StageFinalizing is reached once every category is rated. The session
	// is removed when finalization is done.
	StageFinalizing Stage = "finalizing"
)

// BuildSession is a wheel being built, from month choice to the last rating.
type BuildSession struct {
	ID     string         `json:"id"`
	Stage  Stage          `json:"stage"`
	Months []string       `json:"months"`
	Label  string         `json:"label,omitempty"`
	Index  int            `json:"index"`
	Scores map[string]int `json:"scores"`
	// StartedAt is only informational.
	StartedAt time.Time `json:"started_at"`
}

// Category is the category awaiting a rating, empty when none is.
func (b *BuildSession) Category() string {
	if b.Stage != StageRating || b.Index >= len(models.Categories) {
		return ""
	}
	return models.Categories[b.Index]
}

// State is everything remembered about one user between messages.
type State struct {
	Build             *BuildSession `json:"build,omitempty"`
	LastOpenedWheelID *int64        `json:"last_opened_wheel_id,omitempty"`
}

func (s *State) empty() bool {
	return s.Build == nil && s.LastOpenedWheelID == nil
}

// SessionStore persists per-user State. Load returns an empty State for
// unknown users; saving an empty State removes it.
type SessionStore interface {
	Load(ctx context.Context, userID int64) (*State, error)
	Save(ctx context.Context, userID int64, st *State) error
}

// Sessions owns the per-user conversation state. Calls for one user are
// serialized; different users never wait on each other.
type Sessions struct {
	store  SessionStore
	locks  *userLocks
	now    func() time.Time
	logger *zap.Logger
}

func NewSessions(store SessionStore, logger *zap.Logger) *Sessions {
	return &Sessions{
		store:  store,
		locks:  newUserLocks(),
		now:    time.Now,
		logger: logger,
	}
}

func (m *Sessions) update(ctx context.Context, userID int64, fn func(st *State) error) (*State, error) {
	unlock := m.locks.lock(userID)
	defer unlock()

	st, err := m.store.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if err := fn(st); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, userID, st); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return st, nil
}

// StartBuild opens a session offering months. Any unfinished build of the
// user is discarded.
func (m *Sessions) StartBuild(ctx context.Context, userID int64, months []string) (*BuildSession, error) {
	if len(months) == 0 {
		return nil, ErrNoFillableMonths
	}
	st, err := m.update(ctx, userID, func(st *State) error {
		if st.Build == nil {
			metrics.SessionStarted()
		}
		st.Build = &BuildSession{
			ID:        uuid.NewString(),
			Stage:     StageSelectingMonth,
			Months:    append([]string(nil), months...),
			Scores:    map[string]int{},
			StartedAt: m.now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("Wheel session started",
		zap.Int64("user_id", userID),
		zap.String("session_id", st.Build.ID),
		zap.Strings("months", months))
	return st.Build, nil
}

// ChooseMonth fixes the label and moves on to rating the first category.
func (m *Sessions) ChooseMonth(ctx context.Context, userID int64, label string) (*BuildSession, error) {
	st, err := m.update(ctx, userID, func(st *State) error {
		b := st.Build
		if b == nil {
			return ErrNoActiveSession
		}
		if b.Stage != StageSelectingMonth {
			// a repeated tap on the same month button
			if b.Label == label {
				return nil
			}
			return ErrInvalidLabel
		}
		if !slices.Contains(b.Months, label) {
			return ErrInvalidLabel
		}
		b.Label = label
		b.Stage = StageRating
		b.Index = 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st.Build, nil
}

// RatingOutcome describes what a rating did to the session.
type RatingOutcome struct {
	Session *BuildSession
	// Duplicate is set when the rating repeated the previous step. Nothing
	// advanced and the caller should not act on it again.
	Duplicate bool
	// Complete is set exactly once, when the last category got its rating.
	Complete bool
}

// RecordRating stores value for the category at idx. Only the current
// category or, as a repeat, the previous one is accepted.
func (m *Sessions) RecordRating(ctx context.Context, userID int64, idx, value int) (RatingOutcome, error) {
	var out RatingOutcome
	last := len(models.Categories) - 1

	st, err := m.update(ctx, userID, func(st *State) error {
		b := st.Build
		if b == nil {
			return ErrNoActiveSession
		}
		if idx < 0 || idx > last || value < models.MinScore || value > models.MaxScore {
			return ErrInvalidRating
		}

		switch b.Stage {
		case StageFinalizing:
			if idx != last {
				return ErrInvalidRating
			}
			out.Duplicate = true
		case StageRating:
			switch idx {
			case b.Index:
				b.Scores[models.Categories[idx]] = value
				b.Index++
				if b.Index > last {
					b.Stage = StageFinalizing
					out.Complete = true
				}
			case b.Index - 1:
				b.Scores[models.Categories[idx]] = value
				out.Duplicate = true
			default:
				return ErrInvalidRating
			}
		default:
			return ErrInvalidRating
		}
		return nil
	})
	if err != nil {
		return RatingOutcome{}, err
	}
	out.Session = st.Build
	return out, nil
}

// Build returns the session in progress, or nil.
func (m *Sessions) Build(ctx context.Context, userID int64) (*BuildSession, error) {
	st, err := m.store.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return st.Build, nil
}

// EndBuild discards the build session after finalization or on cancel and
// reports whether there was one.
func (m *Sessions) EndBuild(ctx context.Context, userID int64) (bool, error) {
	var had bool
	_, err := m.update(ctx, userID, func(st *State) error {
		if st.Build != nil {
			had = true
			m.logger.Info("Wheel session ended",
				zap.Int64("user_id", userID),
				zap.String("session_id", st.Build.ID),
				zap.String("stage", string(st.Build.Stage)))
			metrics.SessionEnded()
		}
		st.Build = nil
		return nil
	})
	return had, err
}

// SetLastOpened remembers the wheel opened from history for /compare.
func (m *Sessions) SetLastOpened(ctx context.Context, userID, wheelID int64) error {
	_, err := m.update(ctx, userID, func(st *State) error {
		st.LastOpenedWheelID = &wheelID
		return nil
	})
	return err
}

func (m *Sessions) LastOpened(ctx context.Context, userID int64) (*int64, error) {
	st, err := m.store.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return st.LastOpenedWheelID, nil
}

// ForgetWheels drops the last-opened wheel when it is among deleted ids, or
// unconditionally when ids is nil.
func (m *Sessions) ForgetWheels(ctx context.Context, userID int64, ids []int64) error {
	_, err := m.update(ctx, userID, func(st *State) error {
		if st.LastOpenedWheelID == nil {
			return nil
		}
		if ids == nil || slices.Contains(ids, *st.LastOpenedWheelID) {
			st.LastOpenedWheelID = nil
		}
		return nil
	})
	return err
}
