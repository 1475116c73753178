package storage

import (
	"context"
	"net/url"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/wheel-bot/internal/models"
)

// clock hands out strictly increasing timestamps starting at a fixed instant.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(start time.Time) *clock { return &clock{now: start} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type storeFactory func(t *testing.T, now func() time.Time) Storage

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, now func() time.Time) Storage {
			return NewMemoryStorage().WithClock(now)
		},
		"sqlite": func(t *testing.T, now func() time.Time) Storage {
			s, err := NewSQLStorage(DatabaseConfig{Driver: DriverSQLite, Path: ":memory:"}, zap.NewNop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s.WithClock(now)
		},
		"postgres": func(t *testing.T, now func() time.Time) Storage {
			dsn := os.Getenv("TEST_POSTGRES_DSN")
			if dsn == "" {
				t.Skip("set TEST_POSTGRES_DSN to run postgres storage tests")
			}
			cfg := postgresConfig(t, dsn)
			s, err := NewSQLStorage(cfg, zap.NewNop())
			require.NoError(t, err)
			_, err = s.db.Exec(`TRUNCATE users, wheels, wheel_categories, wheel_comparisons, user_action_logs RESTART IDENTITY CASCADE`)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s.WithClock(now)
		},
	}
}

func postgresConfig(t *testing.T, dsn string) DatabaseConfig {
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	password, _ := u.User.Password()
	port := 5432
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		require.NoError(t, err)
	}
	return DatabaseConfig{
		Driver:   DriverPostgres,
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   u.Path[1:],
		SSLMode:  "disable",
	}
}

func eachStore(t *testing.T, fn func(t *testing.T, s Storage, c *clock)) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			c := newClock(time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC))
			fn(t, factory(t, c.Now), c)
		})
	}
}

func sampleScores(base int) []models.Score {
	values := make(map[string]int)
	for i, name := range models.Categories {
		values[name] = (base+i)%10 + 1
	}
	return models.OrderedScores(values)
}

func TestGetOrCreateUser(t *testing.T) {
	eachStore(t, func(t *testing.T, s Storage, _ *clock) {
		ctx := context.Background()

		u1, err := s.GetOrCreateUser(ctx, 1001, "alice", "Alice")
		require.NoError(t, err)
		assert.NotZero(t, u1.ID)
		assert.Equal(t, "alice", u1.Username)

		u2, err := s.GetOrCreateUser(ctx, 1001, "other", "Other")
		require.NoError(t, err)
		assert.Equal(t, u1.ID, u2.ID)
		assert.Equal(t, "alice", u2.Username)

		u3, err := s.GetOrCreateUser(ctx, 1002, "", "")
		require.NoError(t, err)
		assert.NotEqual(t, u1.ID, u3.ID)

		got, err := s.GetUser(ctx, u1.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1001), got.TelegramID)

		_, err = s.GetUser(ctx, 999999)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestWheelLifecycle(t *testing.T) {
	eachStore(t, func(t *testing.T, s Storage, _ *clock) {
		ctx := context.Background()
		user, err := s.GetOrCreateUser(ctx, 42, "bob", "Bob")
		require.NoError(t, err)

		first, err := s.CreateWheel(ctx, user.ID, "январь 24", sampleScores(0))
		require.NoError(t, err)
		second, err := s.CreateWheel(ctx, user.ID, "февраль 24", sampleScores(3))
		require.NoError(t, err)
		assert.Nil(t, second.LLMAnalysis)

		scores, err := s.GetWheelScores(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, scores, len(models.Categories))
		assert.Equal(t, sampleScores(0), scores)

		require.NoError(t, s.UpdateWheelAnalysis(ctx, second.ID, "всё хорошо"))
		got, err := s.GetWheel(ctx, second.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LLMAnalysis)
		assert.Equal(t, "всё хорошо", *got.LLMAnalysis)
		assert.True(t, got.HasAnalysis())

		assert.ErrorIs(t, s.UpdateWheelAnalysis(ctx, 987654, "x"), ErrNotFound)
		_, err = s.GetWheel(ctx, 987654)
		assert.ErrorIs(t, err, ErrNotFound)

		wheels, err := s.ListUserWheels(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, wheels, 2)
		assert.Equal(t, second.ID, wheels[0].ID, "newest first")
		assert.Equal(t, first.ID, wheels[1].ID)
	})
}

func TestDeleteWheels(t *testing.T) {
	eachStore(t, func(t *testing.T, s Storage, _ *clock) {
		ctx := context.Background()
		owner, err := s.GetOrCreateUser(ctx, 1, "", "")
		require.NoError(t, err)
		other, err := s.GetOrCreateUser(ctx, 2, "", "")
		require.NoError(t, err)

		w1, err := s.CreateWheel(ctx, owner.ID, "январь 24", sampleScores(1))
		require.NoError(t, err)
		w2, err := s.CreateWheel(ctx, owner.ID, "февраль 24", sampleScores(2))
		require.NoError(t, err)
		foreign, err := s.CreateWheel(ctx, other.ID, "февраль 24", sampleScores(3))
		require.NoError(t, err)

		analysis := "cmp"
		require.NoError(t, s.SaveComparison(ctx, &models.WheelComparison{WheelID1: w1.ID, WheelID2: w2.ID, ComparisonAnalysis: &analysis}))

		n, err := s.DeleteWheels(ctx, owner.ID, []int64{w2.ID, foreign.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, n, "foreign wheel must not be deleted")

		scores, err := s.GetWheelScores(ctx, w2.ID)
		require.NoError(t, err)
		assert.Empty(t, scores)

		_, err = s.GetWheel(ctx, foreign.ID)
		require.NoError(t, err)

		wheels, err := s.ListUserWheels(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, wheels, 1)
		assert.Equal(t, w1.ID, wheels[0].ID)

		n, err = s.DeleteWheels(ctx, owner.ID, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestDeleteAllWheels_LeavesNoCategories(t *testing.T) {
	eachStore(t, func(t *testing.T, s Storage, _ *clock) {
		ctx := context.Background()
		user, err := s.GetOrCreateUser(ctx, 7, "", "")
		require.NoError(t, err)

		var ids []int64
		for i := 0; i < 3; i++ {
			w, err := s.CreateWheel(ctx, user.ID, "март 24", sampleScores(i))
			require.NoError(t, err)
			ids = append(ids, w.ID)
		}

		n, err := s.DeleteAllWheels(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		for _, id := range ids {
			scores, err := s.GetWheelScores(ctx, id)
			require.NoError(t, err)
			assert.Empty(t, scores, "wheel %d still has categories", id)
		}
	})
}

func TestDeleteUser(t *testing.T) {
	eachStore(t, func(t *testing.T, s Storage, _ *clock) {
		ctx := context.Background()
		user, err := s.GetOrCreateUser(ctx, 9, "", "")
		require.NoError(t, err)
		w, err := s.CreateWheel(ctx, user.ID, "март 24", sampleScores(0))
		require.NoError(t, err)
		require.NoError(t, s.LogAction(ctx, &models.ActionLog{UserID: user.ID, Action: models.ActionCreateWheel, WheelID: &w.ID}))

		require.NoError(t, s.DeleteUser(ctx, user.ID))

		_, err = s.GetUser(ctx, user.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetWheel(ctx, w.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		scores, err := s.GetWheelScores(ctx, w.ID)
		require.NoError(t, err)
		assert.Empty(t, scores)

		assert.ErrorIs(t, s.DeleteUser(ctx, user.ID), ErrNotFound)
	})
}

func TestStatistics(t *testing.T) {
	eachStore(t, func(t *testing.T, s Storage, c *clock) {
		ctx := context.Background()
		now := time.Date(2024, time.June, 30, 12, 0, 0, 0, time.UTC)

		// Old user, last wheel 45 days ago: inactive.
		c.Set(now.AddDate(0, 0, -100))
		dormant, err := s.GetOrCreateUser(ctx, 1, "dormant", "")
		require.NoError(t, err)
		c.Set(now.AddDate(0, 0, -45))
		_, err = s.CreateWheel(ctx, dormant.ID, "апрель 24", sampleScores(0))
		require.NoError(t, err)

		// Old user with a wheel 50 days ago and another 10 days ago: active.
		c.Set(now.AddDate(0, 0, -90))
		regular, err := s.GetOrCreateUser(ctx, 2, "regular", "")
		require.NoError(t, err)
		c.Set(now.AddDate(0, 0, -50))
		_, err = s.CreateWheel(ctx, regular.ID, "апрель 24", sampleScores(1))
		require.NoError(t, err)
		c.Set(now.AddDate(0, 0, -10))
		_, err = s.CreateWheel(ctx, regular.ID, "май 24", sampleScores(2))
		require.NoError(t, err)
		require.NoError(t, s.LogAction(ctx, &models.ActionLog{UserID: regular.ID, Action: models.ActionCreateWheel}))

		// New user with two recent wheels.
		c.Set(now.AddDate(0, 0, -5))
		fresh, err := s.GetOrCreateUser(ctx, 3, "fresh", "")
		require.NoError(t, err)
		_, err = s.CreateWheel(ctx, fresh.ID, "май 24", sampleScores(3))
		require.NoError(t, err)
		_, err = s.CreateWheel(ctx, fresh.ID, "апрель 24", sampleScores(4))
		require.NoError(t, err)

		since := now.AddDate(0, 0, -30)

		newUsers, err := s.NewUsersSince(ctx, since)
		require.NoError(t, err)
		require.Len(t, newUsers, 1)
		assert.Equal(t, fresh.ID, newUsers[0].ID)

		count, err := s.CountWheelsSince(ctx, since)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		active, err := s.UsersWithWheelsSince(ctx, since)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, fresh.ID, active[0].ID, "most recent activity first")
		assert.Equal(t, 2, active[0].WheelsCount)
		assert.Equal(t, regular.ID, active[1].ID)
		assert.Equal(t, 1, active[1].WheelsCount)

		inactive, err := s.InactiveUsers(ctx, now.AddDate(0, 0, -60), since)
		require.NoError(t, err)
		require.Len(t, inactive, 1)
		assert.Equal(t, dormant.ID, inactive[0].ID)
		assert.WithinDuration(t, now.AddDate(0, 0, -45), inactive[0].LastWheelDate, 2*time.Second)

		users, err := s.ListUsersWithLastAction(ctx)
		require.NoError(t, err)
		require.Len(t, users, 3)
		for _, u := range users {
			if u.ID == regular.ID {
				require.NotNil(t, u.LastActionDate)
			} else {
				assert.Nil(t, u.LastActionDate)
			}
		}
	})
}

func TestRebind(t *testing.T) {
	pg := &SQLStorage{driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2,$3)", pg.rebind("SELECT * FROM t WHERE a = ? AND b IN ("+placeholders(2)+")"))

	lite := &SQLStorage{driver: DriverSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestDBTimeScan(t *testing.T) {
	want := time.Date(2024, time.March, 15, 10, 30, 0, 500, time.UTC)
	for _, raw := range []any{
		want,
		want.String(),
		want.Format("2006-01-02 15:04:05.999999999-07:00"),
		[]byte(want.Format(time.RFC3339Nano)),
	} {
		var got dbTime
		require.NoError(t, got.Scan(raw))
		assert.True(t, got.Valid)
		assert.True(t, want.Equal(got.Time), "raw %v", raw)
	}

	var null dbTime
	require.NoError(t, null.Scan(nil))
	assert.False(t, null.Valid)
}
