package storage

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/xaenox/wheel-bot/internal/models"
)

type MemoryStorage struct {
    mu          sync.RWMutex
    now         func() time.Time
    nextID      int64
    users       map[int64]*models.User
    wheels      map[int64]*models.Wheel
    categories  map[int64][]models.WheelCategory
    comparisons map[int64]*models.WheelComparison
    actions     []*models.ActionLog
}

func NewMemoryStorage() *MemoryStorage {
    return &MemoryStorage{
        now:         func() time.Time { return time.Now().UTC() },
        users:       make(map[int64]*models.User),
        wheels:      make(map[int64]*models.Wheel),
        categories:  make(map[int64][]models.WheelCategory),
        comparisons: make(map[int64]*models.WheelComparison),
    }
}

// WithClock replaces the timestamp source, used by tests that need fixed dates.
func (s *MemoryStorage) WithClock(now func() time.Time) *MemoryStorage {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.now = now
    return s
}

func (s *MemoryStorage) id() int64 {
    s.nextID++
    return s.nextID
}

// User methods
func (s *MemoryStorage) GetOrCreateUser(ctx context.Context, telegramID int64, username, firstName string) (*models.User, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    for _, u := range s.users {
        if u.TelegramID == telegramID {
            cp := *u
            return &cp, nil
        }
    }

    now := s.now()
    user := &models.User{
        ID:         s.id(),
        TelegramID: telegramID,
        Username:   username,
        FirstName:  firstName,
        CreatedAt:  now,
        UpdatedAt:  now,
    }
    s.users[user.ID] = user
    cp := *user
    return &cp, nil
}

func (s *MemoryStorage) GetUser(ctx context.Context, userID int64) (*models.User, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    if user, exists := s.users[userID]; exists {
        cp := *user
        return &cp, nil
    }
    return nil, ErrNotFound
}

func (s *MemoryStorage) DeleteUser(ctx context.Context, userID int64) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    if _, exists := s.users[userID]; !exists {
        return ErrNotFound
    }
    s.deleteWheelsLocked(userID, nil)

    kept := s.actions[:0]
    for _, a := range s.actions {
        if a.UserID != userID {
            kept = append(kept, a)
        }
    }
    s.actions = kept
    delete(s.users, userID)
    return nil
}

// Wheel methods
func (s *MemoryStorage) CreateWheel(ctx context.Context, userID int64, name string, scores []models.Score) (*models.Wheel, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    if _, exists := s.users[userID]; !exists {
        return nil, ErrNotFound
    }

    wheel := &models.Wheel{
        ID:        s.id(),
        UserID:    userID,
        Name:      name,
        CreatedAt: s.now(),
    }
    cats := make([]models.WheelCategory, len(scores))
    for i, sc := range scores {
        cats[i] = models.WheelCategory{
            ID:           s.id(),
            WheelID:      wheel.ID,
            CategoryName: sc.Category,
            Value:        sc.Value,
            Order:        i,
        }
    }
    s.wheels[wheel.ID] = wheel
    s.categories[wheel.ID] = cats

    cp := *wheel
    return &cp, nil
}

func (s *MemoryStorage) UpdateWheelAnalysis(ctx context.Context, wheelID int64, analysis string) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    wheel, exists := s.wheels[wheelID]
    if !exists {
        return ErrNotFound
    }
    wheel.LLMAnalysis = &analysis
    return nil
}

func (s *MemoryStorage) GetWheel(ctx context.Context, wheelID int64) (*models.Wheel, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    wheel, exists := s.wheels[wheelID]
    if !exists {
        return nil, ErrNotFound
    }
    cp := *wheel
    return &cp, nil
}

func (s *MemoryStorage) GetWheelScores(ctx context.Context, wheelID int64) ([]models.Score, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    cats := append([]models.WheelCategory(nil), s.categories[wheelID]...)
    sort.SliceStable(cats, func(i, j int) bool { return cats[i].Order < cats[j].Order })

    scores := make([]models.Score, len(cats))
    for i, c := range cats {
        scores[i] = models.Score{Category: c.CategoryName, Value: c.Value}
    }
    return scores, nil
}

func (s *MemoryStorage) ListUserWheels(ctx context.Context, userID int64) ([]*models.Wheel, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    return s.userWheelsLocked(userID), nil
}

func (s *MemoryStorage) userWheelsLocked(userID int64) []*models.Wheel {
    var wheels []*models.Wheel
    for _, w := range s.wheels {
        if w.UserID == userID {
            cp := *w
            wheels = append(wheels, &cp)
        }
    }
    sort.Slice(wheels, func(i, j int) bool {
        if wheels[i].CreatedAt.Equal(wheels[j].CreatedAt) {
            return wheels[i].ID > wheels[j].ID
        }
        return wheels[i].CreatedAt.After(wheels[j].CreatedAt)
    })
    return wheels
}

func (s *MemoryStorage) DeleteWheels(ctx context.Context, userID int64, wheelIDs []int64) (int, error) {
    if len(wheelIDs) == 0 {
        return 0, nil
    }
    s.mu.Lock()
    defer s.mu.Unlock()

    ids := make(map[int64]struct{}, len(wheelIDs))
    for _, id := range wheelIDs {
        ids[id] = struct{}{}
    }
    return s.deleteWheelsLocked(userID, ids), nil
}

func (s *MemoryStorage) DeleteAllWheels(ctx context.Context, userID int64) (int, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    return s.deleteWheelsLocked(userID, nil), nil
}

// deleteWheelsLocked removes the user's wheels in ids (all of them when ids is nil).
func (s *MemoryStorage) deleteWheelsLocked(userID int64, ids map[int64]struct{}) int {
    deleted := 0
    for id, w := range s.wheels {
        if w.UserID != userID {
            continue
        }
        if ids != nil {
            if _, ok := ids[id]; !ok {
                continue
            }
        }
        delete(s.categories, id)
        delete(s.wheels, id)
        for cid, c := range s.comparisons {
            if c.WheelID1 == id || c.WheelID2 == id {
                delete(s.comparisons, cid)
            }
        }
        deleted++
    }
    return deleted
}

func (s *MemoryStorage) SaveComparison(ctx context.Context, cmp *models.WheelComparison) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    if _, ok := s.wheels[cmp.WheelID1]; !ok {
        return ErrNotFound
    }
    if _, ok := s.wheels[cmp.WheelID2]; !ok {
        return ErrNotFound
    }
    cmp.ID = s.id()
    cmp.CreatedAt = s.now()
    cp := *cmp
    s.comparisons[cmp.ID] = &cp
    return nil
}

func (s *MemoryStorage) LogAction(ctx context.Context, entry *models.ActionLog) error {
    s.mu.Lock()
    defer s.mu.Unlock()

    entry.ID = s.id()
    if entry.CreatedAt.IsZero() {
        entry.CreatedAt = s.now()
    }
    cp := *entry
    s.actions = append(s.actions, &cp)
    return nil
}

// Stats methods
func (s *MemoryStorage) ListUsersWithLastAction(ctx context.Context) ([]models.UserActivity, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    last := make(map[int64]time.Time)
    for _, a := range s.actions {
        if a.CreatedAt.After(last[a.UserID]) {
            last[a.UserID] = a.CreatedAt
        }
    }

    out := make([]models.UserActivity, 0, len(s.users))
    for _, u := range s.users {
        ua := models.UserActivity{User: *u}
        if t, ok := last[u.ID]; ok {
            ua.LastActionDate = &t
        }
        out = append(out, ua)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
    return out, nil
}

func (s *MemoryStorage) NewUsersSince(ctx context.Context, since time.Time) ([]*models.User, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    var out []*models.User
    for _, u := range s.users {
        if !u.CreatedAt.Before(since) {
            cp := *u
            out = append(out, &cp)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
    return out, nil
}

func (s *MemoryStorage) CountWheelsSince(ctx context.Context, since time.Time) (int, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    n := 0
    for _, w := range s.wheels {
        if !w.CreatedAt.Before(since) {
            n++
        }
    }
    return n, nil
}

func (s *MemoryStorage) UsersWithWheelsSince(ctx context.Context, since time.Time) ([]models.UserWheelActivity, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    byUser := make(map[int64]*models.UserWheelActivity)
    for _, w := range s.wheels {
        if w.CreatedAt.Before(since) {
            continue
        }
        act, ok := byUser[w.UserID]
        if !ok {
            user, exists := s.users[w.UserID]
            if !exists {
                continue
            }
            act = &models.UserWheelActivity{User: *user}
            byUser[w.UserID] = act
        }
        act.WheelsCount++
        if w.CreatedAt.After(act.LastWheelDate) {
            act.LastWheelDate = w.CreatedAt
        }
    }

    out := make([]models.UserWheelActivity, 0, len(byUser))
    for _, act := range byUser {
        out = append(out, *act)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].LastWheelDate.After(out[j].LastWheelDate) })
    return out, nil
}

func (s *MemoryStorage) InactiveUsers(ctx context.Context, from, to time.Time) ([]models.UserWheelActivity, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    var out []models.UserWheelActivity
    for _, u := range s.users {
        wheels := s.userWheelsLocked(u.ID)
        if len(wheels) == 0 {
            continue
        }
        lastWheel := wheels[0].CreatedAt
        if lastWheel.Before(from) || !lastWheel.Before(to) {
            continue
        }
        out = append(out, models.UserWheelActivity{
            User:          *u,
            WheelsCount:   len(wheels),
            LastWheelDate: lastWheel,
        })
    }
    sort.Slice(out, func(i, j int) bool { return out[i].LastWheelDate.Before(out[j].LastWheelDate) })
    return out, nil
}

func (s *MemoryStorage) Close() error {
    // Nothing to close for in-memory storage
    return nil
}
