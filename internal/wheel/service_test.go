package wheel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/wheel-bot/internal/models"
	"github.com/xaenox/wheel-bot/internal/storage"
)

type fakeCharts struct {
	mu             sync.Mutex
	prefix         string
	failRender     bool
	failComparison bool
	removeErr      error
	removed        []int64
	existing       map[int64]string
}

func (f *fakeCharts) Render(wheelID int64, scores []models.Score) (string, error) {
	if f.failRender {
		return "", errors.New("font missing")
	}
	if len(scores) != len(models.Categories) {
		return "", fmt.Errorf("got %d scores", len(scores))
	}
	prefix := f.prefix
	if prefix == "" {
		prefix = "wheel_new_"
	}
	return fmt.Sprintf("%s%d.png", prefix, wheelID), nil
}

func (f *fakeCharts) Existing(wheelID int64) (string, bool) {
	p, ok := f.existing[wheelID]
	return p, ok
}

func (f *fakeCharts) RenderComparison(a, b int64, sa, sb []models.Score, la, lb string) (string, error) {
	if f.failComparison {
		return "", errors.New("disk full")
	}
	return fmt.Sprintf("comparison_%d_%d.png", a, b), nil
}

func (f *fakeCharts) RemoveWheelImages(ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, ids...)
	return f.removeErr
}

type fakeAnalyzer struct {
	mu         sync.Mutex
	text       string
	calls      int
	older      []models.Score
	newer      []models.Score
	dateOlder  string
	dateNewer  string
	compareOut string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, scores []models.Score) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text
}

func (f *fakeAnalyzer) Compare(ctx context.Context, older, newer []models.Score, dateOlder, dateNewer string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.older, f.newer = older, newer
	f.dateOlder, f.dateNewer = dateOlder, dateNewer
	return f.compareOut
}

// failingAnalysisStore loses every analysis update.
type failingAnalysisStore struct {
	*storage.MemoryStorage
}

func (failingAnalysisStore) UpdateWheelAnalysis(ctx context.Context, wheelID int64, analysis string) error {
	return errors.New("connection reset")
}

var march15 = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *storage.MemoryStorage
	charts   *fakeCharts
	legacy   *fakeCharts
	analyzer *fakeAnalyzer
	svc      *Service
	userID   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    storage.NewMemoryStorage(),
		charts:   &fakeCharts{},
		legacy:   &fakeCharts{prefix: "wheel_", existing: map[int64]string{}},
		analyzer: &fakeAnalyzer{text: "Колесо сбалансировано", compareOut: "Стало лучше"},
	}
	f.svc = NewService(f.store, f.charts, f.legacy, f.analyzer, zap.NewNop()).
		WithClock(func() time.Time { return march15 })

	user, err := f.svc.RegisterUser(context.Background(), 1001, "anna", "Анна")
	require.NoError(t, err)
	f.userID = user.ID
	return f
}

func allScores(v int) map[string]int {
	values := map[string]int{}
	for _, c := range models.Categories {
		values[c] = v
	}
	return values
}

func (f *fixture) addWheel(t *testing.T, name string, v int) *models.Wheel {
	t.Helper()
	w, err := f.store.CreateWheel(context.Background(), f.userID, name, models.OrderedScores(allScores(v)))
	require.NoError(t, err)
	return w
}

func TestListFillableMonthsScenarioA(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.ListFillableMonths(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"февраль 24", "январь 24", "декабрь 23"}, got.Labels)
	assert.Zero(t, got.Skipped)
}

func TestListFillableMonthsScenarioB(t *testing.T) {
	for _, name := range []string{"январь 24", "за январь 2024", "За Январь 24"} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.addWheel(t, name, 5)
			f.addWheel(t, "моё первое колесо", 5)

			got, err := f.svc.ListFillableMonths(context.Background(), f.userID)
			require.NoError(t, err)
			assert.Equal(t, []string{"февраль 24", "декабрь 23"}, got.Labels)
			assert.Equal(t, 1, got.Skipped)
		})
	}
}

func TestListFillableMonthsAllFilled(t *testing.T) {
	f := newFixture(t)
	f.addWheel(t, "декабрь 23", 4)
	f.addWheel(t, "январь 24", 4)
	f.addWheel(t, "февраль 24", 4)

	got, err := f.svc.ListFillableMonths(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Empty(t, got.Labels)
}

func TestPreviousFilledWheelScenarioC(t *testing.T) {
	f := newFixture(t)
	jan := f.addWheel(t, "январь 24", 3)
	f.addWheel(t, "февраль 24", 5)

	got, err := f.svc.PreviousFilledWheel(context.Background(), f.userID,
		time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, jan.ID, got.ID, "the most recently created wheel is not the baseline")

	got, err = f.svc.PreviousFilledWheel(context.Background(), f.userID,
		time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteWheelsScenarioD(t *testing.T) {
	f := newFixture(t)
	keep := f.addWheel(t, "январь 24", 3)
	gone := f.addWheel(t, "февраль 24", 5)

	n, err := f.svc.DeleteWheels(context.Background(), f.userID, []int64{gone.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	history, err := f.svc.ListHistory(context.Background(), f.userID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, keep.ID, history[0].ID)

	scores, err := f.store.GetWheelScores(context.Background(), gone.ID)
	require.NoError(t, err)
	assert.Empty(t, scores)
	assert.Equal(t, []int64{gone.ID}, f.charts.removed)
}

func TestDeleteWheelsIgnoresForeignWheels(t *testing.T) {
	f := newFixture(t)
	other, err := f.svc.RegisterUser(context.Background(), 2002, "", "Борис")
	require.NoError(t, err)
	foreign, err := f.store.CreateWheel(context.Background(), other.ID, "январь 24", models.OrderedScores(allScores(2)))
	require.NoError(t, err)

	n, err := f.svc.DeleteWheels(context.Background(), f.userID, []int64{foreign.ID})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.charts.removed, "images of other users are untouched")

	_, err = f.store.GetWheel(context.Background(), foreign.ID)
	assert.NoError(t, err)
}

func TestDeleteAllWheelsLeavesNoCategories(t *testing.T) {
	f := newFixture(t)
	a := f.addWheel(t, "январь 24", 3)
	b := f.addWheel(t, "февраль 24", 5)
	f.charts.removeErr = errors.New("permission denied")

	n, err := f.svc.DeleteAllWheels(context.Background(), f.userID)
	require.NoError(t, err, "image removal failure must not abort deletion")
	assert.Equal(t, 2, n)

	for _, id := range []int64{a.ID, b.ID} {
		scores, err := f.store.GetWheelScores(context.Background(), id)
		require.NoError(t, err)
		assert.Empty(t, scores)
	}
	assert.ElementsMatch(t, []int64{a.ID, b.ID}, f.charts.removed)
}

func TestWipeAccount(t *testing.T) {
	f := newFixture(t)
	f.addWheel(t, "январь 24", 3)

	n, err := f.svc.WipeAccount(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.store.GetUser(context.Background(), f.userID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFinalize(t *testing.T) {
	f := newFixture(t)
	values := allScores(7)
	delete(values, "Хобби")

	res, err := f.svc.Finalize(context.Background(), f.userID, "февраль 24", values)
	require.NoError(t, err)

	require.True(t, res.Image.Ok())
	assert.Equal(t, fmt.Sprintf("wheel_new_%d.png", res.Wheel.ID), res.Image.Value)
	assert.Equal(t, "Колесо сбалансировано", res.Analysis)
	assert.True(t, res.Saved.Ok())

	stored, err := f.store.GetWheel(context.Background(), res.Wheel.ID)
	require.NoError(t, err)
	assert.Equal(t, "февраль 24", stored.Name)
	require.True(t, stored.HasAnalysis())
	assert.Equal(t, "Колесо сбалансировано", *stored.LLMAnalysis)

	scores, err := f.store.GetWheelScores(context.Background(), res.Wheel.ID)
	require.NoError(t, err)
	require.Len(t, scores, len(models.Categories))
	assert.Equal(t, models.Score{Category: "Хобби", Value: 0}, scores[3])
}

func TestFinalizeRendererFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.charts.failRender = true
	f.legacy.failRender = true

	res, err := f.svc.Finalize(context.Background(), f.userID, "февраль 24", allScores(6))
	require.NoError(t, err)

	assert.False(t, res.Image.Ok())
	assert.NotZero(t, res.Wheel.ID)
	assert.Equal(t, "Колесо сбалансировано", res.Analysis)

	scores, err := f.store.GetWheelScores(context.Background(), res.Wheel.ID)
	require.NoError(t, err)
	assert.Len(t, scores, 8)
}

func TestFinalizeFallsBackToLegacyRenderer(t *testing.T) {
	f := newFixture(t)
	f.charts.failRender = true

	res, err := f.svc.Finalize(context.Background(), f.userID, "февраль 24", allScores(6))
	require.NoError(t, err)
	require.True(t, res.Image.Ok())
	assert.Equal(t, fmt.Sprintf("wheel_%d.png", res.Wheel.ID), res.Image.Value)
}

func TestFinalizeAnalysisFailureIsNotStored(t *testing.T) {
	f := newFixture(t)
	f.analyzer.text = "Ошибка анализа: HTTP 503"

	res, err := f.svc.Finalize(context.Background(), f.userID, "февраль 24", allScores(6))
	require.NoError(t, err)
	assert.Equal(t, "Ошибка анализа: HTTP 503", res.Analysis)
	assert.False(t, res.Saved.Ok())

	stored, err := f.store.GetWheel(context.Background(), res.Wheel.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasAnalysis())
}

func TestFinalizeSwallowsAnalysisPersistFailure(t *testing.T) {
	f := newFixture(t)
	svc := NewService(failingAnalysisStore{f.store}, f.charts, f.legacy, f.analyzer, zap.NewNop()).
		WithClock(func() time.Time { return march15 })

	res, err := svc.Finalize(context.Background(), f.userID, "февраль 24", allScores(6))
	require.NoError(t, err)
	assert.Equal(t, "Колесо сбалансировано", res.Analysis, "the user still gets the text")
	assert.False(t, res.Saved.Ok())
}

func TestFinalizeValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Finalize(context.Background(), f.userID, "пятница 13", allScores(5))
	assert.ErrorIs(t, err, ErrInvalidLabel)
	assert.True(t, IsValidation(err))

	bad := allScores(5)
	bad["Деньги"] = 11
	_, err = f.svc.Finalize(context.Background(), f.userID, "февраль 24", bad)
	assert.ErrorIs(t, err, ErrInvalidRating)

	_, err = f.svc.Finalize(context.Background(), f.userID, "февраль 24", map[string]int{"Карьера": 5})
	assert.ErrorIs(t, err, ErrInvalidRating)

	history, err := f.svc.ListHistory(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Empty(t, history, "validation failures persist nothing")
}

func TestFinalizeNeverDoubleCreates(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Finalize(context.Background(), f.userID, "февраль 24", allScores(5))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrMonthAlreadyFilled)
		}
	}
	assert.Equal(t, 1, ok)

	_, err := f.svc.Finalize(context.Background(), f.userID, "за февраль 2024", allScores(5))
	assert.ErrorIs(t, err, ErrMonthAlreadyFilled)
}

func TestResolveComparisonPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ResolveComparisonPair(ctx, f.userID, nil)
	assert.ErrorIs(t, err, ErrComparisonUnavailable)

	jan := f.addWheel(t, "январь 24", 3)
	_, err = f.svc.ResolveComparisonPair(ctx, f.userID, nil)
	assert.ErrorIs(t, err, ErrComparisonUnavailable, "no wheel for February yet")

	feb := f.addWheel(t, "февраль 24", 6)

	pair, err := f.svc.ResolveComparisonPair(ctx, f.userID, nil)
	require.NoError(t, err)
	assert.Equal(t, Pair{Selected: jan.ID, Baseline: feb.ID}, pair)

	pair, err = f.svc.ResolveComparisonPair(ctx, f.userID, &jan.ID)
	require.NoError(t, err)
	assert.Equal(t, Pair{Selected: jan.ID, Baseline: feb.ID}, pair)

	_, err = f.svc.ResolveComparisonPair(ctx, f.userID, &feb.ID)
	assert.ErrorIs(t, err, ErrSelfComparison)
	assert.NotErrorIs(t, err, ErrComparisonUnavailable)
}

func TestResolveComparisonPairOnlyBaseline(t *testing.T) {
	f := newFixture(t)
	f.addWheel(t, "февраль 24", 6)

	_, err := f.svc.ResolveComparisonPair(context.Background(), f.userID, nil)
	assert.ErrorIs(t, err, ErrComparisonUnavailable)
}

func TestCompareIsChronological(t *testing.T) {
	f := newFixture(t)
	// the February wheel is created first, January is filled in later
	feb := f.addWheel(t, "февраль 24", 8)
	jan := f.addWheel(t, "январь 24", 2)

	cmp, err := f.svc.Compare(context.Background(), f.userID, feb.ID, jan.ID)
	require.NoError(t, err)

	assert.Equal(t, jan.ID, cmp.Older.ID)
	assert.Equal(t, feb.ID, cmp.Newer.ID)
	assert.Equal(t, "Стало лучше", cmp.Analysis)
	require.True(t, cmp.Image.Ok())
	assert.Equal(t, fmt.Sprintf("comparison_%d_%d.png", feb.ID, jan.ID), cmp.Image.Value)

	assert.Equal(t, "01.01.2024", f.analyzer.dateOlder)
	assert.Equal(t, "01.02.2024", f.analyzer.dateNewer)
	assert.Equal(t, 2, f.analyzer.older[0].Value)
	assert.Equal(t, 8, f.analyzer.newer[0].Value)
}

func TestCompareGuards(t *testing.T) {
	f := newFixture(t)
	jan := f.addWheel(t, "январь 24", 2)

	_, err := f.svc.Compare(context.Background(), f.userID, jan.ID, jan.ID)
	assert.ErrorIs(t, err, ErrSelfComparison)

	other, err := f.svc.RegisterUser(context.Background(), 3003, "", "")
	require.NoError(t, err)
	foreign, err := f.store.CreateWheel(context.Background(), other.ID, "февраль 24", models.OrderedScores(allScores(1)))
	require.NoError(t, err)

	_, err = f.svc.Compare(context.Background(), f.userID, jan.ID, foreign.ID)
	assert.True(t, IsNotFound(err))
}

func TestCompareSurvivesChartFailure(t *testing.T) {
	f := newFixture(t)
	jan := f.addWheel(t, "январь 24", 2)
	feb := f.addWheel(t, "февраль 24", 8)
	f.charts.failComparison = true

	cmp, err := f.svc.Compare(context.Background(), f.userID, jan.ID, feb.ID)
	require.NoError(t, err)
	assert.False(t, cmp.Image.Ok())
	assert.Equal(t, "Стало лучше", cmp.Analysis)
}

func TestOpenWheel(t *testing.T) {
	f := newFixture(t)
	jan := f.addWheel(t, "январь 24", 2)
	feb := f.addWheel(t, "февраль 24", 8)

	opened, err := f.svc.OpenWheel(context.Background(), f.userID, jan.ID)
	require.NoError(t, err)
	assert.Equal(t, jan.ID, opened.Wheel.ID)
	assert.Len(t, opened.Scores, 8)
	require.NotNil(t, opened.CompareWith)
	assert.Equal(t, feb.ID, opened.CompareWith.ID)
	assert.False(t, opened.SelfComparison)

	opened, err = f.svc.OpenWheel(context.Background(), f.userID, feb.ID)
	require.NoError(t, err)
	assert.Nil(t, opened.CompareWith)
	assert.True(t, opened.SelfComparison)

	_, err = f.svc.OpenWheel(context.Background(), f.userID, 9999)
	assert.True(t, IsNotFound(err))
}

func TestOpenWheelUsesStoredLegacyImage(t *testing.T) {
	f := newFixture(t)
	jan := f.addWheel(t, "январь 24", 2)
	f.charts.failRender = true

	opened, err := f.svc.OpenWheel(context.Background(), f.userID, jan.ID)
	require.NoError(t, err)
	assert.False(t, opened.Image.Ok())

	f.legacy.existing[jan.ID] = "wheels/wheel_legacy.png"
	opened, err = f.svc.OpenWheel(context.Background(), f.userID, jan.ID)
	require.NoError(t, err)
	require.True(t, opened.Image.Ok())
	assert.Equal(t, "wheels/wheel_legacy.png", opened.Image.Value)
}

func TestSortByMonth(t *testing.T) {
	wheels := []*models.Wheel{
		{ID: 1, Name: "черновик"},
		{ID: 2, Name: "март 24"},
		{ID: 3, Name: "за декабрь 2023"},
		{ID: 4, Name: "???"},
		{ID: 5, Name: "январь 24"},
	}
	var ids []int64
	for _, w := range SortByMonth(wheels) {
		ids = append(ids, w.ID)
	}
	assert.Equal(t, []int64{3, 5, 2, 1, 4}, ids)
}

func TestDisplayDate(t *testing.T) {
	assert.Equal(t, "01.12.2023", DisplayDate(&models.Wheel{Name: "за декабрь 23"}))
	assert.Equal(t, "05.03.2024", DisplayDate(&models.Wheel{
		Name:      "без даты",
		CreatedAt: time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC),
	}))
}
