package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cbta-eval-api/internal/catalog"
	"github.com/noah-isme/cbta-eval-api/internal/grading"
	"github.com/noah-isme/cbta-eval-api/internal/models"
	appErrors "github.com/noah-isme/cbta-eval-api/pkg/errors"
)

type graphStub struct {
	graph  *models.SessionGraph
	err    error
	calls  int
	onLoad func()
}

func (g *graphStub) Graph(ctx context.Context, id string) (*models.SessionGraph, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	graph := g.graph
	if hook := g.onLoad; hook != nil {
		g.onLoad = nil
		hook()
	}
	return graph, nil
}

type memoryReportCache struct {
	entries     map[string][]byte
	ttls        map[string]time.Duration
	generations map[string]int64
	genErr      error
}

func newMemoryReportCache() *memoryReportCache {
	return &memoryReportCache{entries: map[string][]byte{}, ttls: map[string]time.Duration{}, generations: map[string]int64{}}
}

func (m *memoryReportCache) Generation(ctx context.Context, key string) (int64, error) {
	if m.genErr != nil {
		return 0, m.genErr
	}
	return m.generations[key], nil
}

func (m *memoryReportCache) Bump(ctx context.Context, key string) error {
	m.generations[key]++
	return nil
}

func (m *memoryReportCache) Invalidate(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *memoryReportCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memoryReportCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	m.ttls[key] = ttl
	return nil
}

func observation(student string, c models.Competence, text string, checked bool) models.Observation {
	code := "OB " + text
	return models.Observation{StudentName: student, Competence: c, ObCode: &code, Text: text, IsChecked: checked}
}

func evaluationGraph() *models.SessionGraph {
	return &models.SessionGraph{
		Session: models.Session{ID: "s-1", Students: []models.Student{{Name: "Ana"}, {Name: "Ben"}}},
		Exercises: []models.Exercise{
			{
				ID: "e-1", StudentName: "Ana", Competences: []models.Competence{models.CompetenceKNO},
				Observations: []models.Observation{
					observation("Ana", models.CompetenceKNO, "1", true),
					observation("Ana", models.CompetenceKNO, "2", true),
				},
			},
		},
	}
}

func newEvaluationServiceForTest(t *testing.T, graphs sessionGraphLoader, cache reportCache) (*EvaluationService, *MetricsService) {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	engine, err := grading.NewEngine(cat, grading.Policy{})
	require.NoError(t, err)
	metrics := NewMetricsService()
	return NewEvaluationService(graphs, engine, cache, metrics, EvaluationConfig{DefaultSafetyRating: 5, CacheTTL: time.Minute}, nil), metrics
}

func TestEvaluationServiceSessionReport(t *testing.T) {
	graphs := &graphStub{graph: evaluationGraph()}
	svc, _ := newEvaluationServiceForTest(t, graphs, nil)

	report, err := svc.SessionReport(context.Background(), "s-1", map[string]int{"Ana": 3, "Ghost": 1})
	require.NoError(t, err)
	require.Len(t, report, 2)

	row := report["Ana"].Report[models.CompetenceKNO]
	assert.Equal(t, 5, row.HowMany)
	assert.Equal(t, 5, row.HowOften)
	assert.Equal(t, 3, row.SafetyScore)
	assert.Equal(t, 3, row.FinalGrade)
	assert.Len(t, row.ObservedBehaviors, 2)

	assert.Empty(t, report["Ben"].Report)
	assert.NotNil(t, report["Ben"].UncheckedObservations)
}

func TestEvaluationServiceRejectsRatingBeforeLoading(t *testing.T) {
	graphs := &graphStub{graph: evaluationGraph()}
	svc, metrics := newEvaluationServiceForTest(t, graphs, nil)

	for _, rating := range []int{0, 6, -1} {
		report, err := svc.SessionReport(context.Background(), "s-1", map[string]int{"Ana": rating})
		assert.ErrorIs(t, err, appErrors.ErrOutOfRangeRating)
		assert.Nil(t, report)
	}
	assert.Zero(t, graphs.calls)
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.reportsTotal.WithLabelValues(ReportOutcomeRejected)))
}

func TestEvaluationServiceMisconfiguredDefault(t *testing.T) {
	svc := NewEvaluationService(&graphStub{}, nil, nil, nil, EvaluationConfig{DefaultSafetyRating: 9}, nil)
	_, err := svc.SessionReport(context.Background(), "s-1", nil)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestEvaluationServicePropagatesNotFound(t *testing.T) {
	graphs := &graphStub{err: appErrors.Clone(appErrors.ErrNotFound, "session not found")}
	svc, _ := newEvaluationServiceForTest(t, graphs, nil)
	_, err := svc.SessionReport(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestEvaluationServiceUnknownCompetenceInGraph(t *testing.T) {
	graph := evaluationGraph()
	graph.Exercises[0].Observations = append(graph.Exercises[0].Observations, observation("Ana", models.CompetenceWLM, "x", true))
	svc, _ := newEvaluationServiceForTest(t, &graphStub{graph: graph}, nil)

	_, err := svc.SessionReport(context.Background(), "s-1", nil)
	assert.ErrorIs(t, err, appErrors.ErrUnknownCompetence)
}

func TestEvaluationServiceCachesByRatingFingerprint(t *testing.T) {
	graphs := &graphStub{graph: evaluationGraph()}
	cache := newMemoryReportCache()
	svc, _ := newEvaluationServiceForTest(t, graphs, cache)

	first, err := svc.SessionReport(context.Background(), "s-1", map[string]int{"Ana": 2})
	require.NoError(t, err)
	second, hit, err := svc.SessionReportCached(context.Background(), "s-1", map[string]int{"Ana": 2})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, graphs.calls)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.JSONEq(t, string(a), string(b))

	_, err = svc.SessionReport(context.Background(), "s-1", map[string]int{"Ana": 4})
	require.NoError(t, err)
	assert.Equal(t, 2, graphs.calls)
	assert.Len(t, cache.entries, 2)
	for _, ttl := range cache.ttls {
		assert.Equal(t, time.Minute, ttl)
	}
}

func TestSessionReportCacheKey(t *testing.T) {
	a := sessionReportCacheKey("s-1", 0, map[string]int{"Ana": 2, "Ben": 3}, 5)
	b := sessionReportCacheKey("s-1", 0, map[string]int{"Ben": 3, "Ana": 2}, 5)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, sessionReportCacheKey("s-1", 0, map[string]int{"Ana": 2, "Ben": 3}, 4))
	assert.NotEqual(t, a, sessionReportCacheKey("s-2", 0, map[string]int{"Ana": 2, "Ben": 3}, 5))
	assert.NotEqual(t, a, sessionReportCacheKey("s-1", 1, map[string]int{"Ana": 2, "Ben": 3}, 5))
	assert.True(t, strings.HasPrefix(a, "report:session:s-1:g0:"))
	assert.Equal(t, "report:session:s-1:*", sessionReportCachePattern("s-1"))
	assert.Equal(t, "report:generation:s-1", sessionReportGenerationKey("s-1"))
	assert.False(t, strings.HasPrefix(sessionReportGenerationKey("s-1"), strings.TrimSuffix(sessionReportCachePattern("s-1"), "*")))
}

func TestEvaluationServiceSkipsReportInvalidatedDuringLoad(t *testing.T) {
	ctx := context.Background()
	cache := newMemoryReportCache()
	graphs := &graphStub{graph: evaluationGraph()}
	graphs.onLoad = func() {
		updated := evaluationGraph()
		updated.Exercises[0].Observations[1].IsChecked = false
		graphs.graph = updated
		require.NoError(t, cache.Bump(ctx, sessionReportGenerationKey("s-1")))
		require.NoError(t, cache.Invalidate(ctx, sessionReportCachePattern("s-1")))
	}
	svc, _ := newEvaluationServiceForTest(t, graphs, cache)

	stale, err := svc.SessionReport(ctx, "s-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, stale["Ana"].Report[models.CompetenceKNO].HowMany)

	fresh, hit, err := svc.SessionReportCached(ctx, "s-1", nil)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, graphs.calls)
	assert.Equal(t, 2, fresh["Ana"].Report[models.CompetenceKNO].HowMany)

	_, hit, err = svc.SessionReportCached(ctx, "s-1", nil)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 2, graphs.calls)
}

func TestEvaluationServiceBypassesCacheWithoutGeneration(t *testing.T) {
	cache := newMemoryReportCache()
	cache.genErr = errors.New("redis down")
	graphs := &graphStub{graph: evaluationGraph()}
	svc, _ := newEvaluationServiceForTest(t, graphs, cache)

	for i := 0; i < 2; i++ {
		_, hit, err := svc.SessionReportCached(context.Background(), "s-1", nil)
		require.NoError(t, err)
		assert.False(t, hit)
	}
	assert.Equal(t, 2, graphs.calls)
	assert.Empty(t, cache.entries)
}

func TestMapGradingErrorDefault(t *testing.T) {
	assert.ErrorIs(t, mapGradingError(errors.New("boom")), appErrors.ErrInternal)
}

func TestEvaluationServiceGradesAgainstFullFPAChecklist(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	behaviors, err := cat.BehaviorsFor(models.CompetenceFPA)
	require.NoError(t, err)

	exercise := models.Exercise{ID: "e-1", StudentName: "Ana", Competences: []models.Competence{models.CompetenceFPA}}
	for i, b := range behaviors {
		obs := models.Observation{StudentName: "Ana", Competence: models.CompetenceFPA, Text: b.Text, IsChecked: i < 4}
		if b.Code != "" {
			code := b.Code
			obs.ObCode = &code
		}
		exercise.Observations = append(exercise.Observations, obs)
	}
	graph := &models.SessionGraph{
		Session:   models.Session{ID: "s-1", Students: []models.Student{{Name: "Ana"}}},
		Exercises: []models.Exercise{exercise},
	}
	svc, _ := newEvaluationServiceForTest(t, &graphStub{graph: graph}, nil)

	report, err := svc.SessionReport(context.Background(), "s-1", nil)
	require.NoError(t, err)
	row := report["Ana"].Report[models.CompetenceFPA]
	assert.Equal(t, 2, row.HowMany)
	require.Len(t, row.ObservedBehaviors, 4)
	assert.Nil(t, row.ObservedBehaviors[1].ObCode)
	assert.Nil(t, row.ObservedBehaviors[2].ObCode)
}
