package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cbta-eval-api/internal/models"
)

func TestDiffReports(t *testing.T) {
	baseline := models.SessionReport{
		"Ana": {Report: map[models.Competence]models.CompetenceReportRow{
			models.CompetenceKNO: {HowMany: 5, HowOften: 5, SafetyScore: 5, FinalGrade: 5},
		}},
	}
	candidate := models.SessionReport{
		"Ana": {Report: map[models.Competence]models.CompetenceReportRow{
			models.CompetenceKNO: {HowMany: 4, HowOften: 5, SafetyScore: 5, FinalGrade: 4},
		}},
		"Ben": {Report: map[models.Competence]models.CompetenceReportRow{}},
	}

	diffs := diffReports(baseline, candidate)
	require.Len(t, diffs, 2)
	assert.Equal(t, gradeDiff{Student: "Ana", Competence: models.CompetenceKNO, Field: "how_many", Baseline: 5, Candidate: 4}, diffs[0])
	assert.Equal(t, "final_grade", diffs[1].Field)
	assert.Empty(t, diffReports(baseline, baseline))
}

func TestLoadTargets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targets:\n  - session_id: s-1\n    safety_ratings:\n      Ana: 3\n"), 0o600))

	targets, err := loadTargets(path)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, 3, targets[0].SafetyRatings["Ana"])

	require.NoError(t, os.WriteFile(path, []byte("targets:\n  - critical: true\n"), 0o600))
	_, err = loadTargets(path)
	assert.Error(t, err)
}

func TestCompareTarget(t *testing.T) {
	serve := func(grade string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/sessions/s-1/report", r.URL.Path)
			assert.Equal(t, `{"Ana":2}`, r.URL.Query().Get("safety_scores"))
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"data":{"Ana":{"report":{"KNO":{"how_many":5,"how_often":5,"safety_score":2,"final_grade":` + grade + `}}}},"meta":{"processing_time_ms":3}}`))
		}))
	}
	baseline, candidate := serve("2"), serve("1")
	defer baseline.Close()
	defer candidate.Close()

	tgt := target{SessionID: "s-1", SafetyRatings: map[string]int{"Ana": 2}}
	comp := compareTarget(http.DefaultClient, baseline.URL+"/api/v1", candidate.URL+"/api/v1", "tok", tgt)
	require.NoError(t, comp.Error)
	assert.Equal(t, http.StatusOK, comp.BaselineStatus)
	require.Len(t, comp.Diffs, 1)
	assert.Equal(t, "final_grade", comp.Diffs[0].Field)
	assert.True(t, comp.differs())

	same := compareTarget(http.DefaultClient, baseline.URL+"/api/v1", baseline.URL+"/api/v1", "tok", tgt)
	require.NoError(t, same.Error)
	assert.False(t, same.differs())
}
