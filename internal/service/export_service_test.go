package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/cbta-eval-api/internal/models"
	"github.com/noah-isme/cbta-eval-api/pkg/storage"
)

type reporterStub struct {
	report models.SessionReport
	err    error
	calls  int
	got    map[string]int
}

func (r *reporterStub) SessionReport(ctx context.Context, sessionID string, ratings map[string]int) (models.SessionReport, error) {
	r.calls++
	r.got = ratings
	if r.err != nil {
		return nil, r.err
	}
	return r.report, nil
}

func strPtr(s string) *string { return &s }

func sampleSessionReport() models.SessionReport {
	return models.SessionReport{
		"Zed": {
			Report:                map[models.Competence]models.CompetenceReportRow{},
			UncheckedObservations: []models.UncheckedObservation{},
		},
		"Ana": {
			Report: map[models.Competence]models.CompetenceReportRow{
				models.CompetenceWLM: {HowMany: 1, HowOften: 1, SafetyScore: 5, FinalGrade: 1, ObservedBehaviors: []models.ObservedBehavior{}},
				models.CompetenceKNO: {
					HowMany: 5, HowOften: 5, SafetyScore: 3, FinalGrade: 3,
					ObservedBehaviors: []models.ObservedBehavior{
						{ObCode: strPtr("OB 0.1"), Text: "Demonstrates practical knowledge"},
						{Text: "free text"},
					},
				},
			},
			UncheckedObservations: []models.UncheckedObservation{
				{ObCode: strPtr("OB 0.2"), Text: "Demonstrates adequate knowledge", Competence: models.CompetenceKNO},
				{ObCode: strPtr("OB 0.1"), Text: "Demonstrates practical knowledge", Competence: models.CompetenceKNO},
				{ObCode: strPtr("OB 0.2"), Text: "Demonstrates adequate knowledge", Competence: models.CompetenceKNO},
				{Text: "Plans tasks", Competence: models.CompetenceWLM},
				{ObCode: strPtr("OB 8.2"), Text: "Delegates tasks", Competence: models.CompetenceWLM},
			},
		},
	}
}

func newExportServiceForTest(t *testing.T, reporter sessionReporter) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	return NewExportService(reporter, store, signer, cfg, zap.NewNop(), nil), store
}

func TestBuildReportDatasetOrdering(t *testing.T) {
	dataset := BuildReportDataset("s-1", sampleSessionReport())

	require.Len(t, dataset.Rows, 2)
	assert.Equal(t, "Competence Report s-1", dataset.Title)
	assert.Equal(t, reportHeaders, dataset.Headers)

	first := dataset.Rows[0]
	assert.Equal(t, "Ana", first[colStudent])
	assert.Equal(t, "KNO", first[colCompetence])
	assert.Equal(t, "5 - All / Almost All", first[colHowMany])
	assert.Equal(t, "5 - Always / Almost Always", first[colHowOften])
	assert.Equal(t, "3 - Safe", first[colSafety])
	assert.Equal(t, "3 - ADEQUATE", first[colFinal])
	assert.Equal(t, "OB 0.1, free text", first[colObserved])
	assert.Equal(t, "OB 0.2", first[colUnobserved])

	second := dataset.Rows[1]
	assert.Equal(t, "WLM", second[colCompetence])
	assert.Equal(t, "1 - Few / Hardly Any", second[colHowMany])
	assert.Equal(t, "1 - Rarely", second[colHowOften])
	assert.Equal(t, "1 - INEFFECTIVE", second[colFinal])
	assert.Equal(t, "", second[colObserved])
	assert.Equal(t, "Plans tasks, OB 8.2", second[colUnobserved])
}

func TestBuildReportDatasetListsUnobservedBehaviors(t *testing.T) {
	report := models.SessionReport{
		"Ana": {
			Report: map[models.Competence]models.CompetenceReportRow{
				models.CompetenceFPA: {HowMany: 1, HowOften: 1, SafetyScore: 5, FinalGrade: 1, ObservedBehaviors: []models.ObservedBehavior{}},
			},
			UncheckedObservations: []models.UncheckedObservation{
				{ObCode: strPtr("OB 3.1"), Text: "Uses appropriate flight management", Competence: models.CompetenceFPA},
				{Text: "Contains the aircraft within the normal flight envelope", Competence: models.CompetenceFPA},
				{ObCode: strPtr("OB 8.1"), Text: "Exercises self-control", Competence: models.CompetenceWLM},
			},
		},
	}
	dataset := BuildReportDataset("s-1", report)
	require.Len(t, dataset.Rows, 1)
	assert.Equal(t, "OB 3.1, Contains the aircraft within the normal flight envelope", dataset.Rows[0][colUnobserved])
	assert.Equal(t, colUnobserved, dataset.Headers[len(dataset.Headers)-1])
}

func TestGradeLabelOutOfTable(t *testing.T) {
	assert.Equal(t, "0", gradeLabel(0, howManyLabels[:]))
	assert.Equal(t, "6", gradeLabel(6, howManyLabels[:]))
	assert.Equal(t, "2 - Minimum Acceptable Safety Level", gradeLabel(2, safetyLabels[:]))
}

func TestExportServiceGenerateFormats(t *testing.T) {
	for _, format := range []models.ReportFormat{models.ReportFormatCSV, models.ReportFormatPDF, models.ReportFormatXLSX} {
		t.Run(string(format), func(t *testing.T) {
			reporter := &reporterStub{report: sampleSessionReport()}
			svc, store := newExportServiceForTest(t, reporter)
			job := &models.ReportJob{
				ID:        "job-" + string(format),
				SessionID: "session-1",
				Params:    models.ReportJobParams{Format: format, SafetyRatings: map[string]int{"Ana": 3}},
			}
			result, err := svc.Generate(context.Background(), job)
			require.NoError(t, err)
			assert.Equal(t, format, result.Format)
			assert.True(t, strings.HasSuffix(result.RelativePath, "."+string(format)))
			assert.Equal(t, "/api/v1/export/"+result.Token, result.URL)
			assert.Equal(t, map[string]int{"Ana": 3}, reporter.got)

			file, err := store.Open(result.RelativePath)
			require.NoError(t, err)
			defer file.Close()
			info, err := file.Stat()
			require.NoError(t, err)
			assert.Greater(t, info.Size(), int64(0))

			jobID, relPath, _, err := svc.ParseToken(result.Token, false)
			require.NoError(t, err)
			assert.Equal(t, job.ID, jobID)
			assert.Equal(t, result.RelativePath, relPath)
		})
	}
}

func TestExportServiceGenerateUnsupportedFormat(t *testing.T) {
	reporter := &reporterStub{report: sampleSessionReport()}
	svc, _ := newExportServiceForTest(t, reporter)
	_, err := svc.Generate(context.Background(), &models.ReportJob{ID: "j", SessionID: "s", Params: models.ReportJobParams{Format: "docx"}})
	require.Error(t, err)
	assert.Zero(t, reporter.calls)
}

func TestExportServiceGenerateReportError(t *testing.T) {
	reporter := &reporterStub{err: errors.New("boom")}
	svc, _ := newExportServiceForTest(t, reporter)
	_, err := svc.Generate(context.Background(), &models.ReportJob{ID: "j", SessionID: "s", Params: models.ReportJobParams{Format: models.ReportFormatCSV}})
	require.EqualError(t, err, "boom")
}
