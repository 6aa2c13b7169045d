package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/cbta-eval-api/internal/models"
	"github.com/noah-isme/cbta-eval-api/pkg/export"
	"github.com/noah-isme/cbta-eval-api/pkg/storage"
)

type sessionReporter interface {
	SessionReport(ctx context.Context, sessionID string, ratings map[string]int) (models.SessionReport, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService renders session reports and persists the rendered files.
type ExportService struct {
	reports   sessionReporter
	storage   fileStorage
	renderers export.Renderers
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// Export column headers.
const (
	colStudent    = "Student"
	colCompetence = "Competence"
	colHowMany    = "How Many"
	colHowOften   = "How Often"
	colSafety     = "Safety"
	colFinal      = "Final Grade"
	colObserved   = "Observed Behaviors"
	colUnobserved = "Not Observed"
)

var reportHeaders = []string{colStudent, colCompetence, colHowMany, colHowOften, colSafety, colFinal, colObserved, colUnobserved}

// Grade labels indexed by grade - 1.
var (
	howManyLabels    = [...]string{"Few / Hardly Any", "Some", "Many", "Most", "All / Almost All"}
	howOftenLabels   = [...]string{"Rarely", "Occasionally", "Regularly", "Very Often", "Always / Almost Always"}
	safetyLabels     = [...]string{"Unsafe", "Minimum Acceptable Safety Level", "Safe", "Improved Safety", "Enhanced Safety"}
	finalGradeLabels = [...]string{"INEFFECTIVE", "MINIMUM ACCEPTABLE", "ADEQUATE", "EFFECTIVE", "EXEMPLARY"}
)

// NewExportService constructs an ExportService. Nil renderers default to csv, pdf and xlsx.
func NewExportService(reports sessionReporter, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, renderers export.Renderers) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if renderers == nil {
		renderers = export.DefaultRenderers()
	}
	return &ExportService{
		reports:   reports,
		storage:   storage,
		renderers: renderers,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Generate assembles the job's session report, renders it and stores the file.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	renderer, err := s.renderers.For(string(job.Params.Format))
	if err != nil {
		return nil, err
	}
	report, err := s.reports.SessionReport(ctx, job.SessionID, job.Params.SafetyRatings)
	if err != nil {
		return nil, err
	}

	dataset := BuildReportDataset(job.SessionID, report)
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job, renderer.Extension())
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// BuildReportDataset flattens a session report into one row per student and
// competence. Students are sorted by name, competences follow the enumeration.
// The last column lists unchecked behaviors never observed in that competence.
func BuildReportDataset(sessionID string, report models.SessionReport) export.Dataset {
	names := make([]string, 0, len(report))
	for name := range report {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]map[string]string, 0)
	for _, name := range names {
		student := report[name]
		unchecked := uncheckedByCompetence(student.UncheckedObservations)
		for _, competence := range models.Competences() {
			row, ok := student.Report[competence]
			if !ok {
				continue
			}
			rows = append(rows, map[string]string{
				colStudent:    name,
				colCompetence: string(competence),
				colHowMany:    gradeLabel(row.HowMany, howManyLabels[:]),
				colHowOften:   gradeLabel(row.HowOften, howOftenLabels[:]),
				colSafety:     gradeLabel(row.SafetyScore, safetyLabels[:]),
				colFinal:      gradeLabel(row.FinalGrade, finalGradeLabels[:]),
				colObserved:   observedSummary(row.ObservedBehaviors),
				colUnobserved: unobservedSummary(unchecked[competence], row.ObservedBehaviors),
			})
		}
	}
	return export.Dataset{
		Title:   fmt.Sprintf("Competence Report %s", sessionID),
		Headers: reportHeaders,
		Rows:    rows,
	}
}

func gradeLabel(grade int, labels []string) string {
	if grade < 1 || grade > len(labels) {
		return strconv.Itoa(grade)
	}
	return fmt.Sprintf("%d - %s", grade, labels[grade-1])
}

func observedSummary(observed []models.ObservedBehavior) string {
	parts := make([]string, 0, len(observed))
	for _, ob := range observed {
		parts = append(parts, behaviorLabel(ob.ObCode, ob.Text))
	}
	return strings.Join(parts, ", ")
}

func uncheckedByCompetence(unchecked []models.UncheckedObservation) map[models.Competence][]models.UncheckedObservation {
	out := make(map[models.Competence][]models.UncheckedObservation)
	for _, obs := range unchecked {
		out[obs.Competence] = append(out[obs.Competence], obs)
	}
	return out
}

// unobservedSummary lists unchecked behaviors once each, skipping any that
// were checked in another exercise.
func unobservedSummary(unchecked []models.UncheckedObservation, observed []models.ObservedBehavior) string {
	seen := make(map[string]struct{}, len(observed)+len(unchecked))
	for _, ob := range observed {
		seen[behaviorLabel(ob.ObCode, ob.Text)] = struct{}{}
	}
	parts := make([]string, 0, len(unchecked))
	for _, obs := range unchecked {
		label := behaviorLabel(obs.ObCode, obs.Text)
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		parts = append(parts, label)
	}
	return strings.Join(parts, ", ")
}

func behaviorLabel(code *string, text string) string {
	if code != nil && *code != "" {
		return *code
	}
	return text
}

func (s *ExportService) buildFilename(job *models.ReportJob, ext string) string {
	timestamp := s.now().Format("20060102_150405")
	return fmt.Sprintf("competence_%s_%s.%s", sanitizeFilename(job.SessionID), timestamp, ext)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
