package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/cbta-eval-api/internal/catalog"
	"github.com/noah-isme/cbta-eval-api/internal/grading"
	"github.com/noah-isme/cbta-eval-api/internal/models"
	appErrors "github.com/noah-isme/cbta-eval-api/pkg/errors"
)

const (
	reportCachePrefix      = "report:session:"
	reportGenerationPrefix = "report:generation:"
)

type sessionGraphLoader interface {
	Graph(ctx context.Context, id string) (*models.SessionGraph, error)
}

type sessionReportEngine interface {
	AssembleSession(graph models.SessionGraph, ratings map[string]int, defaultRating int) (models.SessionReport, error)
}

type reportCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Generation(ctx context.Context, key string) (int64, error)
}

// EvaluationConfig tunes report assembly.
type EvaluationConfig struct {
	DefaultSafetyRating int
	CacheTTL            time.Duration
}

// EvaluationService produces consolidated competence reports for sessions.
type EvaluationService struct {
	graphs  sessionGraphLoader
	engine  sessionReportEngine
	cache   reportCache
	metrics *MetricsService
	logger  *zap.Logger
	cfg     EvaluationConfig
}

// NewEvaluationService constructs EvaluationService. cache and metrics may be nil.
func NewEvaluationService(graphs sessionGraphLoader, engine sessionReportEngine, cache reportCache, metrics *MetricsService, cfg EvaluationConfig, logger *zap.Logger) *EvaluationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultSafetyRating == 0 {
		cfg.DefaultSafetyRating = grading.MaxGrade
	}
	return &EvaluationService{graphs: graphs, engine: engine, cache: cache, metrics: metrics, logger: logger, cfg: cfg}
}

// ValidateRatings rejects any rating outside 1..5 with OUT_OF_RANGE_RATING.
func (s *EvaluationService) ValidateRatings(ratings map[string]int) error {
	if err := grading.ValidateRatings(ratings); err != nil {
		return appErrors.Wrap(err, appErrors.ErrOutOfRangeRating.Code, appErrors.ErrOutOfRangeRating.Status, err.Error())
	}
	if err := grading.ValidateRating(s.cfg.DefaultSafetyRating); err != nil {
		return appErrors.Internal(err, "default safety rating misconfigured")
	}
	return nil
}

// SessionReport returns a report for every student of the session. Ratings are
// validated before the session is loaded so a bad rating never produces a
// partial report.
func (s *EvaluationService) SessionReport(ctx context.Context, sessionID string, ratings map[string]int) (models.SessionReport, error) {
	report, _, err := s.SessionReportCached(ctx, sessionID, ratings)
	return report, err
}

// SessionReportCached behaves like SessionReport and also reports whether the
// result was served from cache.
func (s *EvaluationService) SessionReportCached(ctx context.Context, sessionID string, ratings map[string]int) (models.SessionReport, bool, error) {
	start := time.Now()
	report, hit, err := s.sessionReport(ctx, sessionID, ratings)
	outcome := ReportOutcomeSuccess
	if err != nil {
		outcome = ReportOutcomeError
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Status < 500 {
			outcome = ReportOutcomeRejected
		}
	}
	s.metrics.ObserveReport(outcome, time.Since(start))
	return report, hit, err
}

func (s *EvaluationService) sessionReport(ctx context.Context, sessionID string, ratings map[string]int) (models.SessionReport, bool, error) {
	if err := s.ValidateRatings(ratings); err != nil {
		return nil, false, err
	}

	// The generation is read before loading. A report assembled from data that
	// is invalidated mid-flight lands under a generation no reader asks for.
	cache := s.cache
	var key string
	if cache != nil {
		gen, err := cache.Generation(ctx, sessionReportGenerationKey(sessionID))
		if err != nil {
			s.logger.Warn("report cache generation unavailable", zap.String("session_id", sessionID), zap.Error(err))
			cache = nil
		}
		key = sessionReportCacheKey(sessionID, gen, ratings, s.cfg.DefaultSafetyRating)
	}
	if cache != nil {
		var cached models.SessionReport
		if hit, err := cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, true, nil
		}
	}

	loadStart := time.Now()
	graph, err := s.graphs.Graph(ctx, sessionID)
	s.metrics.ObserveDBQuery("session_graph", time.Since(loadStart))
	if err != nil {
		return nil, false, err
	}
	report, err := s.engine.AssembleSession(*graph, ratings, s.cfg.DefaultSafetyRating)
	if err != nil {
		return nil, false, mapGradingError(err)
	}

	if cache != nil {
		if err := cache.Set(ctx, key, report, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("report cache write failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return report, false, nil
}

func mapGradingError(err error) error {
	switch {
	case errors.Is(err, catalog.ErrUnknownCompetence):
		return appErrors.Wrap(err, appErrors.ErrUnknownCompetence.Code, appErrors.ErrUnknownCompetence.Status, err.Error())
	case errors.Is(err, grading.ErrOutOfRangeRating):
		return appErrors.Wrap(err, appErrors.ErrOutOfRangeRating.Code, appErrors.ErrOutOfRangeRating.Status, err.Error())
	default:
		return appErrors.Internal(err, "failed to assemble report")
	}
}

func sessionReportCachePattern(sessionID string) string {
	return reportCachePrefix + sessionID + ":*"
}

func sessionReportGenerationKey(sessionID string) string {
	return reportGenerationPrefix + sessionID
}

// sessionReportCacheKey fingerprints the effective rating set so equal inputs
// share an entry within one cache generation.
func sessionReportCacheKey(sessionID string, generation int64, ratings map[string]int, defaultRating int) string {
	names := make([]string, 0, len(ratings))
	for name := range ratings {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	fmt.Fprintf(&b, "default=%d", defaultRating)
	for _, name := range names {
		fmt.Fprintf(&b, "\x00%s=%d", name, ratings[name])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s%s:g%d:%s", reportCachePrefix, sessionID, generation, hex.EncodeToString(sum[:8]))
}
