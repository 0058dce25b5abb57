package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// Anomaly thresholds over one IP's recent operation log.
const (
	highFrequencyOpCount   = 50
	failureRateMinAttempts = 10
	excessiveTotalAttempts = 100
	highSeverityTotal      = 200
	mediumSeverityTotal    = 50
)

// AbuseService scans recent per-IP operation logs for anomalous patterns.
// Callers sample this probabilistically rather than running it per request.
type AbuseService interface {
	DetectAnomalousPattern(ctx context.Context, ip string, windowMinutes int) (*model.AbuseReport, error)
}

type abuseService struct {
	repo   repository.OperationRepository
	logger zerolog.Logger
	now    func() time.Time
}

// NewAbuseService creates a new AbuseService with a scoped logger.
func NewAbuseService(repo repository.OperationRepository, logger zerolog.Logger) AbuseService {
	return &abuseService{
		repo:   repo,
		logger: logger.With().Str("service", "AbuseService").Logger(),
		now:    time.Now,
	}
}

// DetectAnomalousPattern aggregates the IP's log rows in the window by
// (operation type, success) and grades the findings.
func (s *abuseService) DetectAnomalousPattern(ctx context.Context, ip string, windowMinutes int) (*model.AbuseReport, error) {
	since := s.now().Add(-time.Duration(windowMinutes) * time.Minute)
	aggs, err := s.repo.AggregateIPOperations(ctx, ip, since)
	if err != nil {
		s.logger.Error().Err(err).Str("ip", ip).Msg("Failed to aggregate ip operations")
		return nil, err
	}

	total := 0
	failed := 0
	perOp := make(map[string]int)
	for _, a := range aggs {
		total += a.Count
		perOp[a.OperationType] += a.Count
		if !a.Success {
			failed += a.Count
		}
	}

	var patterns []string
	ops := make([]string, 0, len(perOp))
	for op := range perOp {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		if perOp[op] > highFrequencyOpCount {
			patterns = append(patterns, fmt.Sprintf("high-frequency %s (%d in %dm)", op, perOp[op], windowMinutes))
		}
	}
	if total > failureRateMinAttempts && failed*2 > total {
		patterns = append(patterns, fmt.Sprintf("high failure rate (%d of %d attempts failed)", failed, total))
	}
	if total > excessiveTotalAttempts {
		patterns = append(patterns, fmt.Sprintf("excessive total attempts (%d in %dm)", total, windowMinutes))
	}

	severity := model.SeverityLow
	switch {
	case len(patterns) > 2 || total > highSeverityTotal:
		severity = model.SeverityHigh
	case len(patterns) > 0 || total > mediumSeverityTotal:
		severity = model.SeverityMedium
	}

	report := &model.AbuseReport{
		IP:               ip,
		WindowMinutes:    windowMinutes,
		Patterns:         patterns,
		TotalOperations:  total,
		FailedOperations: failed,
		Severity:         severity,
	}
	if severity != model.SeverityLow {
		s.logger.Warn().Str("ip", ip).Str("severity", severity).Strs("patterns", patterns).Int("total", total).Msg("Anomalous operation pattern detected")
	}
	return report, nil
}
