package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-progression-api/internal/dto"
	"github.com/noah-isme/gema-progression-api/internal/models"
	"github.com/noah-isme/gema-progression-api/internal/observability"
	"github.com/noah-isme/gema-progression-api/internal/repository"
)

// PathReportService joins a path's node list against one learner's progress
// to produce the counts the reporting API exposes verbatim. Reports are
// cached per learner; a version key bumped on every progression write keeps
// stale entries unreachable.
type PathReportService interface {
	Report(ctx context.Context, pathID, userID string) (dto.PathProgressReport, error)
	InvalidateUser(ctx context.Context, userID string)
}

type pathReportService struct {
	paths    repository.PathRepository
	nodes    repository.NodeRepository
	progress repository.ProgressRepository
	cache    *redis.Client
	ttl      time.Duration
	logger   zerolog.Logger
}

// NewPathReportService constructs the report service. cache may be nil, in
// which case every report is computed from the stores.
func NewPathReportService(paths repository.PathRepository, nodes repository.NodeRepository, progress repository.ProgressRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) PathReportService {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &pathReportService{
		paths:    paths,
		nodes:    nodes,
		progress: progress,
		cache:    cache,
		ttl:      ttl,
		logger:   logger.With().Str("component", "path_report_service").Logger(),
	}
}

func (s *pathReportService) Report(ctx context.Context, pathID, userID string) (dto.PathProgressReport, error) {
	if cached, ok := s.fetchCache(ctx, pathID, userID); ok {
		cached.CacheHit = true
		observability.ReportRequests().WithLabelValues("hit").Inc()
		return cached, nil
	}

	path, err := s.paths.GetByPathID(ctx, pathID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		observability.ReportRequests().WithLabelValues("error").Inc()
		return dto.PathProgressReport{}, ErrPathNotFound
	}
	if err != nil {
		observability.ReportRequests().WithLabelValues("error").Inc()
		return dto.PathProgressReport{}, err
	}

	// Ids that fail to resolve are dropped while the original sequence is
	// preserved; the report covers what actually renders.
	resolved, err := s.nodes.GetByNodeIDs(ctx, path.NodeIDs)
	if err != nil {
		observability.ReportRequests().WithLabelValues("error").Inc()
		return dto.PathProgressReport{}, fmt.Errorf("resolve path nodes: %w", err)
	}
	byID := make(map[string]models.Node, len(resolved))
	for _, node := range resolved {
		byID[node.NodeID] = node
	}
	ordered := make([]models.Node, 0, len(path.NodeIDs))
	for _, id := range path.NodeIDs {
		if node, ok := byID[id]; ok {
			ordered = append(ordered, node)
		}
	}

	nodeIDs := make([]string, 0, len(ordered))
	for _, node := range ordered {
		nodeIDs = append(nodeIDs, node.NodeID)
	}
	records, err := s.progress.ListForNodes(ctx, userID, nodeIDs)
	if err != nil {
		observability.ReportRequests().WithLabelValues("error").Inc()
		return dto.PathProgressReport{}, fmt.Errorf("list progress: %w", err)
	}
	recordByNode := make(map[string]models.Progress, len(records))
	for _, record := range records {
		recordByNode[record.NodeID] = record
	}

	report := dto.PathProgressReport{
		PathID:     pathID,
		UserID:     userID,
		TotalNodes: len(ordered),
		StarsMax:   len(ordered) * 3,
	}

	for _, node := range ordered {
		report.XPAvailable += node.XPReward
		record, touched := recordByNode[node.NodeID]
		if !touched {
			continue
		}
		switch record.Status {
		case models.StatusCompleted, models.StatusMastered:
			report.CompletedNodes++
			report.XPEarned += node.XPReward
		case models.StatusCurrent, models.StatusInProgress:
			report.InProgressNodes++
		}
		report.StarsEarned += record.Stars
	}

	report.LockedNodes = report.TotalNodes - report.CompletedNodes - report.InProgressNodes
	if report.LockedNodes < 0 {
		observability.ReportRequests().WithLabelValues("error").Inc()
		return dto.PathProgressReport{}, fmt.Errorf("%w: negative locked node count", ErrInvariantViolation)
	}
	if report.TotalNodes > 0 {
		report.PercentComplete = math.Round(float64(report.CompletedNodes)/float64(report.TotalNodes)*1000) / 10
	}

	s.writeCache(ctx, pathID, userID, report)
	observability.ReportRequests().WithLabelValues("miss").Inc()
	return report, nil
}

// InvalidateUser bumps the learner's cache version so every cached report for
// them misses on the next read.
func (s *pathReportService) InvalidateUser(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, s.versionKey(userID)).Err(); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to bump report cache version")
	}
}

func (s *pathReportService) fetchCache(ctx context.Context, pathID, userID string) (dto.PathProgressReport, bool) {
	if s.cache == nil {
		return dto.PathProgressReport{}, false
	}
	payload, err := s.cache.Get(ctx, s.reportKey(ctx, pathID, userID)).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read report cache")
		}
		return dto.PathProgressReport{}, false
	}

	var report dto.PathProgressReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		s.logger.Warn().Err(err).Msg("failed to decode report cache")
		return dto.PathProgressReport{}, false
	}
	return report, true
}

func (s *pathReportService) writeCache(ctx context.Context, pathID, userID string, report dto.PathProgressReport) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode report cache")
		return
	}
	if err := s.cache.Set(ctx, s.reportKey(ctx, pathID, userID), payload, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store report cache")
	}
}

func (s *pathReportService) reportKey(ctx context.Context, pathID, userID string) string {
	// An absent version key must read as a version INCR has never produced,
	// otherwise the first bump lands on the same value and misses nothing.
	version := "0"
	if value, err := s.cache.Get(ctx, s.versionKey(userID)).Result(); err == nil && value != "" {
		version = value
	}
	return fmt.Sprintf("pathreport:v1:%s:%s:%s", userID, version, pathID)
}

func (s *pathReportService) versionKey(userID string) string {
	return fmt.Sprintf("pathreport:ver:%s", userID)
}
