package review

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/customs-flow/internal/model"
)

// FlaggedPage is one page of the review queue.
type FlaggedPage struct {
	Items  []model.FlaggedLine
	Total  int
	Limit  int
	Offset int
}

// HistoryPage is one page of the audit trail.
type HistoryPage struct {
	Items  []model.ClassificationHistory
	Total  int
	Limit  int
	Offset int
}

// GetFlaggedItems lists lines awaiting review.
func (s *Service) GetFlaggedItems(ctx context.Context, filter model.FlaggedFilter) (*FlaggedPage, error) {
	filter.Page = filter.Page.Normalize()

	items, total, err := s.storage.GetFlaggedLines(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list flagged items: %w", err)
	}
	return &FlaggedPage{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// GetFlaggedItemByID returns a flagged line. A line that exists but is not
// flagged is reported as ErrNotFound.
func (s *Service) GetFlaggedItemByID(ctx context.Context, lineID string) (*model.FlaggedLine, error) {
	line, err := s.storage.GetFlaggedLine(ctx, lineID)
	if err != nil {
		return nil, fmt.Errorf("failed to get flagged item: %w", err)
	}
	return line, nil
}

// GetReviewStats summarizes the queue. ReviewedToday counts reviews since
// midnight UTC.
func (s *Service) GetReviewStats(ctx context.Context) (*model.ReviewStats, error) {
	since := s.now().UTC().Truncate(24 * time.Hour)

	stats, err := s.storage.GetReviewStats(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get review stats: %w", err)
	}
	return stats, nil
}

// GetReviewHistory lists audit rows, optionally filtered by line or user.
func (s *Service) GetReviewHistory(ctx context.Context, filter model.HistoryFilter) (*HistoryPage, error) {
	filter.Page = filter.Page.Normalize()

	items, total, err := s.storage.GetClassificationHistory(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get review history: %w", err)
	}
	return &HistoryPage{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}
