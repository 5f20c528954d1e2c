package audit

import (
	"context"
	"time"
)

// TimelineRepo reads timeline windows from storage.
type TimelineRepo interface {
	TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error)
}

// Service assembles paged activity timelines.
type Service struct {
	repo TimelineRepo
}

// NewService constructs a Service.
func NewService(repo TimelineRepo) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of activity. It fetches pageSize+1 rows to learn
// whether a next page exists without a separate count query.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	filters = normalize(filters)
	limit := filters.PageSize + 1
	offset := (filters.Page - 1) * filters.PageSize

	rows, err := s.repo.TimelineWindow(ctx, filters, limit, offset)
	if err != nil {
		return Result{}, err
	}

	hasNext := len(rows) > filters.PageSize
	if hasNext {
		rows = rows[:filters.PageSize]
	}
	return Result{
		Rows: rows,
		Paging: PagingInfo{
			Page:     filters.Page,
			PageSize: filters.PageSize,
			HasNext:  hasNext,
		},
	}, nil
}

func normalize(filters TimelineFilters) TimelineFilters {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}
	if filters.To.IsZero() {
		filters.To = time.Now().UTC()
	}
	if filters.From.IsZero() {
		filters.From = filters.To.Add(-7 * 24 * time.Hour)
	}
	return filters
}
