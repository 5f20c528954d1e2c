package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryTimeline struct {
	rows []TimelineRow

	lastFilters TimelineFilters
	lastLimit   int
	lastOffset  int
}

func (m *memoryTimeline) TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	m.lastFilters = filters
	m.lastLimit = limit
	m.lastOffset = offset

	var out []TimelineRow
	for _, row := range m.rows {
		if filters.ActorID != 0 && row.ActorID != filters.ActorID {
			continue
		}
		if filters.Entity != "" && row.Entity != filters.Entity {
			continue
		}
		out = append(out, row)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func makeRows(n int) []TimelineRow {
	rows := make([]TimelineRow, n)
	at := time.Now()
	for i := range rows {
		rows[i] = TimelineRow{At: at.Add(-time.Duration(i) * time.Minute), ActorID: 1, Action: "role.update", Entity: "role"}
	}
	return rows
}

func TestTimelineOverfetchDetectsNextPage(t *testing.T) {
	repo := &memoryTimeline{rows: makeRows(25)}
	svc := NewService(repo)
	ctx := context.Background()

	result, err := svc.Timeline(ctx, TimelineFilters{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, result.Rows, 20)
	require.True(t, result.Paging.HasNext)
	// One extra row is fetched to detect the next page.
	require.Equal(t, 21, repo.lastLimit)
	require.Equal(t, 0, repo.lastOffset)

	result, err = svc.Timeline(ctx, TimelineFilters{Page: 2, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, result.Rows, 5)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 20, repo.lastOffset)
}

func TestTimelineExactPageBoundary(t *testing.T) {
	repo := &memoryTimeline{rows: makeRows(20)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, result.Rows, 20)
	require.False(t, result.Paging.HasNext)
}

func TestTimelineNormalizesFilters(t *testing.T) {
	repo := &memoryTimeline{}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: -3, PageSize: 5000})
	require.NoError(t, err)
	require.Equal(t, 1, result.Paging.Page)
	require.Equal(t, 20, result.Paging.PageSize)

	// The default window is the last seven days.
	require.False(t, repo.lastFilters.To.IsZero())
	require.WithinDuration(t, repo.lastFilters.To.Add(-7*24*time.Hour), repo.lastFilters.From, time.Second)
}

func TestTimelineAppliesFilters(t *testing.T) {
	repo := &memoryTimeline{rows: []TimelineRow{
		{ActorID: 1, Entity: "role"},
		{ActorID: 2, Entity: "role"},
		{ActorID: 1, Entity: "tenant"},
	}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{ActorID: 1, Entity: "role"})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
}
