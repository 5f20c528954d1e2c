package audit

import "time"

// Entry is one activity record: who did what to which entity.
type Entry struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// TimelineFilters narrows the activity timeline.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one rendered timeline entry.
type TimelineRow struct {
	At       time.Time
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
}

// PagingInfo carries simple cursorless paging metadata.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
}

// Result is a timeline page.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}
