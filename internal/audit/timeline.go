package audit

import "time"

// TimelineFilters menampung filter dasar untuk audit timeline. To bersifat
// eksklusif.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow mewakili satu baris audit timeline.
type TimelineRow struct {
	At       time.Time      `json:"at"`
	Actor    string         `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result membungkus hasil timeline dengan informasi paging.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// Query is the repository-level window over audit_logs. Limit 0 reads
// everything after Offset.
type Query struct {
	From   time.Time
	To     time.Time
	Actor  string
	Entity string
	Action string
	Offset int
	Limit  int
}

func (q Query) matches(row TimelineRow) bool {
	if !q.From.IsZero() && row.At.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !row.At.Before(q.To) {
		return false
	}
	if q.Actor != "" && row.Actor != q.Actor {
		return false
	}
	if q.Entity != "" && row.Entity != q.Entity {
		return false
	}
	if q.Action != "" && row.Action != q.Action {
		return false
	}
	return true
}
