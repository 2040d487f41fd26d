// Package knowledge serves the read-only question bank: categories,
// filtered and paginated question lists, single questions and version info.
package knowledge

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

const (
	DefaultVersion  = "1.0.0"
	DefaultPage     = 1
	DefaultPageSize = 20
)

// Question is one record of the bank. Only the fields used for filtering
// are decoded; the record is written back out exactly as it was read.
type Question struct {
	ID          int    `json:"id"`
	CategoryKey string `json:"categoryKey"`
	Question    string `json:"question"`
	Answer      string `json:"answer"`

	raw json.RawMessage
}

func (q *Question) UnmarshalJSON(b []byte) error {
	type plain Question
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*q = Question(p)
	q.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (q Question) MarshalJSON() ([]byte, error) {
	if q.raw != nil {
		return q.raw, nil
	}
	type plain Question
	return json.Marshal(plain(q))
}

// Dataset is the whole bank as stored on disk or in S3.
type Dataset struct {
	Version    string            `json:"version"`
	UpdateTime string            `json:"updateTime"`
	Categories []json.RawMessage `json:"categories"`
	Questions  []Question        `json:"questions"`

	now func() time.Time
}

type Filter struct {
	Category string
	Keyword  string
	Page     int
	PageSize int
}

// Page is one slice of a filtered question list.
type Page struct {
	List       []Question `json:"list"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"pageSize"`
	TotalPages int        `json:"totalPages"`
}

type VersionInfo struct {
	Version         string `json:"version"`
	UpdateTime      string `json:"updateTime"`
	TotalQuestions  int    `json:"totalQuestions"`
	TotalCategories int    `json:"totalCategories"`
}

// Full is the complete bank, returned for client-side caching.
type Full struct {
	Categories []json.RawMessage `json:"categories"`
	Questions  []Question        `json:"questions"`
	Version    string            `json:"version"`
	UpdateTime string            `json:"updateTime"`
}

func (d *Dataset) normalize() {
	if d.Categories == nil {
		d.Categories = []json.RawMessage{}
	}
	if d.Questions == nil {
		d.Questions = []Question{}
	}
	if d.now == nil {
		d.now = time.Now
	}
}

func (d *Dataset) version() string {
	if d.Version == "" {
		return DefaultVersion
	}
	return d.Version
}

// updateTime falls back to the current time when the bank carries none.
func (d *Dataset) updateTime() string {
	if d.UpdateTime == "" {
		return d.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	return d.UpdateTime
}

// Query filters by exact category key and by a case-insensitive keyword
// matched against question and answer, then returns the requested page.
// Non-positive page or page size fall back to the defaults.
func (d *Dataset) Query(f Filter) Page {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	keyword := strings.ToLower(f.Keyword)

	matched := make([]Question, 0, len(d.Questions))
	for _, q := range d.Questions {
		if f.Category != "" && q.CategoryKey != f.Category {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(q.Question), keyword) &&
			!strings.Contains(strings.ToLower(q.Answer), keyword) {
			continue
		}
		matched = append(matched, q)
	}

	total := len(matched)
	// (Page-1)*PageSize is only computed when it cannot exceed total, so
	// huge page values never overflow.
	start := total
	if f.Page-1 <= total/f.PageSize {
		start = min((f.Page-1)*f.PageSize, total)
	}
	end := start + min(f.PageSize, total-start)

	return Page{
		List:       matched[start:end],
		Total:      total,
		Page:       f.Page,
		PageSize:   f.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(f.PageSize))),
	}
}

func (d *Dataset) ByID(id int) (*Question, bool) {
	for i := range d.Questions {
		if d.Questions[i].ID == id {
			return &d.Questions[i], true
		}
	}
	return nil, false
}

func (d *Dataset) VersionInfo() VersionInfo {
	return VersionInfo{
		Version:         d.version(),
		UpdateTime:      d.updateTime(),
		TotalQuestions:  len(d.Questions),
		TotalCategories: len(d.Categories),
	}
}

func (d *Dataset) Full() Full {
	return Full{
		Categories: d.Categories,
		Questions:  d.Questions,
		Version:    d.version(),
		UpdateTime: d.updateTime(),
	}
}
