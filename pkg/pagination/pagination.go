package pagination

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Limits configures how raw page parameters are interpreted.
type Limits struct {
	DefaultSize int
	MaxSize     int
	// Strict rejects out-of-range values instead of clamping them.
	Strict bool
}

// Params holds a resolved 1-based page window.
type Params struct {
	PageNo   int
	PageSize int
}

// Parse resolves raw pageNo/pageSize strings. Empty values take defaults.
// In strict mode every problem is reported; in lenient mode pageNo is clamped
// into [1, MaxPageNo(pageSize)] and pageSize into [1, MaxSize].
func Parse(pageNo, pageSize string, l Limits) (Params, []string) {
	if l.MaxSize <= 0 {
		l.MaxSize = MaxPageSize
	}
	if l.DefaultSize <= 0 || l.DefaultSize > l.MaxSize {
		l.DefaultSize = min(DefaultPageSize, l.MaxSize)
	}

	p := Params{PageNo: 1, PageSize: l.DefaultSize}
	var issues []string

	if s := strings.TrimSpace(pageNo); s != "" {
		n, err := strconv.Atoi(s)
		switch {
		case err == nil && n >= 1:
			p.PageNo = n
		case l.Strict:
			issues = append(issues, fmt.Sprintf("pageNo must be an integer >= 1, got %q", pageNo))
		}
	}

	if s := strings.TrimSpace(pageSize); s != "" {
		n, err := strconv.Atoi(s)
		switch {
		case err == nil && n >= 1 && n <= l.MaxSize:
			p.PageSize = n
		case l.Strict:
			issues = append(issues, fmt.Sprintf("pageSize must be an integer between 1 and %d, got %q", l.MaxSize, pageSize))
		case err == nil && n > l.MaxSize:
			p.PageSize = l.MaxSize
		case err == nil && n < 1:
			p.PageSize = 1
		}
	}

	if limit := MaxPageNo(p.PageSize); p.PageNo > limit {
		if l.Strict {
			issues = append(issues, fmt.Sprintf("pageNo must be at most %d for pageSize %d, got %q", limit, p.PageSize, pageNo))
		}
		p.PageNo = limit
	}

	return p, issues
}

// MaxPageNo is the largest page number whose offset fits in an int.
func MaxPageNo(pageSize int) int {
	if pageSize <= 0 {
		return math.MaxInt
	}
	return math.MaxInt/pageSize + 1
}

// Offset returns the row offset of the first item on the page.
func (p Params) Offset() int {
	return (p.PageNo - 1) * p.PageSize
}

// PagesCount returns ceil(total/size), and 0 when there are no records.
func PagesCount(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// Page is the list response envelope.
type Page[T any] struct {
	Items        []T `json:"items"`
	TotalRecords int `json:"totalRecords"`
	PageNo       int `json:"pageNo"`
	PageSize     int `json:"pageSize"`
	PagesCount   int `json:"pagesCount"`
}

// NewPage builds the envelope; a nil slice is rendered as [].
func NewPage[T any](items []T, total int, p Params) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:        items,
		TotalRecords: total,
		PageNo:       p.PageNo,
		PageSize:     p.PageSize,
		PagesCount:   PagesCount(total, p.PageSize),
	}
}
