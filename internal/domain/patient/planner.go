package patient

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ehr/mockserver/internal/platform/apierror"
	"github.com/ehr/mockserver/internal/platform/sqlquery"
	"github.com/ehr/mockserver/pkg/pagination"
)

// searchColumns are matched by the free-text query.
var searchColumns = []string{"first_name", "last_name", "display_id", "email"}

// keyColumn breaks sort ties so paging is stable.
const keyColumn = "patient_key"

// Query holds raw list/search parameters as received.
type Query struct {
	Text          string
	PageNo        string
	PageSize      string
	SortBy        string
	SortDirection string
	IsPinned      string
	Status        string
}

// Plan is a validated query: filters, order and page window.
type Plan struct {
	Text       string
	IsPinned   *bool
	Status     string
	SortColumn string
	Desc       bool
	// Page with PageSize 0 means every matching row.
	Page pagination.Params
}

func firstOf(get func(string) string, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(get(n)); v != "" {
			return v
		}
	}
	return ""
}

func queryFrom(get func(string) string) Query {
	return Query{
		Text:          firstOf(get, "q", "query", "search"),
		PageNo:        firstOf(get, "pageNo", "page"),
		PageSize:      firstOf(get, "pageSize", "limit"),
		SortBy:        firstOf(get, "sortBy"),
		SortDirection: firstOf(get, "sortDirection", "sortOrder"),
		IsPinned:      firstOf(get, "isPinned"),
		Status:        firstOf(get, "status"),
	}
}

// QueryFromValues reads parameters from a URL query string, accepting the
// historical aliases (query/search, page, limit, sortOrder).
func QueryFromValues(vals url.Values) Query {
	return queryFrom(vals.Get)
}

// QueryFromMap reads parameters from a decoded JSON search body. Numbers and
// booleans are accepted alongside strings.
func QueryFromMap(m map[string]interface{}) Query {
	return queryFrom(func(name string) string {
		v, ok := m[name]
		if !ok || v == nil {
			return ""
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	})
}

// Plan validates q against the version's rules. Strict versions collect
// every problem into one INVALID_QUERY error; lenient versions clamp and fall
// back instead.
func (v *Version) Plan(q Query) (Plan, error) {
	page, issues := pagination.Parse(q.PageNo, q.PageSize, pagination.Limits{
		DefaultSize: v.DefaultPageSize,
		MaxSize:     v.MaxPageSize,
		Strict:      v.Strict,
	})

	p := Plan{
		Text:       q.Text,
		SortColumn: v.DefaultSort,
		Desc:       strings.EqualFold(q.SortDirection, "desc"),
		Page:       page,
	}

	if q.SortBy != "" {
		if col, ok := v.sortColumn(q.SortBy); ok {
			p.SortColumn = col
		} else if v.Strict {
			issues = append(issues, fmt.Sprintf("sortBy must be one of %s, got %q",
				strings.Join(v.sortNames(), ", "), q.SortBy))
		}
	}

	if q.IsPinned != "" {
		if b, ok := parseBool(q.IsPinned); ok {
			p.IsPinned = &b
		} else if v.Strict {
			issues = append(issues, fmt.Sprintf("isPinned must be true or false, got %q", q.IsPinned))
		}
	}

	if q.Status != "" {
		if s, ok := oneOf(q.Status, Statuses); ok {
			p.Status = s
		} else if v.Strict {
			issues = append(issues, fmt.Sprintf("status must be one of %s, got %q",
				strings.Join(Statuses, ", "), q.Status))
		}
	}

	if len(issues) > 0 {
		return Plan{}, apierror.Validation(apierror.ErrInvalidQuery, "invalid query parameters", issues...)
	}
	return p, nil
}

// Apply adds the plan's predicate and ordering to q. Only allow-listed
// column names reach the SQL text.
func (p Plan) Apply(q *sqlquery.Query) {
	if p.Text != "" {
		q.ContainsAny(searchColumns, p.Text)
	}
	if p.IsPinned != nil {
		q.Eq("is_pinned", *p.IsPinned)
	}
	if p.Status != "" {
		q.Eq("status", p.Status)
	}
	col := p.SortColumn
	if col == "" {
		col = keyColumn
	}
	q.OrderBy(col, p.Desc, keyColumn)
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	}
	return false, false
}

// oneOf matches s case-insensitively against allowed and returns the
// canonical spelling.
func oneOf(s string, allowed []string) (string, bool) {
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(s), a) {
			return a, true
		}
	}
	return "", false
}
