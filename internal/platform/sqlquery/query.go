// Package sqlquery builds parameterized SELECT statements whose count and page
// queries share one WHERE clause. Column names are supplied by code, never by
// request input; values always travel as bind arguments.
package sqlquery

import (
	"fmt"
	"strings"

	"github.com/ehr/mockserver/internal/platform/db"
)

// Query accumulates filter clauses for a single table.
type Query struct {
	dialect db.Dialect
	table   string
	cols    string
	where   string
	args    []interface{}
	orderBy string
}

// New creates a Query for the given table and column list.
func New(dialect db.Dialect, table, cols string) *Query {
	return &Query{dialect: dialect, table: table, cols: cols}
}

func (q *Query) bind(v interface{}) string {
	q.args = append(q.args, v)
	return q.dialect.Placeholder(len(q.args))
}

// Add appends a raw WHERE clause fragment (without leading "AND"). Each "%s"
// in clause is replaced by the placeholder of the matching argument.
func (q *Query) Add(clause string, args ...interface{}) {
	ph := make([]interface{}, len(args))
	for i, a := range args {
		ph[i] = q.bind(a)
	}
	q.where += " AND " + fmt.Sprintf(clause, ph...)
}

// Eq adds an exact-match clause.
func (q *Query) Eq(column string, value interface{}) {
	q.where += fmt.Sprintf(" AND %s = %s", column, q.bind(value))
}

// ContainsAny adds a case-insensitive substring match that succeeds when any
// of the columns contains term.
func (q *Query) ContainsAny(columns []string, term string) {
	if len(columns) == 0 {
		return
	}
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf(`LOWER(COALESCE(%s, '')) LIKE %s ESCAPE '\'`, col, q.bind(pattern))
	}
	q.where += " AND (" + strings.Join(parts, " OR ") + ")"
}

// OrderBy sets the ORDER BY clause. The tiebreak column keeps paging stable
// when the primary column has duplicates.
func (q *Query) OrderBy(column string, desc bool, tiebreak string) {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	q.orderBy = column + " " + dir
	if tiebreak != "" && tiebreak != column {
		q.orderBy += ", " + tiebreak + " " + dir
	}
}

// Where returns the accumulated WHERE clause (always starting with 1=1).
func (q *Query) Where() string {
	return "1=1" + q.where
}

// CountSQL returns the count query SQL.
func (q *Query) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", q.table, q.Where())
}

// CountArgs returns the arguments for the count query.
func (q *Query) CountArgs() []interface{} {
	return q.args
}

// DataSQL returns the data query SQL with ORDER BY and, when limit > 0,
// LIMIT/OFFSET.
func (q *Query) DataSQL(limit, offset int) string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s", q.cols, q.table, q.Where())
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	if limit > 0 {
		n := len(q.args)
		sql += fmt.Sprintf(" LIMIT %s OFFSET %s", q.dialect.Placeholder(n+1), q.dialect.Placeholder(n+2))
	}
	return sql
}

// DataArgs returns the arguments for the data query (filter args + limit + offset).
func (q *Query) DataArgs(limit, offset int) []interface{} {
	if limit <= 0 {
		return q.args
	}
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
