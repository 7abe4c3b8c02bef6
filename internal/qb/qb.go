// Package qb builds paginated listing queries: a column-whitelisted ORDER
// BY, LIMIT/OFFSET paging, and an optional permission predicate that
// restricts rows to entities the user holds an operation on. It knows
// nothing about the entities being listed.
package qb

import (
	"fmt"
	"strings"
)

// Params are the caller-supplied paging knobs.
type Params struct {
	Limit   int
	Offset  int
	OrderBy string
	SortDir string
}

// Builder accumulates the pieces of one listing query.
type Builder struct {
	from         string
	columns      []string
	orderable    map[string]string
	defaultOrder string
	where        []string
	args         []interface{}
}

// NewBuilder creates a builder. orderable maps caller-facing sort names to
// SQL columns; anything else is rejected at build time. defaultOrder is
// the SQL column used when no sort is requested.
func NewBuilder(from string, columns []string, orderable map[string]string, defaultOrder string) *Builder {
	return &Builder{
		from:         from,
		columns:      columns,
		orderable:    orderable,
		defaultOrder: defaultOrder,
	}
}

// Where adds a raw condition. Placeholders use %d-free $N numbering
// assigned at build time via the special marker {{arg}}.
func (b *Builder) Where(condition string, args ...interface{}) *Builder {
	b.where = append(b.where, condition)
	b.args = append(b.args, args...)
	return b
}

// PermissionFilter restricts rows to entities on which the user holds the
// operation, via a subquery on the derived permissions table.
func (b *Builder) PermissionFilter(idColumn, permissionsTable string, userID int64, operation string) *Builder {
	cond := fmt.Sprintf(
		"%s IN (SELECT entity_id FROM %s WHERE user_id = {{arg}} AND operation = {{arg}})",
		idColumn, permissionsTable)
	return b.Where(cond, userID, operation)
}

// CountQuery returns the total-count query over the filtered set.
func (b *Builder) CountQuery() (string, []interface{}) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", b.from, b.whereClause())
	return numberPlaceholders(query), b.args
}

// SelectQuery returns the page query with ORDER BY and LIMIT/OFFSET
// applied. Unknown sort columns fail rather than being interpolated.
func (b *Builder) SelectQuery(p Params) (string, []interface{}, error) {
	orderCol := b.defaultOrder
	if p.OrderBy != "" {
		col, ok := b.orderable[p.OrderBy]
		if !ok {
			return "", nil, fmt.Errorf("cannot order by %q", p.OrderBy)
		}
		orderCol = col
	}
	dir := "ASC"
	if strings.EqualFold(p.SortDir, "desc") {
		dir = "DESC"
	}

	limit := p.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s %s LIMIT {{arg}} OFFSET {{arg}}",
		strings.Join(b.columns, ", "), b.from, b.whereClause(), orderCol, dir)
	args := append(append([]interface{}{}, b.args...), limit, offset)
	return numberPlaceholders(query), args, nil
}

func (b *Builder) whereClause() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

// numberPlaceholders rewrites {{arg}} markers to sequential $N
// placeholders in order of appearance, matching the args slice order.
func numberPlaceholders(query string) string {
	var sb strings.Builder
	n := 0
	for {
		i := strings.Index(query, "{{arg}}")
		if i < 0 {
			sb.WriteString(query)
			return sb.String()
		}
		n++
		sb.WriteString(query[:i])
		fmt.Fprintf(&sb, "$%d", n)
		query = query[i+len("{{arg}}"):]
	}
}
