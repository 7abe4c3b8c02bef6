package qb

import (
	"strings"
	"testing"
)

func newTestBuilder() *Builder {
	return NewBuilder(
		"send_configurations s JOIN namespaces ns ON ns.id = s.namespace",
		[]string{"s.id", "s.name", "ns.name"},
		map[string]string{"name": "s.name", "namespace": "ns.name"},
		"s.id",
	)
}

func TestSelectQueryDefaults(t *testing.T) {
	query, args, err := newTestBuilder().SelectQuery(Params{})
	if err != nil {
		t.Fatalf("SelectQuery error: %v", err)
	}
	if !strings.Contains(query, "ORDER BY s.id ASC") {
		t.Errorf("missing default order: %s", query)
	}
	if !strings.Contains(query, "LIMIT $1 OFFSET $2") {
		t.Errorf("missing paging placeholders: %s", query)
	}
	if len(args) != 2 || args[0] != 50 || args[1] != 0 {
		t.Errorf("args = %v, want default limit 50 offset 0", args)
	}
}

func TestSelectQueryLimitClamp(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero", 0, 50},
		{"negative", -1, 50},
		{"in range", 10, 10},
		{"max", 500, 500},
		{"over max", 501, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, args, err := newTestBuilder().SelectQuery(Params{Limit: tt.limit})
			if err != nil {
				t.Fatalf("SelectQuery error: %v", err)
			}
			if args[0] != tt.want {
				t.Errorf("limit = %v, want %d", args[0], tt.want)
			}
		})
	}
}

func TestSelectQueryOrderWhitelist(t *testing.T) {
	query, _, err := newTestBuilder().SelectQuery(Params{OrderBy: "namespace", SortDir: "desc"})
	if err != nil {
		t.Fatalf("SelectQuery error: %v", err)
	}
	if !strings.Contains(query, "ORDER BY ns.name DESC") {
		t.Errorf("order clause not mapped: %s", query)
	}

	// Anything outside the whitelist is an error, never interpolated.
	if _, _, err := newTestBuilder().SelectQuery(Params{OrderBy: "id; DROP TABLE users"}); err == nil {
		t.Fatal("expected error for unknown sort column")
	}
}

func TestPlaceholderNumbering(t *testing.T) {
	b := newTestBuilder().
		Where("s.mailer_type = {{arg}}", "smtp").
		Where("ns.id = {{arg}}", int64(1))

	query, args, err := b.SelectQuery(Params{Limit: 25, Offset: 50})
	if err != nil {
		t.Fatalf("SelectQuery error: %v", err)
	}
	for _, placeholder := range []string{"$1", "$2", "$3", "$4"} {
		if !strings.Contains(query, placeholder) {
			t.Errorf("missing %s in %s", placeholder, query)
		}
	}
	if strings.Contains(query, "{{arg}}") {
		t.Errorf("unnumbered marker left in %s", query)
	}
	if len(args) != 4 || args[0] != "smtp" || args[2] != 25 || args[3] != 50 {
		t.Errorf("args = %v", args)
	}
}

func TestPermissionFilter(t *testing.T) {
	b := newTestBuilder().
		PermissionFilter("s.id", "permissions_send_configuration", 7, "viewPublic")

	query, args := b.CountQuery()
	if !strings.Contains(query, "s.id IN (SELECT entity_id FROM permissions_send_configuration WHERE user_id = $1 AND operation = $2)") {
		t.Errorf("unexpected count query: %s", query)
	}
	if len(args) != 2 || args[0] != int64(7) || args[1] != "viewPublic" {
		t.Errorf("args = %v", args)
	}
}

func TestCountQueryOmitsPaging(t *testing.T) {
	query, args := newTestBuilder().Where("s.name = {{arg}}", "x").CountQuery()
	if strings.Contains(query, "LIMIT") || strings.Contains(query, "ORDER BY") {
		t.Errorf("count query must not page or order: %s", query)
	}
	if query != "SELECT COUNT(*) FROM send_configurations s JOIN namespaces ns ON ns.id = s.namespace WHERE s.name = $1" {
		t.Errorf("unexpected query: %s", query)
	}
	if len(args) != 1 {
		t.Errorf("args = %v", args)
	}
}
