package repository

import (
	"strings"
	"testing"
	"time"
)

func boolPtr(b bool) *bool { return &b }

func TestChangesetFilterNormalize(t *testing.T) {
	f := &ChangesetFilter{}
	f.Normalize()
	if f.Page != 1 || f.PageSize != DefaultPageSize {
		t.Errorf("unexpected defaults: page=%d page_size=%d", f.Page, f.PageSize)
	}

	f = &ChangesetFilter{Page: 3, PageSize: 9000}
	f.Normalize()
	if f.PageSize != MaxPageSize {
		t.Errorf("expected page size capped at %d, got %d", MaxPageSize, f.PageSize)
	}
	if f.Page != 3 {
		t.Errorf("page changed unexpectedly: %d", f.Page)
	}
}

func TestOrderClauseWhitelist(t *testing.T) {
	cases := []struct {
		orderBy string
		want    string
	}{
		{"", "c.id DESC"},
		{"-id", "c.id DESC"},
		{"id", "c.id ASC"},
		{"date", "c.date ASC"},
		{"-check_date", "c.check_date DESC"},
		{"create", "c.created ASC"},
		{"-delete", "c.deleted DESC"},
		{"number_reasons", "(SELECT COUNT(*) FROM changeset_reasons cr WHERE cr.changeset_id = c.id) ASC"},
		// anything not whitelisted falls back to the default
		{"username", "c.id DESC"},
		{"-comment; DROP TABLE changesets", "c.id DESC"},
	}

	for _, tc := range cases {
		f := &ChangesetFilter{OrderBy: tc.orderBy}
		if got := f.orderClause(); got != tc.want {
			t.Errorf("orderClause(%q) = %q, want %q", tc.orderBy, got, tc.want)
		}
	}
}

func TestBuildChangesetListQueryAlwaysExcludesAnonymousRows(t *testing.T) {
	f := &ChangesetFilter{}
	f.Normalize()
	query, args := buildChangesetListQuery(f)

	if !strings.Contains(query, "c.username <> ''") {
		t.Error("expected empty-username exclusion in query")
	}
	// only limit and offset
	if len(args) != 2 {
		t.Errorf("expected 2 args, got %d: %v", len(args), args)
	}
}

func TestBuildChangesetListQueryFilters(t *testing.T) {
	now := time.Now()
	f := &ChangesetFilter{
		IDs:          []int64{1, 2},
		Checked:      boolPtr(true),
		Harmful:      boolPtr(false),
		Reasons:      []int64{7},
		Editor:       "JOSM",
		DateGTE:      &now,
		BBox:         []float64{-1, -1, 1, 1},
		HideWhitelistOf: func() *int64 { v := int64(42); return &v }(),
	}
	f.Normalize()
	query, args := buildChangesetListQuery(f)

	for _, fragment := range []string{
		"c.id = ANY($1)",
		"c.checked = $2",
		"c.harmful = $3",
		"cr.reason_id = ANY($4)",
		"c.editor ILIKE $5",
		"c.date >= $6",
		"ST_MakeEnvelope($7, $8, $9, $10, 4326)",
		"w.user_id = $11",
		"COUNT(*) OVER() AS total",
	} {
		if !strings.Contains(query, fragment) {
			t.Errorf("expected query to contain %q\nquery: %s", fragment, query)
		}
	}

	// 11 filter args + limit + offset
	if len(args) != 13 {
		t.Errorf("expected 13 args, got %d", len(args))
	}
	if args[4] != "%JOSM%" {
		t.Errorf("expected wrapped ILIKE pattern, got %v", args[4])
	}
}

func TestBuildChangesetListQueryPagination(t *testing.T) {
	f := &ChangesetFilter{Page: 3, PageSize: 25}
	f.Normalize()
	_, args := buildChangesetListQuery(f)

	limit := args[len(args)-2]
	offset := args[len(args)-1]
	if limit != 25 {
		t.Errorf("expected limit 25, got %v", limit)
	}
	if offset != 50 {
		t.Errorf("expected offset 50, got %v", offset)
	}
}
