package handler

import (
	"testing"

	"github.com/deppfellow/osmcha-backend/internal/errs"
	"github.com/deppfellow/osmcha-backend/internal/models"
)

func TestListRequestToFilter(t *testing.T) {
	req := &ListChangesetsRequest{
		IDs:       "1,2,3",
		Users:     "alice,bob",
		Checked:   "true",
		Harmful:   "false",
		Reasons:   "4,5",
		Editor:    "iD",
		DateGTE:   "2026-01-01",
		CreateGTE: "100",
		InBBox:    "-10.5,35,2.25,45",
		AreaLT:    "2.5",
		OrderBy:   "-date",
		Page:      2,
		PageSize:  20,
	}

	user := &models.User{ID: 9}
	filter, err := req.toFilter(user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(filter.IDs) != 3 || filter.IDs[2] != 3 {
		t.Fatalf("unexpected IDs: %v", filter.IDs)
	}
	if len(filter.Usernames) != 2 || filter.Usernames[1] != "bob" {
		t.Fatalf("unexpected usernames: %v", filter.Usernames)
	}
	if filter.Checked == nil || !*filter.Checked {
		t.Fatal("expected checked=true")
	}
	if filter.Harmful == nil || *filter.Harmful {
		t.Fatal("expected harmful=false")
	}
	if filter.DateGTE == nil || filter.DateGTE.Year() != 2026 {
		t.Fatalf("unexpected date__gte: %v", filter.DateGTE)
	}
	if filter.CreateGTE == nil || *filter.CreateGTE != 100 {
		t.Fatalf("unexpected create__gte: %v", filter.CreateGTE)
	}
	if len(filter.BBox) != 4 || filter.BBox[0] != -10.5 || filter.BBox[3] != 45 {
		t.Fatalf("unexpected bbox: %v", filter.BBox)
	}
	if filter.AreaLT == nil || *filter.AreaLT != 2.5 {
		t.Fatalf("unexpected area_lt: %v", filter.AreaLT)
	}
	if filter.OrderBy != "-date" || filter.Page != 2 || filter.PageSize != 20 {
		t.Fatalf("unexpected ordering/pagination: %+v", filter)
	}
}

func TestListRequestToFilterAnonymousIgnoresIdentityFilters(t *testing.T) {
	req := &ListChangesetsRequest{
		UIDs:          "1234",
		Users:         "alice",
		CheckedBy:     "reviewer",
		HideWhitelist: true,
	}

	filter, err := req.toFilter(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if filter.UIDs != nil || filter.Usernames != nil || filter.CheckedBy != nil {
		t.Fatalf("expected identity filters to be dropped, got %+v", filter)
	}
	if filter.HideWhitelistOf != nil {
		t.Fatal("expected hide_whitelist to be dropped for anonymous requests")
	}
}

func TestListRequestToFilterHideWhitelist(t *testing.T) {
	req := &ListChangesetsRequest{HideWhitelist: true}

	user := &models.User{ID: 42}
	filter, err := req.toFilter(user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if filter.HideWhitelistOf == nil || *filter.HideWhitelistOf != 42 {
		t.Fatalf("expected hide_whitelist for user 42, got %v", filter.HideWhitelistOf)
	}
}

func TestListRequestToFilterRejectsMalformedValues(t *testing.T) {
	cases := map[string]*ListChangesetsRequest{
		"ids":       {IDs: "1,x"},
		"checked":   {Checked: "maybe"},
		"date__gte": {DateGTE: "yesterday"},
		"in_bbox":   {InBBox: "1,2,3"},
		"area_lt":   {AreaLT: "big"},
	}

	for name, req := range cases {
		_, err := req.toFilter(nil)
		if err == nil {
			t.Fatalf("%s: expected an error", name)
		}
		httpErr, ok := err.(*errs.HTTPError)
		if !ok || httpErr.Status != 400 {
			t.Fatalf("%s: expected a 400, got %v", name, err)
		}
		if len(httpErr.Errors) != 1 || httpErr.Errors[0].Field != name {
			t.Fatalf("%s: expected a field error, got %+v", name, httpErr.Errors)
		}
	}
}

func TestCheckChangesetRequestTagIDs(t *testing.T) {
	req := &CheckChangesetRequest{ID: 1}
	if req.tagIDs() != nil {
		t.Fatal("expected nil tags when body omits the field")
	}

	empty := []int64{}
	req.Tags = &empty
	if got := req.tagIDs(); got == nil || len(got) != 0 {
		t.Fatalf("expected empty replacement set, got %v", got)
	}

	tags := []int64{3, 4}
	req.Tags = &tags
	if got := req.tagIDs(); len(got) != 2 || got[1] != 4 {
		t.Fatalf("unexpected tags: %v", got)
	}
}
