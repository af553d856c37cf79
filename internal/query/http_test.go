package query

import (
	"net/http/httptest"
	"testing"
)

func TestPagination_Defaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/funding/ETH", nil)
	limit, after := pagination(r)
	if limit != defaultPageLimit {
		t.Errorf("limit = %d, want %d", limit, defaultPageLimit)
	}
	if after != nil {
		t.Errorf("after = %v, want nil", *after)
	}
}

func TestPagination_Explicit(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/funding/ETH?limit=25&after=9000", nil)
	limit, after := pagination(r)
	if limit != 25 {
		t.Errorf("limit = %d, want 25", limit)
	}
	if after == nil || *after != 9000 {
		t.Errorf("after = %v, want 9000", after)
	}
}

func TestPagination_ClampsLimit(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/events?limit=999999", nil)
	limit, _ := pagination(r)
	if limit != maxPageLimit {
		t.Errorf("limit = %d, want %d", limit, maxPageLimit)
	}
}

func TestPagination_IgnoresGarbage(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/events?limit=abc&after=xyz", nil)
	limit, after := pagination(r)
	if limit != defaultPageLimit {
		t.Errorf("limit = %d, want %d", limit, defaultPageLimit)
	}
	if after != nil {
		t.Errorf("after should be nil for non-numeric cursor")
	}
}

func TestParseUUID_Invalid(t *testing.T) {
	w := httptest.NewRecorder()
	_, ok := parseUUID(w, "not-a-uuid")
	if ok {
		t.Fatal("expected parse failure")
	}
	if w.Code != 400 {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
