package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageRequestFrom(t *testing.T) {
	cases := map[string]pageRequest{
		"":                  {limit: defaultPageLimit},
		"limit=10":          {limit: 10},
		"limit=10&offset=5": {limit: 10, offset: 5},
		"limit=9999":        {limit: maxPageLimit},
		"limit=0":           {limit: defaultPageLimit},
		"limit=-3":          {limit: defaultPageLimit},
		"limit=ten":         {limit: defaultPageLimit},
		"offset=-1":         {limit: defaultPageLimit},
	}
	for query, want := range cases {
		r := httptest.NewRequest("GET", "/security/audit?"+query, nil)
		assert.Equal(t, want, pageRequestFrom(r), query)
	}
}

func TestPageOf_Windows(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	page, meta := pageOf(items, pageRequest{limit: 2, offset: 1})
	assert.Equal(t, []int{2, 3}, page)
	assert.Equal(t, PaginationMeta{TotalCount: 5, Limit: 2, Offset: 1, HasMore: true}, meta)

	page, meta = pageOf(items, pageRequest{limit: 10, offset: 3})
	assert.Equal(t, []int{4, 5}, page)
	assert.False(t, meta.HasMore)
}

func TestPageOf_OffsetPastEndIsEmptyNotNil(t *testing.T) {
	page, meta := pageOf([]string{"a"}, pageRequest{limit: 10, offset: 7})
	assert.NotNil(t, page)
	assert.Empty(t, page)
	assert.Equal(t, 1, meta.TotalCount)

	page, _ = pageOf[string](nil, pageRequest{limit: 10})
	assert.NotNil(t, page)
}

func TestPageOf_DoesNotAliasInput(t *testing.T) {
	items := []int{1, 2, 3}
	page, _ := pageOf(items, pageRequest{limit: 2})
	page[0] = 99
	assert.Equal(t, 1, items[0])
}
