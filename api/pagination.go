package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// PaginationMeta is embedded in paginated list responses.
type PaginationMeta struct {
	TotalCount int  `json:"total_count"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
}

// pageRequest is the window a client asked for. Unparseable or
// non-positive values fall back to the defaults.
type pageRequest struct {
	limit  int
	offset int
}

func pageRequestFrom(r *http.Request) pageRequest {
	q := r.URL.Query()
	p := pageRequest{limit: defaultPageLimit}
	if n := positiveInt(q.Get("limit")); n > 0 {
		p.limit = min(n, maxPageLimit)
	}
	p.offset = positiveInt(q.Get("offset"))
	return p
}

func positiveInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// pageOf cuts the requested window out of items. The result is never nil
// so that it encodes as an empty JSON array.
func pageOf[T any](items []T, p pageRequest) ([]T, PaginationMeta) {
	start := min(p.offset, len(items))
	end := min(start+p.limit, len(items))
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out, PaginationMeta{
		TotalCount: len(items),
		Limit:      p.limit,
		Offset:     p.offset,
		HasMore:    end < len(items),
	}
}
