package handler

import (
	"net/http"
	"strconv"

	"github.com/webatelier/livechat-server-go/internal/config"
)

type PaginationParams struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit/offset from the query string. Out-of-range or
// malformed values fall back to the defaults rather than erroring: listing
// endpoints should never 400 over a bad page size.
func ParsePagination(r *http.Request) PaginationParams {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	if limit <= 0 || limit > config.MaxPageLimit {
		limit = config.DefaultPageLimit
	}

	if offset < 0 {
		offset = 0
	}

	return PaginationParams{
		Limit:  limit,
		Offset: offset,
	}
}
