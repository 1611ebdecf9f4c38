// Package pagination pages in-memory listings with limit/offset query
// parameters.
package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset, clamping limit to [1, MaxLimit] and
// offset to >= 0. Missing or unparsable values take the defaults.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

// Response is one page of a listing.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
	Links   Links       `json:"links"`
}

// Links are the navigation URLs of one page. They keep the request's other
// query parameters.
type Links struct {
	Self     string `json:"self"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
}

// Paginate cuts the page p out of items. Data is never nil, so an empty
// page encodes as [].
func Paginate[T any](items []T, p Params, u *url.URL) *Response {
	total := len(items)
	data := []T{}
	if p.Offset < total {
		end := p.Offset + p.Limit
		if end > total {
			end = total
		}
		data = items[p.Offset:end]
	}

	r := &Response{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.Offset+p.Limit < total,
	}
	r.Links.Self = pageURL(u, p.Offset, p.Limit)
	if r.HasMore {
		r.Links.Next = pageURL(u, p.Offset+p.Limit, p.Limit)
	}
	if p.Offset > 0 {
		prev := p.Offset - p.Limit
		if prev < 0 {
			prev = 0
		}
		r.Links.Previous = pageURL(u, prev, p.Limit)
	}
	return r
}

func pageURL(u *url.URL, offset, limit int) string {
	q := u.Query()
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	return u.Path + "?" + q.Encode()
}
