package pagination

import (
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Params holds the resolved page window for a list request
type Params struct {
	Page     int
	PageSize int
}

// Offset returns the row offset for the window
func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// FromContext parses page and page_size query parameters, clamping to limits
func FromContext(c *gin.Context) Params {
	return FromValues(c.Query("page"), c.Query("page_size"))
}

// FromValues parses raw page and page_size values, clamping to limits
func FromValues(pageStr, sizeStr string) Params {
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil || size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Params{Page: page, PageSize: size}
}

// Envelope is the standard list response shape
type Envelope struct {
	Count    int64       `json:"count"`
	Next     *string     `json:"next"`
	Previous *string     `json:"previous"`
	Results  interface{} `json:"results"`
}

// NewEnvelope builds a list envelope with next/previous page links derived
// from the request URL.
func NewEnvelope(c *gin.Context, p Params, count int64, results interface{}) Envelope {
	env := Envelope{Count: count, Results: results}

	lastPage := int((count + int64(p.PageSize) - 1) / int64(p.PageSize))
	if p.Page < lastPage {
		env.Next = pageURL(c.Request.URL, p.Page+1, p.PageSize)
	}
	if p.Page > 1 {
		prev := p.Page - 1
		if lastPage > 0 && prev > lastPage {
			prev = lastPage
		}
		env.Previous = pageURL(c.Request.URL, prev, p.PageSize)
	}
	return env
}

func pageURL(u *url.URL, page, size int) *string {
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(size))
	clone := *u
	clone.RawQuery = q.Encode()
	s := clone.String()
	return &s
}
