package model

import "time"

// PageAction identifies which direction a pagination control moves.
type PageAction string

const (
	PageActionPrev PageAction = "previous"
	PageActionNext PageAction = "next"
)

// Valid reports whether the action is one of the two known directions.
func (a PageAction) Valid() bool {
	return a == PageActionPrev || a == PageActionNext
}

// PageToken is the decoded form of a pagination capability: "page TargetPage
// of the roster listing, requested by ActorID, issued at IssuedAt". It is
// never persisted; the encoded token itself is its only store.
type PageToken struct {
	Action     PageAction
	TargetPage int
	ActorID    string
	IssuedAt   time.Time
}

// PageCount returns the number of pages needed to show total records at
// pageSize records per page. An empty listing still has one (empty) page.
func PageCount(total, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	n := (total + pageSize - 1) / pageSize
	if n < 1 {
		return 1
	}
	return n
}

// ClampPage clamps a requested page into [1, pageCount]. Out-of-range
// requests are adjusted at render time rather than rejected.
func ClampPage(page, pageCount int) int {
	if page < 1 {
		return 1
	}
	if page > pageCount {
		return pageCount
	}
	return page
}
