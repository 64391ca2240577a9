package collector

import (
	"context"
	"errors"
	"fmt"
)

// maxPages bounds any single listing so a provider that never reports the
// last page cannot keep a run alive forever.
const maxPages = 10000

// ErrMissingCursor is returned when a provider reports another page but
// supplies no cursor to reach it.
var ErrMissingCursor = errors.New("provider reported a next page without an end cursor")

// CursorPage is one page of a cursor-paginated listing
type CursorPage[T any] struct {
	Items       []T
	HasNextPage bool
	EndCursor   string
}

// CursorFetchFunc fetches the page after cursor. A nil cursor requests the first page.
type CursorFetchFunc[T any] func(ctx context.Context, cursor *string) (CursorPage[T], error)

// FetchAllCursor walks a cursor-paginated listing until the provider reports
// no further pages. The end cursor of each page is passed back verbatim.
// The first error aborts the walk and no partial result is returned.
func FetchAllCursor[T any](ctx context.Context, fetch CursorFetchFunc[T]) ([]T, error) {
	var all []T
	var cursor *string

	for i := 0; i < maxPages; i++ {
		page, err := fetch(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)

		if !page.HasNextPage {
			return all, nil
		}
		if page.EndCursor == "" {
			return nil, ErrMissingCursor
		}
		next := page.EndCursor
		cursor = &next
	}

	return nil, fmt.Errorf("cursor listing exceeded %d pages", maxPages)
}

// PageFetchFunc fetches one numbered page (1-based) of at most perPage items
type PageFetchFunc[T any] func(ctx context.Context, page, perPage int) ([]T, error)

// FetchAllPages walks a page-number listing. It stops at the first page
// holding fewer than perPage items, so a full last page costs one extra
// request that comes back empty. Short-page termination is a heuristic: it
// relies on the provider filling every page but the last, which GitHub's
// REST list endpoints do.
func FetchAllPages[T any](ctx context.Context, perPage int, fetch PageFetchFunc[T]) ([]T, error) {
	if perPage < 1 {
		return nil, fmt.Errorf("invalid page size %d", perPage)
	}

	var all []T
	for page := 1; page <= maxPages; page++ {
		items, err := fetch(ctx, page, perPage)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)

		if len(items) < perPage {
			return all, nil
		}
	}

	return nil, fmt.Errorf("page listing exceeded %d pages", maxPages)
}
