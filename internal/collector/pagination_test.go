package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAllCursor(t *testing.T) {
	pages := map[string]CursorPage[int]{
		"":   {Items: []int{1, 2}, HasNextPage: true, EndCursor: "c1"},
		"c1": {Items: []int{3}, HasNextPage: true, EndCursor: "c2"},
		"c2": {Items: []int{4, 5}, HasNextPage: false, EndCursor: "c3"},
	}
	var seen []string

	items, err := FetchAllCursor(context.Background(), func(_ context.Context, cursor *string) (CursorPage[int], error) {
		key := ""
		if cursor != nil {
			key = *cursor
		}
		seen = append(seen, key)
		return pages[key], nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, items)
	assert.Equal(t, []string{"", "c1", "c2"}, seen)
}

func TestFetchAllCursorAbortsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0

	items, err := FetchAllCursor(context.Background(), func(_ context.Context, cursor *string) (CursorPage[int], error) {
		calls++
		if cursor == nil {
			return CursorPage[int]{Items: []int{1}, HasNextPage: true, EndCursor: "c1"}, nil
		}
		return CursorPage[int]{}, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, items)
	assert.Equal(t, 2, calls)
}

func TestFetchAllCursorMissingCursor(t *testing.T) {
	_, err := FetchAllCursor(context.Background(), func(_ context.Context, _ *string) (CursorPage[int], error) {
		return CursorPage[int]{Items: []int{1}, HasNextPage: true}, nil
	})
	assert.ErrorIs(t, err, ErrMissingCursor)
}

func TestFetchAllPages(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		perPage   int
		wantCalls int
	}{
		{name: "empty", total: 0, perPage: 3, wantCalls: 1},
		{name: "short first page", total: 2, perPage: 3, wantCalls: 1},
		{name: "exact multiple costs one empty page", total: 6, perPage: 3, wantCalls: 3},
		{name: "partial last page", total: 7, perPage: 3, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			items, err := FetchAllPages(context.Background(), tt.perPage, func(_ context.Context, page, perPage int) ([]int, error) {
				calls++
				start := (page - 1) * perPage
				var out []int
				for i := start; i < start+perPage && i < tt.total; i++ {
					out = append(out, i)
				}
				return out, nil
			})

			require.NoError(t, err)
			assert.Len(t, items, tt.total)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestFetchAllPagesAbortsOnError(t *testing.T) {
	boom := errors.New("boom")

	items, err := FetchAllPages(context.Background(), 2, func(_ context.Context, page, _ int) ([]string, error) {
		if page == 2 {
			return nil, boom
		}
		return []string{"a", "b"}, nil
	})

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, items)

	_, err = FetchAllPages(context.Background(), 0, func(context.Context, int, int) ([]string, error) { return nil, nil })
	assert.Error(t, err)
}
