package rest

import (
	"context"

	"github.com/availex/twitch-gateway-go/internal/twitcherr"
)

// Page is one page of a cursor-paginated listing.
type Page[T any] struct {
	Items  []T
	Cursor string
}

// Paginator pulls a cursor-paginated listing one page at a time. It is
// lazy, finite, and restartable from any cursor via Reset.
type Paginator[T any] struct {
	fetch  func(ctx context.Context, cursor string) (Page[T], error)
	cursor string
	done   bool
}

// NewPaginator wraps a page-fetching function.
func NewPaginator[T any](fetch func(ctx context.Context, cursor string) (Page[T], error)) *Paginator[T] {
	return &Paginator[T]{fetch: fetch}
}

// Next returns the next page of items. It returns
// twitcherr.ErrEndOfResults once the listing is exhausted.
func (p *Paginator[T]) Next(ctx context.Context) ([]T, error) {
	if p.done {
		return nil, twitcherr.ErrEndOfResults
	}

	page, err := p.fetch(ctx, p.cursor)
	if err != nil {
		return nil, err
	}

	p.cursor = page.Cursor
	if page.Cursor == "" {
		p.done = true
	}
	if len(page.Items) == 0 {
		p.done = true
		return nil, twitcherr.ErrEndOfResults
	}
	return page.Items, nil
}

// Reset rewinds the paginator to the given cursor; an empty cursor
// restarts from the beginning.
func (p *Paginator[T]) Reset(cursor string) {
	p.cursor = cursor
	p.done = false
}
