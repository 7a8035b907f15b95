// Package members turns a server-paged member list into rows and writes them out.
package members

import (
	"context"
	"fmt"

	"github.com/robby/roster/internal/domain"
)

// PageSource is a single-pass enumeration of a remote member list.
type PageSource interface {
	// Total returns the count reported by the server. It may be stale.
	Total(ctx context.Context) (int, error)
	// Next returns the next member; ok is false at end of sequence.
	Next(ctx context.Context) (member domain.Member, ok bool, err error)
}

// ProgressFunc reports download progress: (0, 500), (1, 500), (2, 500), ...
// total is -1 when the source could not report one.
type ProgressFunc func(loaded, total int)

// Drain reads src until end of sequence and returns the members in order.
//
// The loop ends on the source's end signal, never on the reported total. On the
// first error Drain stops and returns what it has so far together with the error;
// the members slice is valid either way.
func Drain(ctx context.Context, src PageSource, progress ProgressFunc) ([]domain.Member, error) {
	// The count only feeds progress, so a failure here is not fatal.
	total, err := src.Total(ctx)
	if err != nil {
		total = -1
	}

	out := make([]domain.Member, 0, capacityHint(total))
	// Reported up front so the total survives an empty list or a failed first page.
	if progress != nil {
		progress(0, total)
	}
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		member, ok, err := src.Next(ctx)
		if err != nil {
			return out, fmt.Errorf("stopped after %d members: %w", len(out), err)
		}
		if !ok {
			return out, nil
		}

		out = append(out, member)
		if progress != nil {
			progress(len(out), total)
		}
	}
}

// capacityHint bounds the preallocation so a bogus total cannot blow up memory.
func capacityHint(total int) int {
	const maxHint = 10000
	switch {
	case total <= 0:
		return 0
	case total > maxHint:
		return maxHint
	default:
		return total
	}
}
