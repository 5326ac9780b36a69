package stage

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Availability is the availability of one candidate.
type Availability struct {
	ID     ID
	Status Status
	Err    error
}

// CheckAvailability attempts every candidate of every kind concurrently and returns the results in table order.
// Construction attempts share nothing but the read-only tables and the executable lookup cache.
func (catalog *Catalog) CheckAvailability(ctx context.Context, env Env, concurrency int) ([]Availability, error) {
	var entries []Entry

	for _, kind := range Kinds {
		entries = append(entries, catalog.tables[kind].entries...)
	}

	results := make([]Availability, len(entries))

	group, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		group.SetLimit(concurrency)
	}

	for i, entry := range entries {
		group.Go(func() error {
			attempt := entry.New(ctx, env)
			results[i] = Availability{ID: entry.ID, Status: attempt.Status, Err: attempt.Err}

			return ctx.Err()
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
