package stage

import (
	"context"

	"github.com/xia2/xia2-go/internal/errors"
)

// Outcome tells whether selection produced an implementation.
type Outcome int

const (
	// NoneAvailable means no preference was set and no candidate can run here. The stage is unconfigured.
	NoneAvailable Outcome = iota
	// Selected means Selection.Impl is set.
	Selected
)

func (outcome Outcome) String() string {
	if outcome == Selected {
		return "selected"
	}

	return "none available"
}

// Tried records one candidate that was attempted and passed over.
type Tried struct {
	ID     ID
	Status Status
	Err    error
}

// Selection is the result of Select.
type Selection struct {
	Outcome Outcome
	ID      ID
	Impl    Implementation
	// Implies are preference updates that come with the selected candidate.
	Implies Preferences
	Tried   []Tried
}

// Select picks an implementation from the table.
//
//   - With a preference, only that candidate is attempted; if it is unavailable the result is a
//     PreselectedNotAvailableError.
//   - Without one, candidates are attempted in priority order and the first available wins.
//   - Without one and with nothing available, the Outcome is NoneAvailable and the error is nil.
//
// A candidate whose construction fails for any other reason stops selection with a ConstructionError.
func (table *Table) Select(ctx context.Context, preference ID, env Env) (Selection, error) {
	if preference != None {
		return table.selectPreferred(ctx, preference, env)
	}

	var selection Selection

	for _, entry := range table.entries {
		if err := ctx.Err(); err != nil {
			return selection, errors.New(err)
		}

		attempt := entry.New(ctx, env)

		switch attempt.Status {
		case Available:
			selection.Outcome = Selected
			selection.ID = entry.ID
			selection.Impl = attempt.Impl
			selection.Implies = entry.Implies

			return selection, nil
		case Unavailable:
			selection.Tried = append(selection.Tried, Tried{ID: entry.ID, Status: Unavailable, Err: attempt.Err})

			if env.Logger != nil {
				env.Logger.Debugf("%s not available: %v", entry.ID, attempt.Err)
			}
		default:
			return selection, errors.New(&ConstructionError{ID: entry.ID, Err: attempt.Err})
		}
	}

	return selection, nil
}

func (table *Table) selectPreferred(ctx context.Context, preference ID, env Env) (Selection, error) {
	if preference.Kind() != table.kind {
		return Selection{}, errors.Errorf("candidate %s cannot serve as %s", preference, table.kind)
	}

	entry, ok := table.Lookup(preference)
	if !ok {
		return Selection{}, errors.New(&UnknownCandidateError{Kind: table.kind, Name: preference.Name()})
	}

	attempt := entry.New(ctx, env)

	switch attempt.Status {
	case Available:
		return Selection{Outcome: Selected, ID: entry.ID, Impl: attempt.Impl, Implies: entry.Implies}, nil
	case Unavailable:
		return Selection{Tried: []Tried{{ID: entry.ID, Status: Unavailable, Err: attempt.Err}}},
			errors.New(&PreselectedNotAvailableError{ID: entry.ID, Err: attempt.Err})
	default:
		return Selection{}, errors.New(&ConstructionError{ID: entry.ID, Err: attempt.Err})
	}
}
