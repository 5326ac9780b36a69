// Package pipeline tracks, per sweep, which stages hold a trustworthy result, and drives the stages in dependency
// order. Invalidating a stage invalidates everything downstream of it before the lock is released, so no reader
// ever sees a valid stage on top of an invalidated one.
package pipeline

import (
	"encoding/json"
	"maps"
	"strconv"
	"strings"
	"sync"

	"github.com/huandu/go-clone"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/logparse"
	"github.com/xia2/xia2-go/internal/stage"
)

// ParamCell is the indexer parameter holding a user supplied unit cell.
const ParamCell = "cell"

// Slot is the state of one stage of one sweep.
type Slot struct {
	Status    Status   `json:"status"`
	Candidate stage.ID `json:"candidate,omitempty"`
	// NotConfigured marks an optional stage no candidate was available for. Downstream stages do not wait on it.
	NotConfigured bool              `json:"not_configured,omitempty"`
	Params        map[string]string `json:"params,omitempty"`
	Result        *logparse.Record  `json:"result,omitempty"`
	// Attempts counts the failed runs of the current candidate.
	Attempts  int    `json:"attempts,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// satisfies reports whether a dependant may be valid on top of this slot.
func (slot *Slot) satisfies() bool {
	return slot.Status == Valid || (slot.Status == Absent && slot.NotConfigured)
}

// SweepState is the pipeline state of one sweep. All methods are safe for concurrent use; sweeps do not share locks.
type SweepState struct {
	mu    sync.Mutex
	sweep stage.Sweep
	slots map[stage.Kind]*Slot
}

// NewSweepState returns a state with every stage Absent.
func NewSweepState(sweep stage.Sweep) *SweepState {
	state := &SweepState{sweep: sweep, slots: make(map[stage.Kind]*Slot, len(stage.Kinds))}

	for _, kind := range stage.Kinds {
		state.slots[kind] = &Slot{}
	}

	return state
}

// Sweep returns the sweep the state belongs to.
func (state *SweepState) Sweep() stage.Sweep {
	return state.sweep
}

// Name returns the sweep name.
func (state *SweepState) Name() string {
	return state.sweep.Name
}

// Status returns the status of kind.
func (state *SweepState) Status(kind stage.Kind) Status {
	state.mu.Lock()
	defer state.mu.Unlock()

	return state.slot(kind).Status
}

// Slot returns a deep copy of the slot of kind.
func (state *SweepState) Slot(kind stage.Kind) Slot {
	state.mu.Lock()
	defer state.mu.Unlock()

	return clone.Clone(*state.slot(kind)).(Slot)
}

// Statuses returns the status of every stage in pipeline order.
func (state *SweepState) Statuses() []Status {
	state.mu.Lock()
	defer state.mu.Unlock()

	statuses := make([]Status, len(stage.Kinds))
	for i, kind := range stage.Kinds {
		statuses[i] = state.slot(kind).Status
	}

	return statuses
}

// Select records that id will produce kind's result. It moves an Absent or Invalidated stage to Pending.
func (state *SweepState) Select(kind stage.Kind, id stage.ID) error {
	if id.Kind() != kind {
		return errors.Errorf("candidate %s cannot serve as %s", id, kind)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	slot := state.slot(kind)

	if slot.Status != Absent && slot.Status != Invalidated {
		return errors.New(&TransitionError{Sweep: state.sweep.Name, Kind: kind, From: slot.Status, To: Pending})
	}

	if slot.Candidate != id {
		slot.Attempts = 0
	}

	slot.Status = Pending
	slot.Candidate = id
	slot.NotConfigured = false
	slot.Result = nil

	return nil
}

// SkipStage marks an Absent stage as not configured, so its dependants no longer wait on it.
func (state *SweepState) SkipStage(kind stage.Kind) error {
	state.mu.Lock()
	defer state.mu.Unlock()

	slot := state.slot(kind)

	if slot.Status != Absent && slot.Status != Invalidated {
		return errors.New(&TransitionError{Sweep: state.sweep.Name, Kind: kind, From: slot.Status, To: Absent})
	}

	slot.Status = Absent
	slot.Candidate = stage.None
	slot.NotConfigured = true
	slot.Result = nil

	return nil
}

// Reconfigure clears the not configured mark of kind. The dependants were accepted without it, so they are
// invalidated and returned.
func (state *SweepState) Reconfigure(kind stage.Kind) []stage.Kind {
	state.mu.Lock()
	defer state.mu.Unlock()

	slot := state.slot(kind)
	if !slot.NotConfigured {
		return nil
	}

	slot.NotConfigured = false

	return state.invalidate(kind, make(map[stage.Kind]bool), nil)
}

// Accept stores the result of a Pending stage and makes it Valid. Every stage it depends on must be valid.
func (state *SweepState) Accept(kind stage.Kind, result *logparse.Record) error {
	state.mu.Lock()
	defer state.mu.Unlock()

	slot := state.slot(kind)

	if slot.Status != Pending {
		return errors.New(&TransitionError{Sweep: state.sweep.Name, Kind: kind, From: slot.Status, To: Valid})
	}

	for _, up := range upstream[kind] {
		if upSlot := state.slot(up); !upSlot.satisfies() {
			return errors.New(&UpstreamNotValidError{Sweep: state.sweep.Name, Kind: kind, Upstream: up, Status: upSlot.Status})
		}
	}

	slot.Status = Valid
	slot.Result = result
	slot.LastError = ""

	return nil
}

// Fail records a failed run of a Pending stage, which becomes Invalidated so it can be rescheduled. It returns
// the number of failed runs of the current candidate.
func (state *SweepState) Fail(kind stage.Kind, cause error) (int, error) {
	state.mu.Lock()
	defer state.mu.Unlock()

	slot := state.slot(kind)

	if slot.Status != Pending {
		return slot.Attempts, errors.New(&TransitionError{Sweep: state.sweep.Name, Kind: kind, From: slot.Status, To: Invalidated})
	}

	slot.Status = Invalidated
	slot.Result = nil
	slot.Attempts++

	if cause != nil {
		slot.LastError = cause.Error()
	}

	return slot.Attempts, nil
}

// Invalidate invalidates kind and, depth first, every stage that depends on it. It returns the stages that went
// from Valid to Invalidated, in the order they were visited.
func (state *SweepState) Invalidate(kind stage.Kind) []stage.Kind {
	state.mu.Lock()
	defer state.mu.Unlock()

	return state.invalidate(kind, make(map[stage.Kind]bool), nil)
}

func (state *SweepState) invalidate(kind stage.Kind, visited map[stage.Kind]bool, changed []stage.Kind) []stage.Kind {
	if visited[kind] {
		return changed
	}

	visited[kind] = true

	if slot := state.slot(kind); slot.Status == Valid {
		slot.Status = Invalidated
		changed = append(changed, kind)
	}

	for _, dependant := range dependants[kind] {
		changed = state.invalidate(dependant, visited, changed)
	}

	return changed
}

// SetParameter sets a parameter of kind. A changed value invalidates kind and its dependants, which are returned.
// An empty value removes the parameter.
func (state *SweepState) SetParameter(kind stage.Kind, name, value string) []stage.Kind {
	state.mu.Lock()
	defer state.mu.Unlock()

	slot := state.slot(kind)

	if current, ok := slot.Params[name]; ok == (value != "") && current == value {
		return nil
	}

	if value == "" {
		delete(slot.Params, name)
	} else {
		if slot.Params == nil {
			slot.Params = make(map[string]string)
		}

		slot.Params[name] = value
	}

	return state.invalidate(kind, make(map[stage.Kind]bool), nil)
}

// OverrideCell sets the unit cell the indexer must use, invalidating the indexer and everything downstream.
func (state *SweepState) OverrideCell(cell [6]float64) []stage.Kind {
	words := make([]string, len(cell))
	for i, value := range cell {
		words[i] = strconv.FormatFloat(value, 'f', -1, 64)
	}

	return state.SetParameter(stage.Indexer, ParamCell, strings.Join(words, ","))
}

// ParseCell reads a unit cell of six numbers separated by commas or spaces: a, b, c, alpha, beta, gamma.
func ParseCell(str string) ([6]float64, error) {
	var cell [6]float64

	words := strings.FieldsFunc(str, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(words) != len(cell) {
		return cell, errors.Errorf("unit cell %q: want 6 values, got %d", str, len(words))
	}

	for i, word := range words {
		value, err := strconv.ParseFloat(word, 64)
		if err != nil || value <= 0 {
			return cell, errors.Errorf("unit cell %q: %q is not a positive number", str, word)
		}

		cell[i] = value
	}

	return cell, nil
}

// Params returns a copy of the parameters of kind.
func (state *SweepState) Params(kind stage.Kind) map[string]string {
	state.mu.Lock()
	defer state.mu.Unlock()

	return maps.Clone(state.slot(kind).Params)
}

// UpstreamResults returns the results of the valid stages kind depends on.
func (state *SweepState) UpstreamResults(kind stage.Kind) map[stage.Kind]*logparse.Record {
	state.mu.Lock()
	defer state.mu.Unlock()

	results := make(map[stage.Kind]*logparse.Record)

	for _, up := range upstream[kind] {
		if slot := state.slot(up); slot.Status == Valid && slot.Result != nil {
			results[up] = slot.Result
		}
	}

	return results
}

// Complete reports whether the sweep is accepted, which it is once the scaler is valid.
func (state *SweepState) Complete() bool {
	return state.Status(stage.Scaler) == Valid
}

func (state *SweepState) slot(kind stage.Kind) *Slot {
	slot, ok := state.slots[kind]
	if !ok {
		slot = &Slot{}
		state.slots[kind] = slot
	}

	return slot
}

type sweepStateJSON struct {
	Sweep  stage.Sweep          `json:"sweep"`
	Stages map[stage.Kind]*Slot `json:"stages"`
}

// MarshalJSON implements json.Marshaler.
func (state *SweepState) MarshalJSON() ([]byte, error) {
	state.mu.Lock()
	defer state.mu.Unlock()

	return json.Marshal(sweepStateJSON{Sweep: state.sweep, Stages: state.slots})
}

// UnmarshalJSON implements json.Unmarshaler. A stage stored as valid on top of a stage that is not is loaded as
// invalidated.
func (state *SweepState) UnmarshalJSON(data []byte) error {
	var doc sweepStateJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.New(err)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	state.sweep = doc.Sweep
	state.slots = make(map[stage.Kind]*Slot, len(stage.Kinds))

	for _, kind := range stage.Kinds {
		slot := doc.Stages[kind]
		if slot == nil {
			slot = &Slot{}
		}

		state.slots[kind] = slot
	}

	for _, kind := range stage.Kinds {
		if state.slots[kind].Status != Valid {
			continue
		}

		for _, up := range upstream[kind] {
			if !state.slots[up].satisfies() {
				state.invalidate(kind, make(map[stage.Kind]bool), nil)
				break
			}
		}
	}

	return nil
}
