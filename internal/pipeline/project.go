package pipeline

import (
	"encoding/json"
	"sync"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/stage"
)

// Project is the set of sweeps processed together, with the stage preferences they were processed with. The
// project lock only guards the sweep list; each sweep serializes its own transitions.
type Project struct {
	mu          sync.RWMutex
	name        string
	preferences stage.Preferences
	order       []string
	sweeps      map[string]*SweepState
}

// NewProject returns an empty project.
func NewProject(name string) *Project {
	return &Project{name: name, sweeps: make(map[string]*SweepState)}
}

// Name returns the project name.
func (project *Project) Name() string {
	project.mu.RLock()
	defer project.mu.RUnlock()

	return project.name
}

// Preferences returns the stage preferences recorded for the project.
func (project *Project) Preferences() stage.Preferences {
	project.mu.RLock()
	defer project.mu.RUnlock()

	return project.preferences
}

// SetPreferences records the stage preferences the project is processed with.
func (project *Project) SetPreferences(prefs stage.Preferences) {
	project.mu.Lock()
	defer project.mu.Unlock()

	project.preferences = prefs
}

// AddSweep registers sweep and returns its state. A sweep already registered under the same name keeps its state
// when its data is unchanged; changed data starts it over.
func (project *Project) AddSweep(sweep stage.Sweep) (*SweepState, error) {
	if sweep.Name == "" {
		return nil, errors.Errorf("sweep has no name")
	}

	project.mu.Lock()
	defer project.mu.Unlock()

	if state, ok := project.sweeps[sweep.Name]; ok {
		if state.Sweep() == sweep {
			return state, nil
		}

		state = NewSweepState(sweep)
		project.sweeps[sweep.Name] = state

		return state, nil
	}

	state := NewSweepState(sweep)
	project.sweeps[sweep.Name] = state
	project.order = append(project.order, sweep.Name)

	return state, nil
}

// Sweep returns the state of the sweep called name.
func (project *Project) Sweep(name string) (*SweepState, error) {
	project.mu.RLock()
	defer project.mu.RUnlock()

	state, ok := project.sweeps[name]
	if !ok {
		return nil, errors.New(&UnknownSweepError{Name: name})
	}

	return state, nil
}

// Sweeps returns the sweep states in registration order.
func (project *Project) Sweeps() []*SweepState {
	project.mu.RLock()
	defer project.mu.RUnlock()

	states := make([]*SweepState, len(project.order))
	for i, name := range project.order {
		states[i] = project.sweeps[name]
	}

	return states
}

type projectJSON struct {
	Name        string            `json:"name"`
	Preferences stage.Preferences `json:"preferences"`
	Sweeps      []*SweepState     `json:"sweeps"`
}

// MarshalJSON implements json.Marshaler.
func (project *Project) MarshalJSON() ([]byte, error) {
	sweeps := project.Sweeps()

	project.mu.RLock()
	doc := projectJSON{Name: project.name, Preferences: project.preferences, Sweeps: sweeps}
	project.mu.RUnlock()

	return json.Marshal(doc)
}

// UnmarshalJSON implements json.Unmarshaler.
func (project *Project) UnmarshalJSON(data []byte) error {
	var doc projectJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.New(err)
	}

	project.mu.Lock()
	defer project.mu.Unlock()

	project.name = doc.Name
	project.preferences = doc.Preferences
	project.order = nil
	project.sweeps = make(map[string]*SweepState, len(doc.Sweeps))

	for _, state := range doc.Sweeps {
		if state == nil {
			continue
		}

		name := state.Name()
		if _, ok := project.sweeps[name]; ok {
			return errors.Errorf("sweep %q stored twice", name)
		}

		project.sweeps[name] = state
		project.order = append(project.order, name)
	}

	return nil
}
