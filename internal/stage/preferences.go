package stage

import (
	"sort"
	"strings"

	"github.com/xia2/xia2-go/internal/errors"
)

// Preferences names at most one candidate per stage kind. An unset (None) preference enables fallback.
type Preferences struct {
	Indexer    ID `json:"indexer,omitempty"`
	Refiner    ID `json:"refiner,omitempty"`
	Integrater ID `json:"integrater,omitempty"`
	Scaler     ID `json:"scaler,omitempty"`
}

// Get returns the preference for kind.
func (prefs Preferences) Get(kind Kind) ID {
	switch kind {
	case Indexer:
		return prefs.Indexer
	case Refiner:
		return prefs.Refiner
	case Integrater:
		return prefs.Integrater
	case Scaler:
		return prefs.Scaler
	}

	return None
}

// With returns a copy with the preference for kind set to id.
func (prefs Preferences) With(kind Kind, id ID) Preferences {
	switch kind {
	case Indexer:
		prefs.Indexer = id
	case Refiner:
		prefs.Refiner = id
	case Integrater:
		prefs.Integrater = id
	case Scaler:
		prefs.Scaler = id
	}

	return prefs
}

// Fill returns a copy where every unset preference is taken from defaults.
func (prefs Preferences) Fill(defaults Preferences) Preferences {
	for _, kind := range Kinds {
		if prefs.Get(kind) == None {
			prefs = prefs.With(kind, defaults.Get(kind))
		}
	}

	return prefs
}

// Validate checks that every set preference belongs to its kind.
func (prefs Preferences) Validate() error {
	for _, kind := range Kinds {
		if id := prefs.Get(kind); id != None && id.Kind() != kind {
			return errors.Errorf("%s preference %s is not a %s", kind, id, kind)
		}
	}

	return nil
}

// ParsePreferences builds preferences from candidate names keyed by stage name. Empty names are unset.
func ParsePreferences(names map[string]string) (Preferences, error) {
	var prefs Preferences

	for kindName, name := range names {
		kind, err := ParseKind(kindName)
		if err != nil {
			return prefs, err
		}

		id, err := ParseID(kind, name)
		if err != nil {
			return prefs, err
		}

		prefs = prefs.With(kind, id)
	}

	return prefs, nil
}

func (prefs Preferences) String() string {
	var parts []string

	for _, kind := range Kinds {
		if id := prefs.Get(kind); id != None {
			parts = append(parts, kind.String()+"="+id.Name())
		}
	}

	if len(parts) == 0 {
		return "none"
	}

	return strings.Join(parts, " ")
}

var presets = map[string]Preferences{
	"3d":            {Indexer: IndexerXDS, Refiner: RefinerXDS, Integrater: IntegraterXDSR, Scaler: ScalerXDSA},
	"3di":           {Indexer: IndexerXDS, Refiner: RefinerXDS, Integrater: IntegraterXDSR, Scaler: ScalerXDSA},
	"3dii":          {Indexer: IndexerXDSII, Refiner: RefinerXDS, Integrater: IntegraterXDSR, Scaler: ScalerXDSA},
	"3dd":           {Indexer: IndexerDials, Refiner: RefinerXDS, Integrater: IntegraterXDSR, Scaler: ScalerXDSA},
	"dials":         {Indexer: IndexerDials, Refiner: RefinerDials, Integrater: IntegraterDials, Scaler: ScalerDials},
	"dials-aimless": {Indexer: IndexerDials, Refiner: RefinerDials, Integrater: IntegraterDials, Scaler: ScalerCCP4A},
}

// Preset returns the preferences of a named pipeline.
func Preset(name string) (Preferences, error) {
	prefs, ok := presets[strings.ToLower(name)]
	if !ok {
		return Preferences{}, errors.Errorf("unknown pipeline %q, expected one of %s", name, strings.Join(PresetNames(), ", "))
	}

	return prefs, nil
}

// PresetNames returns the known pipeline names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
