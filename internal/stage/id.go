package stage

import (
	"strings"

	"github.com/xia2/xia2-go/internal/errors"
)

// ID identifies one candidate implementation. The set is closed: a new implementation is a new constant here
// plus an entry in its kind's table.
type ID int

const (
	None ID = iota

	IndexerDials
	IndexerXDS
	IndexerXDSII

	RefinerDials
	RefinerXDS

	IntegraterDials
	IntegraterMosflmR
	IntegraterXDSR

	ScalerDials
	ScalerCCP4A
	ScalerXDSA

	numIDs
)

var idInfo = [numIDs]struct {
	kind Kind
	name string
}{
	None:              {-1, ""},
	IndexerDials:      {Indexer, "dials"},
	IndexerXDS:        {Indexer, "xds"},
	IndexerXDSII:      {Indexer, "xdsii"},
	RefinerDials:      {Refiner, "dials"},
	RefinerXDS:        {Refiner, "xds"},
	IntegraterDials:   {Integrater, "dials"},
	IntegraterMosflmR: {Integrater, "mosflmr"},
	IntegraterXDSR:    {Integrater, "xdsr"},
	ScalerDials:       {Scaler, "dials"},
	ScalerCCP4A:       {Scaler, "ccp4a"},
	ScalerXDSA:        {Scaler, "xdsa"},
}

// Kind returns the stage kind the candidate implements.
func (id ID) Kind() Kind {
	if id <= None || id >= numIDs {
		return -1
	}

	return idInfo[id].kind
}

// Name returns the candidate's name within its kind, such as `dials` or `ccp4a`.
func (id ID) Name() string {
	if id <= None || id >= numIDs {
		return ""
	}

	return idInfo[id].name
}

// String returns `<kind>/<name>`.
func (id ID) String() string {
	if id == None {
		return "none"
	}

	if id < None || id >= numIDs {
		return "invalid"
	}

	return id.Kind().String() + "/" + id.Name()
}

// ParseID returns the candidate of kind called name. An empty name yields None.
func ParseID(kind Kind, name string) (ID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return None, nil
	}

	for id := None + 1; id < numIDs; id++ {
		if idInfo[id].kind == kind && strings.EqualFold(idInfo[id].name, name) {
			return id, nil
		}
	}

	return None, errors.New(&UnknownCandidateError{Kind: kind, Name: name})
}

// CandidateNames returns the names of every candidate of kind, in declaration order.
func CandidateNames(kind Kind) []string {
	var names []string

	for id := None + 1; id < numIDs; id++ {
		if idInfo[id].kind == kind {
			names = append(names, idInfo[id].name)
		}
	}

	return names
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	if id == None {
		return []byte{}, nil
	}

	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*id = None
		return nil
	}

	kindName, name, ok := strings.Cut(string(text), "/")
	if !ok {
		return errors.Errorf("malformed candidate %q, expected <stage>/<name>", string(text))
	}

	kind, err := ParseKind(kindName)
	if err != nil {
		return err
	}

	parsed, err := ParseID(kind, name)
	if err != nil {
		return err
	}

	*id = parsed

	return nil
}
