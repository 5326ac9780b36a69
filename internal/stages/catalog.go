package stages

import (
	"github.com/xia2/xia2-go/internal/stage"
)

// DefaultCatalog returns the candidate tables of every stage in priority order.
func DefaultCatalog() (*stage.Catalog, error) {
	indexers, err := stage.NewTable(stage.Indexer,
		stage.Entry{ID: stage.IndexerDials, New: dialsIndexer()},
		stage.Entry{ID: stage.IndexerXDS, New: xdsIndexer()},
		stage.Entry{ID: stage.IndexerXDSII, New: xdsIIIndexer()},
	)
	if err != nil {
		return nil, err
	}

	refiners, err := stage.NewTable(stage.Refiner,
		stage.Entry{ID: stage.RefinerDials, New: dialsRefiner()},
		stage.Entry{ID: stage.RefinerXDS, New: xdsRefiner()},
	)
	if err != nil {
		return nil, err
	}

	integraters, err := stage.NewTable(stage.Integrater,
		stage.Entry{ID: stage.IntegraterDials, New: dialsIntegrater()},
		stage.Entry{
			ID:      stage.IntegraterMosflmR,
			New:     mosflmIntegrater(),
			Implies: stage.Preferences{Scaler: stage.ScalerCCP4A},
		},
		stage.Entry{ID: stage.IntegraterXDSR, New: xdsIntegrater()},
	)
	if err != nil {
		return nil, err
	}

	scalers, err := stage.NewTable(stage.Scaler,
		stage.Entry{ID: stage.ScalerDials, New: dialsScaler()},
		stage.Entry{ID: stage.ScalerCCP4A, New: aimlessScaler()},
		stage.Entry{ID: stage.ScalerXDSA, New: xdsScaler()},
	)
	if err != nil {
		return nil, err
	}

	return stage.NewCatalog(indexers, refiners, integraters, scalers)
}
