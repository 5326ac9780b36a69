package pipeline

import (
	"github.com/xia2/xia2-go/internal/stage"
)

// upstream lists the stages each stage reads results from. The refiner sits between indexer and integrater;
// the integrater also reads the indexer directly so a sweep without a refiner still integrates.
var upstream = map[stage.Kind][]stage.Kind{
	stage.Indexer:    nil,
	stage.Refiner:    {stage.Indexer},
	stage.Integrater: {stage.Indexer, stage.Refiner},
	stage.Scaler:     {stage.Integrater},
}

// dependants is upstream reversed, in pipeline order.
var dependants = func() map[stage.Kind][]stage.Kind {
	reverse := make(map[stage.Kind][]stage.Kind, len(stage.Kinds))

	for _, kind := range stage.Kinds {
		for _, up := range upstream[kind] {
			reverse[up] = append(reverse[up], kind)
		}
	}

	return reverse
}()

// Upstream returns the stages kind depends on.
func Upstream(kind stage.Kind) []stage.Kind {
	return append([]stage.Kind(nil), upstream[kind]...)
}

// Dependants returns the stages that depend on kind directly.
func Dependants(kind stage.Kind) []stage.Kind {
	return append([]stage.Kind(nil), dependants[kind]...)
}
