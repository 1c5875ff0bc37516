package state

import "github.com/vjranagit/homeenergy/pkg/types"

// ReduceCollections applies a to the collection snapshot. A change replaces
// the snapshot wholesale; producers always send the complete state.
func ReduceCollections(s types.Collections, a Action) types.Collections {
	switch a := a.(type) {
	case CollectionsChange:
		return a.Payload
	case NavigateView, NavigateBack, PostAnalytics, SeedNavigation:
		return s
	default:
		return s
	}
}
