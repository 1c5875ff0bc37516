package state

import (
	"time"

	"github.com/vjranagit/homeenergy/pkg/types"
)

// HomeView is the view every history starts from
const HomeView = "home"

// NavigationState is the analytics slice of the state: the views visited
// since the last report, oldest first. It is never empty.
type NavigationState struct {
	History []types.NavigationEntry `json:"navigationHistory"`
}

// InitialNavigation returns a fresh history seeded with the home view at now
func InitialNavigation(now time.Time) NavigationState {
	return seedNavigation(HomeView, now)
}

func seedNavigation(view string, now time.Time) NavigationState {
	return NavigationState{
		History: []types.NavigationEntry{{View: view, Timestamp: now.UnixMilli()}},
	}
}

// Len returns the number of entries in the history
func (s NavigationState) Len() int {
	return len(s.History)
}

// Current returns the most recent entry
func (s NavigationState) Current() types.NavigationEntry {
	if len(s.History) == 0 {
		return types.NavigationEntry{}
	}
	return s.History[len(s.History)-1]
}

// ReduceNavigation applies a to s. initial is the state restored by
// PostAnalytics; now stamps appended entries. SeedNavigation replaces the
// whole history, so its timestamp is not clamped against the old one.
func ReduceNavigation(s NavigationState, a Action, now time.Time, initial NavigationState) NavigationState {
	switch a := a.(type) {
	case NavigateView:
		return s.appendView(a.View, now)
	case NavigateBack:
		// Going back needs a previous entry; with only one there is nowhere to go.
		if len(s.History) < 2 {
			return s
		}
		return s.appendView(s.History[len(s.History)-2].View, now)
	case PostAnalytics:
		return initial
	case SeedNavigation:
		return seedNavigation(a.View, now)
	case CollectionsChange:
		return s
	default:
		return s
	}
}

func (s NavigationState) appendView(view string, now time.Time) NavigationState {
	ts := now.UnixMilli()
	if n := len(s.History); n > 0 && ts < s.History[n-1].Timestamp {
		ts = s.History[n-1].Timestamp
	}

	history := make([]types.NavigationEntry, len(s.History), len(s.History)+1)
	copy(history, s.History)
	history = append(history, types.NavigationEntry{View: view, Timestamp: ts})
	return NavigationState{History: history}
}
