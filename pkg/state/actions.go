package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vjranagit/homeenergy/pkg/types"
)

// Action kinds, as they appear in the journal and in metrics.
const (
	KindNavigateView      = "NAVIGATE_VIEW"
	KindNavigateBack      = "NAVIGATE_BACK"
	KindPostAnalytics     = "POST_ANALYTICS"
	KindCollectionsChange = "COLLECTIONS_CHANGE"
	KindSeedNavigation    = "SEED_NAVIGATION"
)

// ErrUnknownAction is returned when decoding an unrecognised action kind
var ErrUnknownAction = errors.New("unknown action")

// Action is the closed set of state transitions. Only the types declared in
// this file implement it.
type Action interface {
	Kind() string
	action()
}

// NavigateView appends View to the navigation history.
type NavigateView struct {
	View string
}

// NavigateBack re-appends the previously visited view.
type NavigateBack struct{}

// PostAnalytics resets the navigation history once it has been reported.
type PostAnalytics struct{}

// CollectionsChange replaces the collection snapshot with Payload.
type CollectionsChange struct {
	Payload types.Collections
}

// SeedNavigation starts a new history holding only View, stamped with the
// dispatch time, and makes it the history PostAnalytics returns to. The
// action journal opens with one so a restart rebuilds the history from its
// original first entry.
type SeedNavigation struct {
	View string
}

func (NavigateView) Kind() string      { return KindNavigateView }
func (NavigateBack) Kind() string      { return KindNavigateBack }
func (PostAnalytics) Kind() string     { return KindPostAnalytics }
func (CollectionsChange) Kind() string { return KindCollectionsChange }
func (SeedNavigation) Kind() string    { return KindSeedNavigation }

func (NavigateView) action()      {}
func (NavigateBack) action()      {}
func (PostAnalytics) action()     {}
func (CollectionsChange) action() {}
func (SeedNavigation) action()    {}

type envelope struct {
	Type    string             `json:"type"`
	View    string             `json:"view,omitempty"`
	Payload *types.Collections `json:"payload,omitempty"`
}

// EncodeAction serialises a for the action journal
func EncodeAction(a Action) ([]byte, error) {
	env := envelope{Type: a.Kind()}
	switch a := a.(type) {
	case NavigateView:
		env.View = a.View
	case SeedNavigation:
		env.View = a.View
	case CollectionsChange:
		env.Payload = &a.Payload
	case NavigateBack, PostAnalytics:
	}
	return json.Marshal(env)
}

// DecodeAction parses an action written by EncodeAction
func DecodeAction(data []byte) (Action, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode action: %w", err)
	}

	switch env.Type {
	case KindNavigateView:
		return NavigateView{View: env.View}, nil
	case KindNavigateBack:
		return NavigateBack{}, nil
	case KindPostAnalytics:
		return PostAnalytics{}, nil
	case KindSeedNavigation:
		return SeedNavigation{View: env.View}, nil
	case KindCollectionsChange:
		var payload types.Collections
		if env.Payload != nil {
			payload = *env.Payload
		}
		return CollectionsChange{Payload: payload}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownAction, env.Type)
	}
}
