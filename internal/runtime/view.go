package runtime

import (
	"github.com/l0p7/worryhero/internal/catalog"
	"github.com/l0p7/worryhero/internal/profile"
	"github.com/l0p7/worryhero/internal/scheduler"
)

// State is how the presentation layer should render a catalog item.
type State string

const (
	// StateResolved means a cached asset exists.
	StateResolved State = "resolved"
	// StateLoading means a fetch is in flight.
	StateLoading State = "loading"
	// StatePlaceholder means there is neither an asset nor a pending fetch.
	StatePlaceholder State = "placeholder"
)

// ItemView is one catalog item as it should be displayed.
type ItemView struct {
	ID          string       `json:"id"`
	Kind        catalog.Kind `json:"kind"`
	DisplayName string       `json:"displayName"`
	MonsterName string       `json:"monsterName,omitempty"`
	Emoji       string       `json:"emoji"`
	State       State        `json:"state"`
	// Degraded marks assets that will not survive a restart.
	Degraded bool `json:"degraded,omitempty"`
}

// View is a consistent read of the subsystem for the presentation layer.
type View struct {
	Generation int64             `json:"generation"`
	Items      []ItemView        `json:"items"`
	InFlight   []string          `json:"inFlight"`
	Step       profile.Step      `json:"step"`
	Photos     int               `json:"photos"`
	LastRun    *scheduler.Report `json:"lastRun,omitempty"`
}

// Snapshot resolves every catalog item in catalog order. Assets are never
// fetched here; items without one render as loading or placeholder.
func (r *Runtime) Snapshot() View {
	// In-flight ids are read before the cache: a fetch stores its payload
	// before leaving the set, so an item is never seen in neither.
	pending := r.tracker.Snapshot()
	inFlight := make(map[string]struct{}, len(pending))
	for _, id := range pending {
		inFlight[id] = struct{}{}
	}
	assets := r.store.Snapshot()
	degraded := make(map[string]struct{})
	for _, id := range r.store.Degraded() {
		degraded[id] = struct{}{}
	}

	items := r.catalog.Items()
	view := View{
		Generation: r.Generation(),
		Items:      make([]ItemView, 0, len(items)),
		InFlight:   pending,
		Step:       r.profile.Step(),
		Photos:     len(r.profile.Photos()),
	}
	if view.InFlight == nil {
		view.InFlight = []string{}
	}
	for _, item := range items {
		iv := ItemView{
			ID:          item.ID,
			Kind:        item.Kind,
			DisplayName: item.DisplayName,
			MonsterName: item.MonsterName,
			Emoji:       item.Emoji,
			State:       resolve(item.ID, assets, inFlight),
		}
		if _, ok := degraded[item.ID]; ok {
			iv.Degraded = true
		}
		view.Items = append(view.Items, iv)
	}
	if rep, ok := r.LastReport(); ok {
		view.LastRun = &rep
	}
	return view
}

// Asset returns the payload and state for one catalog item. known is false
// for ids outside the catalog.
func (r *Runtime) Asset(id string) (payload string, state State, known bool) {
	if !r.catalog.Has(id) {
		return "", "", false
	}
	loading := r.tracker.Contains(id)
	if payload, ok := r.store.Get(id); ok {
		return payload, StateResolved, true
	}
	if loading {
		return "", StateLoading, true
	}
	return "", StatePlaceholder, true
}

func resolve(id string, assets map[string]string, inFlight map[string]struct{}) State {
	if _, ok := assets[id]; ok {
		return StateResolved
	}
	if _, ok := inFlight[id]; ok {
		return StateLoading
	}
	return StatePlaceholder
}
