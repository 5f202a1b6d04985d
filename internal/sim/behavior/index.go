package behavior

import "sort"

type set map[string]struct{}

// index keeps agent ids grouped by state, unit type and owner.
type index struct {
	byState map[State]set
	byType  map[string]set
	byOwner map[string]set
}

func newIndex() index {
	return index{byState: map[State]set{}, byType: map[string]set{}, byOwner: map[string]set{}}
}

func addTo[K comparable](m map[K]set, k K, id string) {
	s := m[k]
	if s == nil {
		s = set{}
		m[k] = s
	}
	s[id] = struct{}{}
}

func removeFrom[K comparable](m map[K]set, k K, id string) {
	s := m[k]
	if s == nil {
		return
	}
	delete(s, id)
	if len(s) == 0 {
		delete(m, k)
	}
}

func (ix index) add(a *Agent) {
	addTo(ix.byState, a.state, a.ID)
	addTo(ix.byType, a.Stats.UnitType, a.ID)
	addTo(ix.byOwner, a.Owner, a.ID)
}

func (ix index) remove(a *Agent) {
	removeFrom(ix.byState, a.state, a.ID)
	removeFrom(ix.byType, a.Stats.UnitType, a.ID)
	removeFrom(ix.byOwner, a.Owner, a.ID)
}

func (ix index) moveState(id string, from, to State) {
	removeFrom(ix.byState, from, id)
	addTo(ix.byState, to, id)
}

func sortedIDs(s set) []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
