package domain

// Regions is the set of regions a grant covers. It is an explicit sum type:
// either Global (every syntactically valid region) or a finite subset. The
// zero value is the empty subset, which grants nothing — unrestricted access
// must be stated with GlobalRegions(), never implied by emptiness.
type Regions struct {
	global bool
	set    map[RegionID]struct{}
}

// GlobalRegions returns the unrestricted region set.
func GlobalRegions() Regions {
	return Regions{global: true}
}

// RegionSubset returns a region set covering exactly the given regions.
func RegionSubset(ids ...RegionID) Regions {
	set := make(map[RegionID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Regions{set: set}
}

// IsGlobal reports whether the set is unrestricted.
func (r Regions) IsGlobal() bool { return r.global }

// IsEmpty reports whether the set covers no region at all.
func (r Regions) IsEmpty() bool { return !r.global && len(r.set) == 0 }

// Contains reports whether the set covers the given region.
func (r Regions) Contains(id RegionID) bool {
	if r.global {
		return true
	}
	_, ok := r.set[id]
	return ok
}

// Union returns a new set covering both operands. Global absorbs everything.
func (r Regions) Union(other Regions) Regions {
	if r.global || other.global {
		return GlobalRegions()
	}
	set := make(map[RegionID]struct{}, len(r.set)+len(other.set))
	for id := range r.set {
		set[id] = struct{}{}
	}
	for id := range other.set {
		set[id] = struct{}{}
	}
	return Regions{set: set}
}

// List returns the member regions; nil for the global set.
func (r Regions) List() []RegionID {
	if r.global {
		return nil
	}
	out := make([]RegionID, 0, len(r.set))
	for id := range r.set {
		out = append(out, id)
	}
	return out
}
