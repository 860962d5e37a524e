package village

import "sort"

const (
	Food  = "food"
	Wood  = "wood"
	Stone = "stone"
	Gold  = "gold"
)

// DefaultCaps are the capacities used when a resource has no explicit cap.
var DefaultCaps = map[string]int{
	Food:  500,
	Wood:  500,
	Stone: 500,
	Gold:  1000,
}

// Resources holds capped totals. Amounts never exceed their cap.
type Resources struct {
	Amounts map[string]int `json:"amounts"`
	Caps    map[string]int `json:"caps"`
}

// NewResources returns totals with caps (DefaultCaps for nil).
func NewResources(caps map[string]int) *Resources {
	if caps == nil {
		caps = DefaultCaps
	}
	r := &Resources{Amounts: map[string]int{}, Caps: map[string]int{}}
	for k, v := range caps {
		r.Caps[k] = v
	}
	return r
}

func (r *Resources) Get(name string) int { return r.Amounts[name] }

// Cap returns the capacity of name; 0 means uncapped.
func (r *Resources) Cap(name string) int { return r.Caps[name] }

// Add grants n units clamped to the cap and returns what was actually
// stored. Whichever grant reaches the cap first absorbs the remaining
// headroom, so the final total is min(cap, start+sum(gains)) in any order.
func (r *Resources) Add(name string, n int) int {
	if n <= 0 {
		return 0
	}
	if r.Amounts == nil {
		r.Amounts = map[string]int{}
	}
	cur := r.Amounts[name]
	next := cur + n
	if c := r.Caps[name]; c > 0 && next > c {
		next = c
	}
	if next < cur {
		next = cur
	}
	r.Amounts[name] = next
	return next - cur
}

// Spend removes n units if available.
func (r *Resources) Spend(name string, n int) bool {
	if n <= 0 {
		return true
	}
	if r.Amounts[name] < n {
		return false
	}
	r.Amounts[name] -= n
	return true
}

// CanAfford reports whether every cost is covered.
func (r *Resources) CanAfford(cost map[string]int) bool {
	for k, n := range cost {
		if n > 0 && r.Amounts[k] < n {
			return false
		}
	}
	return true
}

// SpendAll spends cost atomically: either everything or nothing.
func (r *Resources) SpendAll(cost map[string]int) bool {
	if !r.CanAfford(cost) {
		return false
	}
	for _, k := range sortedNames(cost) {
		r.Spend(k, cost[k])
	}
	return true
}

func sortedNames(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
