package pathfind

// Budget caps the number of searches run during one scheduler pass. A zero limit
// means unlimited.
type Budget struct {
	limit int
	used  int
}

func NewBudget(limit int) *Budget { return &Budget{limit: limit} }

// Take reserves one search and reports whether it is allowed.
func (b *Budget) Take() bool {
	if b == nil || b.limit <= 0 {
		return true
	}
	if b.used >= b.limit {
		return false
	}
	b.used++
	return true
}

func (b *Budget) Reset() {
	if b != nil {
		b.used = 0
	}
}

func (b *Budget) Used() int {
	if b == nil {
		return 0
	}
	return b.used
}
