package utils

// Index is an ordered list of integer indices into a flat array.
type Index []int

func NewIndex(n int) (I Index) {
	I = make(Index, n)
	return
}

func NewRange(min, max int) (I Index) {
	// Inclusive range [min, max]
	I = make(Index, max-min+1)
	for i := range I {
		I[i] = min + i
	}
	return
}

func (I Index) Add(val int) (R Index) {
	R = make(Index, len(I))
	for i, ival := range I {
		R[i] = ival + val
	}
	return
}

func (I Index) Apply(f func(val int) int) (R Index) {
	R = make(Index, len(I))
	for i, ival := range I {
		R[i] = f(ival)
	}
	return
}

func (I Index) Subset(J Index) (R Index) {
	R = make(Index, len(J))
	for i, jval := range J {
		R[i] = I[jval]
	}
	return
}

func (I Index) Contains(val int) bool {
	for _, ival := range I {
		if ival == val {
			return true
		}
	}
	return false
}
