package utils

func POW(x float64, pp int) (y float64) {
	var (
		p = pp
	)
	if pp < 0 {
		p = -pp
	}
	y = 1
	for i := 0; i < p; i++ {
		y *= x
	}
	if pp < 0 {
		y = 1. / y
	}
	return
}

func ConstArray(val float64, n int) (a []float64) {
	a = make([]float64, n)
	for i := range a {
		a[i] = val
	}
	return
}

func Imin(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func Imax(a, b int) int {
	if a > b {
		return a
	}
	return b
}
