package cube

// Extinction is an atmospheric extinction curve in magnitudes per airmass,
// tabulated on ascending wavelengths (Å).
type Extinction struct {
	Source        string
	Lambda        []float64
	MagPerAirmass []float64
}

// At returns k(λ) by linear interpolation, clamped to the end values
// outside the table.
func (e Extinction) At(lbda float64) float64 {
	n := len(e.Lambda)
	switch {
	case n == 0:
		return 0
	case lbda <= e.Lambda[0]:
		return e.MagPerAirmass[0]
	case lbda >= e.Lambda[n-1]:
		return e.MagPerAirmass[n-1]
	}
	v, _ := interp(e.Lambda, e.MagPerAirmass, lbda)

	return v
}

// PalomarExtinction returns the Hayes & Latham (1975) Palomar curve.
func PalomarExtinction() Extinction {
	tab := [][2]float64{
		{3200, 1.058}, {3250, 0.911}, {3300, 0.826}, {3350, 0.757}, {3390, 0.719},
		{3448, 0.663}, {3509, 0.617}, {3571, 0.575}, {3636, 0.537}, {3704, 0.500},
		{3862, 0.428}, {4036, 0.364}, {4167, 0.325}, {4255, 0.302}, {4464, 0.256},
		{4566, 0.238}, {4785, 0.206}, {5000, 0.183}, {5263, 0.164}, {5556, 0.151},
		{5840, 0.140}, {6055, 0.133}, {6435, 0.104}, {6790, 0.084}, {7100, 0.071},
		{7550, 0.061}, {7780, 0.055}, {8090, 0.051}, {8370, 0.048}, {8708, 0.044},
		{9832, 0.036}, {10255, 0.034}, {10610, 0.032}, {10795, 0.032}, {10870, 0.031},
	}
	e := Extinction{
		Source:        "Hayes & Latham 1975",
		Lambda:        make([]float64, len(tab)),
		MagPerAirmass: make([]float64, len(tab)),
	}
	for i, row := range tab {
		e.Lambda[i], e.MagPerAirmass[i] = row[0], row[1]
	}

	return e
}
