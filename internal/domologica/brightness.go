package domologica

// MaxBrightness is the top of the Home Assistant brightness scale.
const MaxBrightness = 255

// ToNative maps a UI brightness in [0, maxUI] to the gateway's 0-100 level,
// rounding half up.
func ToNative(ui, maxUI int) int {
	ui = clamp(ui, 0, maxUI)
	return roundDiv(ui*100, maxUI)
}

// ToUI maps a native 0-100 level to [0, maxUI], rounding half up.
func ToUI(native, maxUI int) int {
	native = clamp(native, 0, 100)
	return roundDiv(native*maxUI, 100)
}

func roundDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (2*a + b) / (2 * b)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
