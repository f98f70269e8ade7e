package models

// Clamp01 clamps x into [0, 1]. Idempotent and monotonic.
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// InUnit reports whether x lies in [0, 1].
func InUnit(x float64) bool {
	return x >= 0 && x <= 1
}
