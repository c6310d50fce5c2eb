package types

// Threshold returns the default consensus threshold for n agents,
// the smallest count strictly greater than two thirds of n.
func Threshold(n int) int {
	if n <= 0 {
		return 0
	}
	return 2*n/3 + 1
}

// ResolveThreshold returns configured when positive, Threshold(n) otherwise.
func ResolveThreshold(n, configured int) int {
	if configured > 0 {
		return configured
	}
	return Threshold(n)
}
