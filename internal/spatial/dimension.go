package spatial

// DimensionMatcher reports whether something in dimension a can see
// something in dimension b.
type DimensionMatcher func(a, b int32) bool

// ExactDimension matches equal dimensions only.
func ExactDimension(a, b int32) bool { return a == b }

// NewDimensionMatcher returns a matcher where the listed global dimensions
// match every other dimension. With no globals it is ExactDimension.
func NewDimensionMatcher(globals []int32) DimensionMatcher {
	if len(globals) == 0 {
		return ExactDimension
	}
	set := make(map[int32]struct{}, len(globals))
	for _, d := range globals {
		set[d] = struct{}{}
	}
	return func(a, b int32) bool {
		if a == b {
			return true
		}
		if _, ok := set[a]; ok {
			return true
		}
		_, ok := set[b]
		return ok
	}
}
