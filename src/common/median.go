package common

import (
	"sort"
)

// Median returns the median of a slice of int64 without modifying it. An
// even-sized input yields the mean of the two middle values, an empty input
// yields 0.
func Median(input []int64) int64 {
	s := make([]int64, len(input))
	copy(s, input)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })

	l := len(s)
	switch {
	case l == 0:
		return 0
	case l%2 == 0:
		mid := l/2 - 1
		return (s[mid] + s[mid+1]) / 2
	default:
		return s[l/2]
	}
}
