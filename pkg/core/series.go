package core

import (
	"golang.org/x/exp/constraints"
)

// Series is a time series of ordered values
type Series[T constraints.Ordered] []T

// Values returns the underlying slice of values
func (s Series[T]) Values() []T {
	return s
}

// Length returns the number of values in the series
func (s Series[T]) Length() int {
	return len(s)
}

// Last returns the value at a specified position from the end
// position 0 is the last value, 1 is the second-to-last, etc.
func (s Series[T]) Last(position int) T {
	return s[len(s)-1-position]
}

// LastValues returns a slice with the last 'size' values
// If size exceeds the length, returns the entire series
func (s Series[T]) LastValues(size int) Series[T] {
	if l := len(s); l > size {
		return s[l-size:]
	}
	return s
}

// Crossover detects when this series crosses above the reference series
func (s Series[T]) Crossover(ref Series[T]) bool {
	return s.Last(0) > ref.Last(0) && s.Last(1) <= ref.Last(1)
}

// Crossunder detects when this series crosses below the reference series
func (s Series[T]) Crossunder(ref Series[T]) bool {
	return s.Last(0) <= ref.Last(0) && s.Last(1) > ref.Last(1)
}

// Rising reports whether the series increased over the last 'span' values
func (s Series[T]) Rising(span int) bool {
	if len(s) <= span {
		return false
	}
	return s.Last(0) > s.Last(span)
}

// Falling reports whether the series decreased over the last 'span' values
func (s Series[T]) Falling(span int) bool {
	if len(s) <= span {
		return false
	}
	return s.Last(0) < s.Last(span)
}
