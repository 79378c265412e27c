package utils

import (
	"golang.org/x/exp/constraints"
)

// Returns the items of a sequence that satisfy a predicate
func Filter[T any](input []T, predicate func(T) bool) []T {
	output := make([]T, 0, len(input))

	for _, value := range input {
		if predicate(value) {
			output = append(output, value)
		}
	}

	return output
}

// Returns true if any item of the sequence satisfies the predicate
func Any[T any](input []T, predicate func(T) bool) bool {
	for _, value := range input {
		if predicate(value) {
			return true
		}
	}

	return false
}

// Returns a copy of the sequence in reverse order
func Reversed[T any](input []T) []T {
	output := make([]T, len(input))

	for i := range input {
		output[len(input)-i-1] = input[i]
	}

	return output
}

// Returns the biggest item of a sequence
func Max[T constraints.Ordered](input []T) T {
	max := input[0]

	for _, item := range input {
		if item > max {
			max = item
		}
	}

	return max
}
