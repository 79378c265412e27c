package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeError(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := MakeError(sentinel, "value %v of %v", 1, "two")

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, "sentinel: value 1 of two", err.Error())
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: []string{}},
		{name: "single", input: "foo", expected: []string{"foo"}},
		{name: "spaces", input: " foo , bar,baz ", expected: []string{"foo", "bar", "baz"}},
		{name: "empty items", input: "foo,,bar,", expected: []string{"foo", "bar"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.input))
		})
	}
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 3, "a": 1, "b": 2}))
}

func TestInvertedMap(t *testing.T) {
	assert.Equal(t, map[string]int{"one": 1, "two": 2}, InvertedMap(map[int]string{1: "one", 2: "two"}))
}

func TestReversed(t *testing.T) {
	input := []int{1, 2, 3}
	assert.Equal(t, []int{3, 2, 1}, Reversed(input))
	assert.Equal(t, []int{1, 2, 3}, input)
}
