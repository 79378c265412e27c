package utils

import (
	"fmt"
	"strings"
)

// Returns an string containing all formatted sequence items separated by a given separator
func FormatSlice[T any](input []T, separator string) string {
	var builder strings.Builder

	for i, value := range input {
		builder.WriteString(fmt.Sprint(value))

		if i < len(input)-1 {
			builder.WriteString(separator)
		}
	}

	return builder.String()
}

// Splits a comma separated list, trimming spaces and dropping empty items
func SplitList(text string) []string {
	return Filter(Map(strings.Split(text, ","), strings.TrimSpace), func(item string) bool {
		return item != ""
	})
}
