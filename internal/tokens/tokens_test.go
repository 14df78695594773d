package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "w"
	}
	return strings.Join(w, " ")
}

func TestCount(t *testing.T) {
	assert.Equal(t, 0, Count(""))
	assert.Equal(t, 0, Count(" \n\t "))
	assert.Equal(t, 3, Count("  one\ntwo\tthree "))
}

func TestTrim(t *testing.T) {
	testCases := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"shorter than budget", "a b", 5, "a b"},
		{"collapses whitespace", "a\n\nb  c", 5, "a b c"},
		{"cuts", "a b c d", 2, "a b"},
		{"zero budget", "a b", 0, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Trim(tc.text, tc.max))
		})
	}
}

func TestTrimWithFloor(t *testing.T) {
	text := words(80)
	assert.Equal(t, 50, Count(TrimWithFloor(text, 3, 10, 50)))
	assert.Equal(t, 10, Count(TrimWithFloor(text, 10, 10, 50)))
	assert.Equal(t, 70, Count(TrimWithFloor(text, 70, 10, 50)))
}

func TestHead(t *testing.T) {
	assert.Equal(t, "one two\nthree", Head("one two\nthree four", 3))
	assert.Equal(t, "one two", Head("one two", 5))
	assert.Equal(t, "", Head("one", 0))
	assert.Equal(t, "  one", Head("  one  two", 1))
}

func TestCap(t *testing.T) {
	under := words(1400)
	assert.Equal(t, under, Cap(under, 1400, 1000))

	over := words(1401)
	assert.Equal(t, 1000, Count(Cap(over, 1400, 1000)))
}
