package array

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSliceContains(t *testing.T) {
	assert.True(t, SliceContains([]string{"a", "b"}, "a"))
	assert.False(t, SliceContains([]string{"a", "b"}, "c"))
	assert.False(t, SliceContains([]string{}, "a"))
}

func TestSliceRemove(t *testing.T) {
	assert.Equal(t, []int{1, 3}, SliceRemove([]int{1, 2, 3, 2}, 2))
	assert.Equal(t, []int{}, SliceRemove([]int{}, 1))
}

func TestSliceUnique(t *testing.T) {
	t.Run("去重保持顺序", func(t *testing.T) {
		assert.Equal(t, []string{"u1", "u2", "u3"}, SliceUnique([]string{"u1", "u2", "u1", "u3", "u2"}))
	})

	t.Run("空切片", func(t *testing.T) {
		assert.Equal(t, []string{}, SliceUnique([]string{}))
	})
}

func TestSliceFilter(t *testing.T) {
	even := SliceFilter([]int{1, 2, 3, 4}, func(v int) bool { return v%2 == 0 })
	assert.Equal(t, []int{2, 4}, even)
}

func TestSliceMap(t *testing.T) {
	doubled := SliceMap([]int{1, 2, 3}, func(v int) int { return v * 2 })
	assert.Equal(t, []int{2, 4, 6}, doubled)
}
