package report

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginationCoversEveryRowOnce(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 29, 30, 31, 60, 95} {
		n := n
		t.Run(fmt.Sprintf("%d rows", n), func(t *testing.T) {
			t.Parallel()

			items := make([]int, n)
			for i := range items {
				items[i] = i
			}

			pages := PageCount(n, DefaultPageSize)
			var joined []int
			for p := 1; p <= pages; p++ {
				page := Paginate(items, p, DefaultPageSize)
				require.NotEmpty(t, page)
				require.LessOrEqual(t, len(page), DefaultPageSize)
				joined = append(joined, page...)
			}
			if n == 0 {
				assert.Empty(t, joined)
				return
			}
			assert.Equal(t, items, joined)
		})
	}
}

func TestPaginateOutOfRange(t *testing.T) {
	items := []string{"a", "b", "c"}

	assert.Equal(t, []string{}, Paginate(items, 0, 2))
	assert.Equal(t, []string{}, Paginate(items, 3, 2))
	assert.Equal(t, []string{}, Paginate(items, 1<<40, 2))
	assert.Equal(t, []string{"c"}, Paginate(items, 2, 2))
	assert.Equal(t, items, Paginate(items, 1, 0), "non-positive size falls back to the default")
}

func TestPageCountAndClamp(t *testing.T) {
	assert.Equal(t, 0, PageCount(0, 30))
	assert.Equal(t, 1, PageCount(30, 30))
	assert.Equal(t, 2, PageCount(31, 30))

	assert.Equal(t, 1, ClampPage(0, 5))
	assert.Equal(t, 1, ClampPage(3, 0))
	assert.Equal(t, 5, ClampPage(9, 5))
	assert.Equal(t, 3, ClampPage(3, 5))
}
