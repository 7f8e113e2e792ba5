package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaults(t *testing.T) {
	offset, limit, err := Pagination{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 0, offset)
	assert.Equal(t, DefaultPageSize, limit)

	_, limit, err = Pagination{PageSize: 10_000}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, limit)
}

func TestNormalizeRejectsGarbageToken(t *testing.T) {
	_, _, err := Pagination{PageToken: "%%%"}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestBuildPageInfoRoundTrip(t *testing.T) {
	items, info := BuildPageInfo([]int{1, 2, 3}, 20, 2)
	assert.Equal(t, []int{1, 2}, items)
	require.True(t, info.HasMore)

	offset, limit, err := Pagination{PageToken: info.NextPageToken, PageSize: 2}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 22, offset)
	assert.Equal(t, 2, limit)

	items, info = BuildPageInfo([]int{1}, 0, 2)
	assert.Equal(t, []int{1}, items)
	assert.False(t, info.HasMore)
}
