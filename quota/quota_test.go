package quota

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanCreate(t *testing.T) {
	cases := []struct {
		name     string
		usage    Usage
		expected bool
	}{
		{
			name:     "under the limit",
			usage:    Usage{Current: 2, Max: 5},
			expected: true,
		},
		{
			name:     "exactly one slot left",
			usage:    Usage{Current: 4, Max: 5},
			expected: true,
		},
		{
			name:     "at the limit",
			usage:    Usage{Current: 5, Max: 5},
			expected: false,
		},
		{
			name:     "over the limit after a downgrade",
			usage:    Usage{Current: 8, Max: 5},
			expected: false,
		},
		{
			name:     "unlimited plan",
			usage:    Usage{Current: 10000, Max: Unlimited},
			expected: true,
		},
		{
			name:     "zero max fails closed",
			usage:    Usage{Current: 0, Max: 0},
			expected: false,
		},
		{
			name:     "negative max other than the marker fails closed",
			usage:    Usage{Current: 0, Max: -5},
			expected: false,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, c.usage.CanCreate())
		})
	}
}

func TestCanAddBatch(t *testing.T) {
	u := Usage{Current: 3, Max: 10}
	assert.True(t, u.CanAdd(7))
	assert.False(t, u.CanAdd(8))

	unlimited := Usage{Current: 3, Max: Unlimited}
	assert.True(t, unlimited.CanAdd(100000))
}

func TestPercentage(t *testing.T) {
	cases := []struct {
		name     string
		usage    Usage
		expected int
	}{
		{
			name:     "empty",
			usage:    Usage{Current: 0, Max: 5},
			expected: 0,
		},
		{
			name:     "rounds to nearest",
			usage:    Usage{Current: 1, Max: 3},
			expected: 33,
		},
		{
			name:     "rounds up",
			usage:    Usage{Current: 2, Max: 3},
			expected: 67,
		},
		{
			name:     "full",
			usage:    Usage{Current: 5, Max: 5},
			expected: 100,
		},
		{
			name:     "clamped when over",
			usage:    Usage{Current: 8, Max: 5},
			expected: 100,
		},
		{
			name:     "unlimited is never full",
			usage:    Usage{Current: 8, Max: Unlimited},
			expected: 0,
		},
		{
			name:     "zero max reads as full",
			usage:    Usage{Current: 0, Max: 0},
			expected: 100,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, c.usage.Percentage())
		})
	}
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check(KindPlaces, Usage{Current: 1, Max: 5}, 1))

	err := Check(KindPhotos, Usage{Current: 20, Max: 20}, 1)
	assert.Error(t, err)

	var exceeded *ExceededError
	assert.True(t, errors.As(err, &exceeded))
	assert.Equal(t, KindPhotos, exceeded.Kind)
	assert.Equal(t, 20, exceeded.Usage.Current)
	assert.Contains(t, exceeded.Error(), "photos")
}
