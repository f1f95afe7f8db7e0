package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseISO8601Duration(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"PT1H2M3S", 3723},
		{"PT45S", 45},
		{"PT10M", 600},
		{"PT2H", 7200},
		{"PT0S", 0},
	}
	for _, c := range cases {
		got, err := ParseISO8601Duration(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestParseISO8601Duration_Invalid(t *testing.T) {
	_, err := ParseISO8601Duration("not-a-duration")
	assert.Error(t, err)
}
