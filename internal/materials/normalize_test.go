package materials

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Steel Rod", "steel rod"},
		{"  Steel Rod  ", "steel rod"},
		{"Câble Électrique", "cable electrique"},
		{"SCHRAUBE M6", "schraube m6"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizeName(tc.in), "input %q", tc.in)
	}
}
