package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackingTail(t *testing.T) {
	cases := map[string]string{
		"SF3280813696247": "6247",
		"RR123456789CN":   "89CN",
		"YT1":             "YT1",
		"":                "",
		"單號貨物一二":          "貨物一二",
	}
	for in, want := range cases {
		require.Equal(t, want, TrackingTail(in), in)
	}
}
