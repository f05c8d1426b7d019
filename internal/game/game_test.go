package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseUTC(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want time.Time
	}{
		{
			name: "with zone suffix",
			raw:  "2026-08-30T12:00:10Z",
			want: time.Date(2026, 8, 30, 12, 0, 10, 0, time.UTC),
		},
		{
			name: "bare timestamp treated as UTC",
			raw:  "2026-08-30T12:00:10",
			want: time.Date(2026, 8, 30, 12, 0, 10, 0, time.UTC),
		},
		{
			name: "fractional seconds without zone",
			raw:  "2026-08-30T12:00:10.5",
			want: time.Date(2026, 8, 30, 12, 0, 10, 500000000, time.UTC),
		},
		{
			name: "empty",
			raw:  "",
			want: time.Time{},
		},
		{
			name: "garbage",
			raw:  "not a time",
			want: time.Time{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseUTC(tc.raw)
			require.True(t, got.Equal(tc.want), "got %v want %v", got, tc.want)
		})
	}
}

func TestHasDuplicateColors(t *testing.T) {
	cases := []struct {
		name string
		cups []string
		want bool
	}{
		{"all distinct", []string{"red", "blue", "green", "yellow", "purple", "orange"}, false},
		{"duplicate", []string{"red", "blue", "red", "", "", ""}, true},
		{"empties ignored", []string{"", "", "", "", "", ""}, false},
		{"partial distinct", []string{"red", "", "blue", "", "", ""}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, HasDuplicateColors(tc.cups))
		})
	}
}

func TestValidateSwap(t *testing.T) {
	require.NoError(t, ValidateSwap(0, 5))
	require.Error(t, ValidateSwap(-1, 2))
	require.Error(t, ValidateSwap(2, 6))
	require.Error(t, ValidateSwap(3, 3))
}

func TestIsTurnOf(t *testing.T) {
	seven := 7
	state := &GameState{CurrentPlayerID: &seven}
	require.True(t, state.IsTurnOf(7))
	require.False(t, state.IsTurnOf(8))

	require.False(t, (&GameState{}).IsTurnOf(7), "nil currentPlayerId is a valid transient state")
	require.False(t, (*GameState)(nil).IsTurnOf(7))
}
