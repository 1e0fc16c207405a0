package workout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"5 min", 300},
		{"30 sec", 30},
		{"2.5 min", 150},
		{"1 minute", 60},
		{"10 mins easy", 600},
		{"45 seconds", 45},
		{"  3 MIN", 180},
		{"90sec", 90},
		{".5 min", 30},
		{"0.25 min", 15},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDuration_Malformed(t *testing.T) {
	for _, in := range []string{"", "easy jog", "min 5", "5 hours", "0 min", "5 minx"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseDuration(in)
			assert.ErrorIs(t, err, ErrMalformedDuration)
		})
	}
}

func TestStep_TargetDuration(t *testing.T) {
	got, err := Step{Duration: "4 min"}.TargetDuration()
	require.NoError(t, err)
	assert.Equal(t, 240, got)
}
