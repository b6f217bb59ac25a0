package dataflow

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTickSpeed(t *testing.T) {
	tests := []struct {
		in        string
		want      TickSpeed
		wantDelay time.Duration
	}{
		{"slow", TickSlow, 250 * time.Millisecond},
		{"NORMAL", TickNormal, 16 * time.Millisecond},
		{"", TickNormal, 16 * time.Millisecond},
		{"fast", TickFast, 0},
		{"100", TickEvery(100 * time.Millisecond), 100 * time.Millisecond},
		{"1.5s", TickEvery(1500 * time.Millisecond), 1500 * time.Millisecond},
		{"0", TickFast, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTickSpeed(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantDelay, got.Delay())
		})
	}
}

func TestParseTickSpeed_Invalid(t *testing.T) {
	for _, in := range []string{"warp", "-5", "-1s"} {
		_, err := ParseTickSpeed(in)
		assert.ErrorIs(t, err, ErrInvalidTickSpeed, in)
	}
}

func TestTickSpeed_TextRoundTrip(t *testing.T) {
	type wrapper struct {
		Speed TickSpeed `json:"speed"`
	}

	b, err := json.Marshal(wrapper{Speed: TickEvery(40 * time.Millisecond)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"speed":"40ms"}`, string(b))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"speed":"slow"}`), &w))
	assert.Equal(t, TickSlow, w.Speed)

	assert.Error(t, json.Unmarshal([]byte(`{"speed":"sideways"}`), &w))
}
