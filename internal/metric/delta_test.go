package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"routerwatch/internal/model"
)

func TestResolveDelta(t *testing.T) {
	const width32 = uint64(1) << 32

	tests := []struct {
		name     string
		previous uint64
		current  uint64
		width    model.CounterWidth
		want     uint64
	}{
		{name: "monotonic increase", previous: 1000, current: 1500, width: model.CounterWidth32, want: 500},
		{name: "unchanged", previous: 77, current: 77, width: model.CounterWidth32, want: 0},
		{name: "32-bit wrap", previous: 4294960000, current: 100, width: model.CounterWidth32, want: 7396},
		{name: "32-bit wrap from max", previous: width32 - 1, current: 0, width: model.CounterWidth32, want: 1},
		{name: "reset suppression on increase", previous: 10, current: width32 - 10, width: model.CounterWidth32, want: 0},
		{name: "reset suppression on decrease", previous: 1_000_000_000, current: 5, width: model.CounterWidth32, want: 0},
		{name: "exactly half is kept", previous: 0, current: width32 / 2, width: model.CounterWidth32, want: width32 / 2},
		{name: "64-bit increase", previous: 1 << 40, current: 1<<40 + 12345, width: model.CounterWidth64, want: 12345},
		{name: "64-bit wrap", previous: ^uint64(0) - 9, current: 10, width: model.CounterWidth64, want: 20},
		{name: "64-bit reboot", previous: 1 << 50, current: 3, width: model.CounterWidth64, want: 0},
		{name: "unknown width falls back to 64", previous: 5, current: 9, width: 0, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveDelta(tt.previous, tt.current, tt.width))
		})
	}
}

func TestResolveDeltaMonotonicWithinHalfRange(t *testing.T) {
	pairs := [][2]uint64{{0, 0}, {0, 1}, {123, 456}, {1 << 20, 1 << 30}, {4_000_000_000, 4_294_967_295}}
	for _, p := range pairs {
		assert.Equal(t, p[1]-p[0], ResolveDelta(p[0], p[1], model.CounterWidth32), "previous=%d current=%d", p[0], p[1])
		assert.Equal(t, p[1]-p[0], ResolveDelta(p[0], p[1], model.CounterWidth64), "previous=%d current=%d", p[0], p[1])
	}
}

func TestRAMPercent(t *testing.T) {
	assert.InDelta(t, 50.0, RAMPercent(512, 1024), 0.0001)
	assert.Zero(t, RAMPercent(10, 0))
	assert.Equal(t, 100.0, RAMPercent(2048, 1024))
}

func TestParseUintFlexible(t *testing.T) {
	v, ok := ParseUintFlexible(" 42 ")
	assert.True(t, ok)
	assert.Equal(t, uint64(42), v)

	v, ok = ParseUintFlexible("17%")
	assert.True(t, ok)
	assert.Equal(t, uint64(17), v)

	v, ok = ParseUintFlexible("12.9")
	assert.True(t, ok)
	assert.Equal(t, uint64(12), v)

	for _, bad := range []string{"", "abc", "-4", "NaN"} {
		_, ok = ParseUintFlexible(bad)
		assert.False(t, ok, bad)
	}
}
