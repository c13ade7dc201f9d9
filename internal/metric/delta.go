package metric

import "routerwatch/internal/model"

// ResolveDelta returns the traffic delta between two raw counter readings of the given width.
// A wrapped counter contributes width-previous+current. Any delta larger than half the
// counter range is treated as a device reset and contributes 0.
func ResolveDelta(previous, current uint64, width model.CounterWidth) uint64 {
	bits := uint(width)
	if bits == 0 || bits > 64 {
		bits = 64
	}
	mask := ^uint64(0)
	if bits < 64 {
		mask = (uint64(1) << bits) - 1
	}

	var delta uint64
	if current >= previous {
		delta = current - previous
	} else {
		// modular subtraction: width - previous + current
		delta = (current - previous) & mask
	}

	half := uint64(1) << (bits - 1)
	if delta > half {
		return 0
	}
	return delta
}

func percentOf(value, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return clampPercent((float64(value) / float64(total)) * 100)
}

func clampPercent(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

// RAMPercent is used/total*100, or 0 when the device reports no total.
func RAMPercent(used, total uint64) float64 {
	return percentOf(used, total)
}
