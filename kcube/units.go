package kcube

import "math"

// Converter translates between physical millimeters and the encoder
// counts the controller works in. A non-zero offset shifts the zero of
// the physical scale away from the controller's home position, which
// keeps commanded targets clear of the reference switch.
type Converter struct {
	// CountsPerMM is the encoder scale factor.
	CountsPerMM float64
	// OffsetCounts is added to absolute targets and subtracted from
	// reported positions. Distances are unaffected.
	OffsetCounts int32
}

// DDS100Converter returns the conversion for the DDS100 direct drive
// stage on a KBD101 controller: 2000 counts per millimeter with a 100
// count offset from the home reference.
func DDS100Converter() Converter {
	return Converter{CountsPerMM: 2000, OffsetCounts: 100}
}

// travelTol widens the absolute target range check at both travel ends,
// in millimeters.
const travelTol = 0.1

// DistanceCounts converts a distance (or relative move) in millimeters
// to encoder counts, rounding to the nearest count.
func (c Converter) DistanceCounts(mm float64) int32 {
	return int32(math.Round(mm * c.CountsPerMM))
}

// PositionCounts converts an absolute position in millimeters to the
// encoder count target for the controller, including the offset.
func (c Converter) PositionCounts(mm float64) int32 {
	return c.DistanceCounts(mm) + c.OffsetCounts
}

// DistanceMM converts a count delta back to millimeters.
func (c Converter) DistanceMM(counts int32) float64 {
	return float64(counts) / c.CountsPerMM
}

// PositionMM converts a reported encoder position back to an absolute
// position in millimeters, removing the offset.
func (c Converter) PositionMM(counts int32) float64 {
	return float64(counts-c.OffsetCounts) / c.CountsPerMM
}
