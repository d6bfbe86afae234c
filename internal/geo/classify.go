package geo

// Market segment constants, following the URA region taxonomy.
const (
	SegmentCore    = "core_central"
	SegmentCentral = "rest_of_central"
	SegmentFringe  = "city_fringe"
	SegmentOutside = "outside_central"
)

// Segment thresholds (kilometers).
const (
	coreCentroidThresholdKM = 4.0 // within the central region AND near its centroid
	fringeEdgeThresholdKM   = 3.0 // outside the central region but close to its edge
)

// Segment returns the market segment for a point relative to the central
// region polygon.
//   - core_central: within the region AND centroid distance <= 4km
//   - rest_of_central: within the region, further out
//   - city_fringe: outside the region AND edge distance <= 3km
//   - outside_central: everything else
func Segment(isWithin bool, centroidKM, edgeKM float64) string {
	if isWithin {
		if centroidKM <= coreCentroidThresholdKM {
			return SegmentCore
		}
		return SegmentCentral
	}
	if edgeKM <= fringeEdgeThresholdKM {
		return SegmentFringe
	}
	return SegmentOutside
}
