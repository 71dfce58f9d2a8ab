package derive

import (
	"cmp"
	"slices"
)

// Point is a [lng, lat] pair.
type Point [2]float64

func cross(o, a, b Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// ConvexHull returns the closed, counter-clockwise hull ring of pts using
// Andrew's monotone chain. It returns nil when the distinct points do not
// span an area: fewer than three of them, or all collinear.
func ConvexHull(pts []Point) []Point {
	sorted := slices.Clone(pts)
	slices.SortFunc(sorted, func(a, b Point) int {
		if c := cmp.Compare(a[0], b[0]); c != 0 {
			return c
		}
		return cmp.Compare(a[1], b[1])
	})
	sorted = slices.Compact(sorted)
	if len(sorted) < 3 {
		return nil
	}

	hull := make([]Point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	// hull now ends with its first point, closing the ring.
	if len(hull) < 4 {
		return nil
	}
	return hull
}

// Centroid is the arithmetic mean of pts. Duplicates count.
func Centroid(pts []Point) Point {
	var c Point
	if len(pts) == 0 {
		return c
	}
	for _, p := range pts {
		c[0] += p[0]
		c[1] += p[1]
	}
	n := float64(len(pts))
	return Point{c[0] / n, c[1] / n}
}
