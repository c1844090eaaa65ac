package geo

import "math"

const squareMetersPerHectare = 10000.0

// AreaHectares returns the area of the polygon described by points.
//
// The shoelace sum is taken over raw (lat, lon) degree pairs and scaled with a local
// equirectangular approximation: MetersPerDegree for latitude and MetersPerDegree*cos(mean
// latitude) for longitude. This is only accurate for fields spanning a few kilometers.
// Fewer than three vertices yield 0. A closing point equal to the first is ignored.
func AreaHectares(points []LonLatPoint) float64 {
	pts := Ring(points).Open()
	n := len(pts)
	if n < 3 {
		return 0
	}

	var sum, latSum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += pts[i].Lat * pts[j].Lon
		sum -= pts[j].Lat * pts[i].Lon
		latSum += pts[i].Lat
	}
	meanLat := latSum / float64(n)

	area := math.Abs(sum) * MetersPerDegree * MetersPerDegree * math.Cos(meanLat*math.Pi/180) / squareMetersPerHectare / 2
	if math.IsNaN(area) || math.IsInf(area, 0) {
		return 0
	}
	return area
}
