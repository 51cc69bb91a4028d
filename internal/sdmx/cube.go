// Package sdmx decodes SDMX-JSON structure and data messages and
// JSON-stat 2.0 datasets, as served by the OECD, Eurostat, and BIS
// dissemination APIs. It handles dataflow references, data structure
// definitions, series-key construction, and the flat value-array cube
// layout both formats share.
package sdmx

import "fmt"

// Shape is the dimension sizes of a data cube in declaration order.
type Shape []int

// Size returns the total number of cells in the cube.
func (s Shape) Size() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// FlatIndex converts per-dimension coordinates to the flat cell index,
// last dimension fastest-varying.
func (s Shape) FlatIndex(coords []int) (int, error) {
	if len(coords) != len(s) {
		return 0, fmt.Errorf("sdmx: %d coordinates for %d dimensions", len(coords), len(s))
	}
	idx := 0
	for k, c := range coords {
		if c < 0 || c >= s[k] {
			return 0, fmt.Errorf("sdmx: coordinate %d out of range for dimension %d (size %d)", c, k, s[k])
		}
		idx = idx*s[k] + c
	}
	return idx, nil
}

// DecodeFlat converts a flat cell index back to per-dimension
// coordinates. Inverse of FlatIndex.
func (s Shape) DecodeFlat(idx int) ([]int, error) {
	if idx < 0 || idx >= s.Size() {
		return nil, fmt.Errorf("sdmx: flat index %d out of range for shape %v", idx, s)
	}
	coords := make([]int, len(s))
	for k := len(s) - 1; k >= 0; k-- {
		coords[k] = idx % s[k]
		idx /= s[k]
	}
	return coords, nil
}
