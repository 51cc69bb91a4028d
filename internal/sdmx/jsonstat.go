package sdmx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// jsonStatDataset mirrors a JSON-stat 2.0 dataset (the Eurostat
// statistics API response shape). Values live in a flat cube indexed by
// the mixed-radix product of the dimension sizes in id order.
type jsonStatDataset struct {
	Version   string                   `json:"version"`
	Class     string                   `json:"class"`
	Label     string                   `json:"label"`
	ID        []string                 `json:"id"`
	Size      []int                    `json:"size"`
	Dimension map[string]jsonStatDim   `json:"dimension"`
	Value     json.RawMessage          `json:"value"`
	Extension map[string]json.RawMessage `json:"extension"`
}

type jsonStatDim struct {
	Label    string `json:"label"`
	Category struct {
		Index json.RawMessage   `json:"index"`
		Label map[string]string `json:"label"`
	} `json:"category"`
}

// codesInOrder returns the dimension's category codes sorted by their
// index position. The index is either an object code→position or an
// array of codes.
func (d *jsonStatDim) codesInOrder() ([]string, error) {
	if len(d.Category.Index) == 0 {
		// Single-code dimension expressed only through labels.
		codes := make([]string, 0, len(d.Category.Label))
		for code := range d.Category.Label {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		return codes, nil
	}
	var asArray []string
	if err := json.Unmarshal(d.Category.Index, &asArray); err == nil {
		return asArray, nil
	}
	var asMap map[string]int
	if err := json.Unmarshal(d.Category.Index, &asMap); err != nil {
		return nil, fmt.Errorf("sdmx: jsonstat category index: %w", err)
	}
	codes := make([]string, len(asMap))
	for code, pos := range asMap {
		if pos < 0 || pos >= len(codes) {
			return nil, fmt.Errorf("sdmx: jsonstat index position %d out of range", pos)
		}
		codes[pos] = code
	}
	return codes, nil
}

// DecodeJSONStat parses a JSON-stat 2.0 dataset into decoded series,
// one per combination of non-time dimension codes. The time dimension
// is recognized by id "time" or "TIME_PERIOD".
func DecodeJSONStat(body []byte) ([]Series, error) {
	var ds jsonStatDataset
	if err := json.Unmarshal(body, &ds); err != nil {
		return nil, fmt.Errorf("sdmx: decode jsonstat: %w", err)
	}
	if len(ds.ID) == 0 || len(ds.ID) != len(ds.Size) {
		return nil, fmt.Errorf("sdmx: jsonstat id/size mismatch (%d/%d)", len(ds.ID), len(ds.Size))
	}

	shape := Shape(ds.Size)
	values, err := decodeJSONStatValues(ds.Value, shape.Size())
	if err != nil {
		return nil, err
	}

	// Per-dimension code lists in cube order.
	codes := make([][]string, len(ds.ID))
	labels := make([]map[string]string, len(ds.ID))
	timeAxis := -1
	for i, id := range ds.ID {
		dim, ok := ds.Dimension[id]
		if !ok {
			return nil, fmt.Errorf("sdmx: jsonstat dimension %q missing", id)
		}
		c, err := dim.codesInOrder()
		if err != nil {
			return nil, err
		}
		if len(c) != ds.Size[i] {
			return nil, fmt.Errorf("sdmx: jsonstat dimension %q has %d codes, size says %d", id, len(c), ds.Size[i])
		}
		codes[i] = c
		labels[i] = dim.Category.Label
		if id == "time" || id == "TIME_PERIOD" {
			timeAxis = i
		}
	}
	if timeAxis < 0 {
		return nil, fmt.Errorf("sdmx: jsonstat dataset has no time dimension")
	}

	bySeries := make(map[string]*Series)
	order := make([]string, 0)

	indices := make([]int, 0, len(values))
	for idx := range values {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for _, idx := range indices {
		val := values[idx]
		coords, err := shape.DecodeFlat(idx)
		if err != nil {
			return nil, err
		}

		var keyBuf []byte
		for axis, c := range coords {
			if axis == timeAxis {
				continue
			}
			keyBuf = append(keyBuf, codes[axis][c]...)
			keyBuf = append(keyBuf, '.')
		}
		key := string(keyBuf)

		s, ok := bySeries[key]
		if !ok {
			s = &Series{
				Dimensions: make(map[string]CodeValue),
				Attributes: make(map[string]CodeValue),
			}
			for axis, c := range coords {
				if axis == timeAxis {
					continue
				}
				code := codes[axis][c]
				s.Dimensions[ds.ID[axis]] = CodeValue{ID: code, Name: labels[axis][code]}
			}
			bySeries[key] = s
			order = append(order, key)
		}
		s.Obs = append(s.Obs, Observation{
			Period: codes[timeAxis][coords[timeAxis]],
			Value:  val,
		})
	}

	out := make([]Series, 0, len(order))
	for _, k := range order {
		out = append(out, *bySeries[k])
	}
	return out, nil
}

// decodeJSONStatValues reads the value cube, which is either a dense
// array or a sparse object keyed by flat index. Absent cells are
// skipped entirely; explicit nulls are reported-missing observations.
func decodeJSONStatValues(raw json.RawMessage, size int) (map[int]*float64, error) {
	out := make(map[int]*float64)
	if len(raw) == 0 {
		return out, nil
	}

	var dense []*float64
	if err := json.Unmarshal(raw, &dense); err == nil {
		if len(dense) > size {
			return nil, fmt.Errorf("sdmx: jsonstat value array longer than cube (%d > %d)", len(dense), size)
		}
		for i, v := range dense {
			out[i] = v
		}
		return out, nil
	}

	var sparse map[string]*float64
	if err := json.Unmarshal(raw, &sparse); err != nil {
		return nil, fmt.Errorf("sdmx: jsonstat values: %w", err)
	}
	for k, v := range sparse {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 || idx >= size {
			return nil, fmt.Errorf("sdmx: jsonstat value index %q out of range", k)
		}
		out[idx] = v
	}
	return out, nil
}
