package sdmx

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CodeValue is one code from a dimension or attribute codelist.
type CodeValue struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Dimension is a dimension of a data message with its observed values.
type Dimension struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Values []CodeValue `json:"values"`
}

// dataMessage mirrors the SDMX-JSON data message envelope. Both the 1.0
// layout (top-level structure) and the 2.0 layout (data.structures[])
// appear in the wild; decoding accepts either.
type dataMessage struct {
	Data struct {
		Structures []messageStructure `json:"structures"`
		Structure  *messageStructure  `json:"structure"`
		DataSets   []dataSet          `json:"dataSets"`
	} `json:"data"`
	// 1.0 servers put structure and dataSets at the top level.
	Structure *messageStructure `json:"structure"`
	DataSets  []dataSet         `json:"dataSets"`
}

type messageStructure struct {
	Dimensions struct {
		Series      []Dimension `json:"series"`
		Observation []Dimension `json:"observation"`
	} `json:"dimensions"`
	Attributes struct {
		Series      []Dimension `json:"series"`
		Observation []Dimension `json:"observation"`
	} `json:"attributes"`
}

type dataSet struct {
	Series       map[string]seriesEntry       `json:"series"`
	Observations map[string][]json.RawMessage `json:"observations"`
}

type seriesEntry struct {
	Attributes   []*int                       `json:"attributes"`
	Observations map[string][]json.RawMessage `json:"observations"`
}

// Observation is one decoded data point. A nil Value is a reported
// missing observation.
type Observation struct {
	Period string
	Value  *float64
}

// Series is one decoded series: its dimension coordinates resolved to
// codes, attribute values, and observations in message order.
type Series struct {
	Dimensions map[string]CodeValue // dimension id → code
	Attributes map[string]CodeValue // series attribute id → code
	Obs        []Observation
}

// Dim returns the code ID for a dimension, or "" when absent.
func (s *Series) Dim(id string) string {
	if cv, ok := s.Dimensions[id]; ok {
		return cv.ID
	}
	return ""
}

// DecodeDataMessage parses an SDMX-JSON data message into decoded
// series. An empty message (no datasets or no series) returns an empty
// slice, not an error.
func DecodeDataMessage(body []byte) ([]Series, error) {
	var msg dataMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("sdmx: decode data message: %w", err)
	}

	structure := msg.Structure
	dataSets := msg.DataSets
	if structure == nil {
		if msg.Data.Structure != nil {
			structure = msg.Data.Structure
		} else if len(msg.Data.Structures) > 0 {
			structure = &msg.Data.Structures[0]
		}
		dataSets = msg.Data.DataSets
	}
	if structure == nil || len(dataSets) == 0 {
		return nil, nil
	}

	seriesDims := structure.Dimensions.Series
	obsDims := structure.Dimensions.Observation
	seriesAttrs := structure.Attributes.Series

	var timeDim *Dimension
	for i := range obsDims {
		if obsDims[i].ID == "TIME_PERIOD" {
			timeDim = &obsDims[i]
			break
		}
	}
	if timeDim == nil && len(obsDims) > 0 {
		timeDim = &obsDims[0]
	}

	ds := dataSets[0]
	out := make([]Series, 0, len(ds.Series))

	// Flat layout: observations keyed by the full coordinate string,
	// the last coordinate indexing the observation dimension.
	if len(ds.Series) == 0 && len(ds.Observations) > 0 {
		return decodeFlatDataset(ds, seriesDims, timeDim)
	}

	for key, entry := range ds.Series {
		coords, err := parseKey(key)
		if err != nil {
			return nil, err
		}
		if len(coords) != len(seriesDims) {
			return nil, fmt.Errorf("sdmx: series key %q has %d coordinates, structure has %d dimensions", key, len(coords), len(seriesDims))
		}

		s := Series{
			Dimensions: make(map[string]CodeValue, len(seriesDims)),
			Attributes: make(map[string]CodeValue),
		}
		for k, c := range coords {
			dim := seriesDims[k]
			if c < 0 || c >= len(dim.Values) {
				return nil, fmt.Errorf("sdmx: coordinate %d out of range for dimension %s", c, dim.ID)
			}
			s.Dimensions[dim.ID] = dim.Values[c]
		}
		for i, av := range entry.Attributes {
			if av == nil || i >= len(seriesAttrs) {
				continue
			}
			attr := seriesAttrs[i]
			if *av >= 0 && *av < len(attr.Values) {
				s.Attributes[attr.ID] = attr.Values[*av]
			}
		}

		for obsKey, raw := range entry.Observations {
			period, err := resolvePeriod(obsKey, timeDim)
			if err != nil {
				return nil, err
			}
			s.Obs = append(s.Obs, Observation{Period: period, Value: obsValue(raw)})
		}
		out = append(out, s)
	}
	return out, nil
}

// decodeFlatDataset handles the flat SDMX-JSON layout where every
// observation is keyed by all coordinates at once.
func decodeFlatDataset(ds dataSet, seriesDims []Dimension, timeDim *Dimension) ([]Series, error) {
	bySeries := make(map[string]*Series)
	order := make([]string, 0)

	for key, raw := range ds.Observations {
		coords, err := parseKey(key)
		if err != nil {
			return nil, err
		}
		if len(coords) != len(seriesDims)+1 {
			return nil, fmt.Errorf("sdmx: flat key %q has %d coordinates, want %d", key, len(coords), len(seriesDims)+1)
		}

		seriesKey := key[:strings.LastIndex(key, ":")]
		s, ok := bySeries[seriesKey]
		if !ok {
			s = &Series{
				Dimensions: make(map[string]CodeValue, len(seriesDims)),
				Attributes: make(map[string]CodeValue),
			}
			for k, c := range coords[:len(seriesDims)] {
				dim := seriesDims[k]
				if c < 0 || c >= len(dim.Values) {
					return nil, fmt.Errorf("sdmx: coordinate %d out of range for dimension %s", c, dim.ID)
				}
				s.Dimensions[dim.ID] = dim.Values[c]
			}
			bySeries[seriesKey] = s
			order = append(order, seriesKey)
		}

		period, err := resolvePeriod(strconv.Itoa(coords[len(coords)-1]), timeDim)
		if err != nil {
			return nil, err
		}
		s.Obs = append(s.Obs, Observation{Period: period, Value: obsValue(raw)})
	}

	out := make([]Series, 0, len(order))
	for _, k := range order {
		out = append(out, *bySeries[k])
	}
	return out, nil
}

func parseKey(key string) ([]int, error) {
	parts := strings.Split(key, ":")
	coords := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("sdmx: bad series key %q: %w", key, err)
		}
		coords[i] = n
	}
	return coords, nil
}

func resolvePeriod(obsKey string, timeDim *Dimension) (string, error) {
	idx, err := strconv.Atoi(obsKey)
	if err != nil {
		// Some servers key observations by the period label directly.
		return obsKey, nil
	}
	if timeDim == nil || idx < 0 || idx >= len(timeDim.Values) {
		return "", fmt.Errorf("sdmx: observation index %d outside time dimension", idx)
	}
	return timeDim.Values[idx].ID, nil
}

// obsValue extracts the observation value from the raw observation
// array. The first element is the value; null means reported-missing.
func obsValue(raw []json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var v *float64
	if err := json.Unmarshal(raw[0], &v); err != nil {
		return nil
	}
	return v
}
