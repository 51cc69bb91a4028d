package sdmx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Dataflow identifies one dataset exposed by an SDMX service.
type Dataflow struct {
	AgencyID    string `json:"agencyID"`
	ID          string `json:"id"`
	Version     string `json:"version"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Ref returns the agency,id,version reference used in data URLs.
func (d Dataflow) Ref() string {
	v := d.Version
	if v == "" {
		v = "latest"
	}
	return d.AgencyID + "," + d.ID + "," + v
}

// DSDDimension is one key dimension of a data structure definition.
type DSDDimension struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// DSD is the decoded skeleton of a data structure definition: the key
// dimensions in declaration order. It is what key construction needs.
type DSD struct {
	ID         string         `json:"id"`
	Dimensions []DSDDimension `json:"dimensions"`
}

// KeyFor builds a dotted series key for this DSD from dimension code
// assignments. Unassigned dimensions become wildcards (empty segments).
// Multiple codes for one dimension join with "+".
func (d *DSD) KeyFor(codes map[string][]string) string {
	parts := make([]string, len(d.Dimensions))
	for i, dim := range d.Dimensions {
		if vals, ok := codes[dim.ID]; ok {
			parts[i] = strings.Join(vals, "+")
		}
	}
	return strings.Join(parts, ".")
}

// HasDimension reports whether the DSD declares the given dimension.
func (d *DSD) HasDimension(id string) bool {
	for _, dim := range d.Dimensions {
		if dim.ID == id {
			return true
		}
	}
	return false
}

// structureMessage mirrors the SDMX-JSON structure message envelope.
type structureMessage struct {
	Data struct {
		Dataflows      []rawDataflow      `json:"dataflows"`
		DataStructures []rawDataStructure `json:"dataStructures"`
	} `json:"data"`
}

type rawDataflow struct {
	AgencyID    string          `json:"agencyID"`
	ID          string          `json:"id"`
	Version     string          `json:"version"`
	Name        json.RawMessage `json:"name"`
	Description json.RawMessage `json:"description"`
}

type rawDataStructure struct {
	ID                      string `json:"id"`
	DataStructureComponents struct {
		DimensionList struct {
			Dimensions []struct {
				ID       string `json:"id"`
				Position int    `json:"position"`
			} `json:"dimensions"`
		} `json:"dimensionList"`
	} `json:"dataStructureComponents"`
}

// localizedString reads a name field that is either a plain string or a
// locale map ("en" preferred).
func localizedString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	if v, ok := m["en"]; ok {
		return v
	}
	for _, v := range m {
		return v
	}
	return ""
}

// DecodeDataflows parses a dataflow structure message.
func DecodeDataflows(body []byte) ([]Dataflow, error) {
	var msg structureMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("sdmx: decode dataflows: %w", err)
	}
	out := make([]Dataflow, 0, len(msg.Data.Dataflows))
	for _, df := range msg.Data.Dataflows {
		out = append(out, Dataflow{
			AgencyID:    df.AgencyID,
			ID:          df.ID,
			Version:     df.Version,
			Name:        localizedString(df.Name),
			Description: localizedString(df.Description),
		})
	}
	return out, nil
}

// DecodeDSD parses a data-structure message into a DSD with dimensions
// sorted by declared position.
func DecodeDSD(body []byte) (*DSD, error) {
	var msg structureMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("sdmx: decode data structure: %w", err)
	}
	if len(msg.Data.DataStructures) == 0 {
		return nil, fmt.Errorf("sdmx: structure message has no data structures")
	}
	raw := msg.Data.DataStructures[0]
	dsd := &DSD{ID: raw.ID}
	for _, d := range raw.DataStructureComponents.DimensionList.Dimensions {
		dsd.Dimensions = append(dsd.Dimensions, DSDDimension{ID: d.ID, Position: d.Position})
	}
	sort.Slice(dsd.Dimensions, func(i, j int) bool {
		return dsd.Dimensions[i].Position < dsd.Dimensions[j].Position
	})
	return dsd, nil
}
