package domain

// Values of the "power" tag that classify elements into engine roles.
var (
	// LineKinds marks transmission and distribution conductors.
	LineKinds = map[string]bool{"line": true, "minor_line": true, "cable": true}

	// TerminalKinds marks connection fixtures where lines attach.
	TerminalKinds = map[string]bool{"terminal": true, "tower": true, "pole": true, "portal": true}
)

// IsLine reports whether the element is a power conductor way.
func (e Element) IsLine() bool {
	return e.Kind == KindWay && LineKinds[e.Tag("power")]
}

// IsTerminal reports whether the element is a connection fixture node.
func (e Element) IsTerminal() bool {
	return e.Kind == KindNode && TerminalKinds[e.Tag("power")]
}

// IsSubstation reports whether the element is tagged as a substation.
func (e Element) IsSubstation() bool {
	return e.Tag("power") == "substation"
}

// IsPlant reports whether the element is tagged as a generation facility.
func (e Element) IsPlant() bool {
	return e.Tag("power") == "plant"
}

// UnderConstruction reports whether the element is only proposed or still
// being built and should be excluded from operational analysis.
func (e Element) UnderConstruction() bool {
	return e.Tag("proposed") != "" || e.Tag("construction") != ""
}

// UnnamedSentinel is substituted when a facility carries no name tag.
const UnnamedSentinel = "Unnamed"

// PlantInfo holds the reportable attributes of a generation facility.
// All fields default to the unnamed/unspecified sentinel when untagged.
type PlantInfo struct {
	ID       ID     `json:"id"`
	Name     string `json:"name"`
	Operator string `json:"operator"`
	Source   string `json:"source"` // energy source (wind, solar, ...)
	Output   string `json:"output"` // rated electrical output
	Method   string `json:"method"` // site subtype / generation method
}

// NewPlantInfo extracts plant attributes from an element's tags.
func NewPlantInfo(e Element) PlantInfo {
	name := e.Tag("name")
	if name == "" {
		name = UnnamedSentinel
	}
	return PlantInfo{
		ID:       e.ID(),
		Name:     name,
		Operator: e.Tag("operator"),
		Source:   e.Tag("plant:source"),
		Output:   e.Tag("plant:output:electricity"),
		Method:   e.Tag("plant:method"),
	}
}

// StructureInfo holds the reportable attributes of a substation.
type StructureInfo struct {
	ID       ID     `json:"id"`
	Name     string `json:"name"`
	Operator string `json:"operator"`
	Voltage  string `json:"voltage"`
}

// NewStructureInfo extracts substation attributes from an element's tags.
func NewStructureInfo(e Element) StructureInfo {
	name := e.Tag("name")
	if name == "" {
		name = "Unknown"
	}
	return StructureInfo{
		ID:       e.ID(),
		Name:     name,
		Operator: e.Tag("operator"),
		Voltage:  e.Tag("voltage"),
	}
}

// ConnectionKind classifies how a line is attached to a structure, in
// decreasing order of confidence.
type ConnectionKind string

const (
	ConnDirectNode   ConnectionKind = "direct_node"   // shares a node with the structure
	ConnViaTerminal  ConnectionKind = "via_terminal"  // ends at a terminal near the structure
	ConnEndpointNear ConnectionKind = "endpoint_near" // ends near the structure
	ConnPassingNear  ConnectionKind = "passing_near"  // passes near the structure
)

// ConnectionEdge is evidence that a line is attached to a structure.
// SharedNode is set for direct_node; DistanceM and ClosestNode for the
// distance-based kinds.
type ConnectionEdge struct {
	Line        ID             `json:"line"`
	Kind        ConnectionKind `json:"kind"`
	SharedNode  int64          `json:"shared_node,omitempty"`
	ClosestNode int64          `json:"closest_node,omitempty"`
	DistanceM   float64        `json:"distance_m,omitempty"`
	Voltage     string         `json:"voltage,omitempty"`
	Operator    string         `json:"operator,omitempty"`
}
