package psf

// SemanticTag is the enumerated field-role set from spec §3(Formats).
type SemanticTag int

const (
	SemanticNone SemanticTag = iota
	SemanticFixedValue
	SemanticFixedBytes
	SemanticLength
	SemanticRandom
	SemanticPayload
	SemanticTimestamp
)

func (s SemanticTag) String() string {
	switch s {
	case SemanticFixedValue:
		return "FIXED_VALUE"
	case SemanticFixedBytes:
		return "FIXED_BYTES"
	case SemanticLength:
		return "LENGTH"
	case SemanticRandom:
		return "RANDOM"
	case SemanticPayload:
		return "PAYLOAD"
	case SemanticTimestamp:
		return "TIMESTAMP"
	default:
		return "NONE"
	}
}

// RoleKind distinguishes the two and only two conversation roles (spec §3).
type RoleKind int

const (
	RoleClient RoleKind = iota
	RoleServer
)

func (r RoleKind) String() string {
	if r == RoleServer {
		return "SERVER"
	}
	return "CLIENT"
}

// PhaseKind is HANDSHAKE or ACTIVE/DATA.
type PhaseKind int

const (
	PhaseHandshake PhaseKind = iota
	PhaseActive
)

func (p PhaseKind) String() string {
	if p == PhaseActive {
		return "ACTIVE"
	}
	return "HANDSHAKE"
}

// Transport is the carrier kind a protocol declares (spec §3 "Identity").
type Transport int

const (
	TransportTCP Transport = iota
	TransportUDP
	TransportBoth
)

func (t Transport) String() string {
	switch t {
	case TransportUDP:
		return "UDP"
	case TransportBoth:
		return "BOTH"
	default:
		return "TCP"
	}
}

// Field is one entry of a Format (spec §3 "Formats").
type Field struct {
	Name     string
	Width    int  // fixed width in bytes; meaningless if Variable
	Variable bool // true when width is "var", paired with a LENGTH peer

	HasLiteral bool
	Literal    []byte // for FIXED_VALUE (single/narrow) and FIXED_BYTES (any width)

	Semantic     SemanticTag
	LengthTarget string // for SemanticLength: the field name whose length this encodes

	Line int
}

// Format is a named ordered sequence of fields (spec §3).
type Format struct {
	Name   string
	Fields []*Field
	Line   int
}

// FieldByName returns the named field, or nil.
func (f *Format) FieldByName(name string) *Field {
	for _, fld := range f.Fields {
		if fld.Name == name {
			return fld
		}
	}
	return nil
}

// PayloadField returns the format's PAYLOAD field, or nil if it has none
// (invariant (a): at most one).
func (f *Format) PayloadField() *Field {
	for _, fld := range f.Fields {
		if fld.Semantic == SemanticPayload {
			return fld
		}
	}
	return nil
}

// Phase is an ordered segment of a role's conversation, referencing one or
// more named Formats (spec §3 "Phases").
type Phase struct {
	Kind       PhaseKind
	FormatRefs []string
}

// Role is the per-side phase sequence (spec §3 "Roles": exactly CLIENT,
// SERVER).
type Role struct {
	Kind   RoleKind
	Phases []*Phase
}

// PhaseByKind returns the role's phase of the given kind, or nil.
func (r *Role) PhaseByKind(k PhaseKind) *Phase {
	for _, p := range r.Phases {
		if p.Kind == k {
			return p
		}
	}
	return nil
}

// DetectionScore is the evasion scoring input (spec §3, §4.3, §4.9).
type DetectionScore struct {
	Commonality float64
	Suspicion   float64
}

// EvasionScore computes commonality · (1 − suspicion) per spec §4.3.
func (d DetectionScore) EvasionScore() float64 {
	return d.Commonality * (1 - d.Suspicion)
}

// Protocol is the top-level parsed AST of one .psf document (spec §3
// "Protocol Signature (PSF) AST").
type Protocol struct {
	ID          string
	Name        string
	DefaultPort uint16
	Transport   Transport
	Detection   DetectionScore

	Roles   map[RoleKind]*Role
	Formats map[string]*Format

	// SourceFile records where this protocol was parsed from, for
	// diagnostics; never consulted for wire-format decisions.
	SourceFile string
}

// FormatByName looks up a format by name, or returns nil.
func (p *Protocol) FormatByName(name string) *Format {
	return p.Formats[name]
}
