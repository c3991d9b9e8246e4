package sortcell

import "fmt"

// Default hostnames on the cell's access-point network
const (
	SensorsHost = "sensors.ita"
	MotorsHost  = "motors.ita"
	ProcessHost = "process.ita"
)

// Material is the classification of the object currently in the cell
type Material int

const (
	MaterialUnknown Material = iota
	MaterialPlastic
	MaterialWood
	MaterialMetal
)

func (m Material) String() string {
	switch m {
	case MaterialPlastic:
		return "plastic"
	case MaterialWood:
		return "wood"
	case MaterialMetal:
		return "metal"
	default:
		fallthrough
	case MaterialUnknown:
		return "unknown"
	}
}

// Position returns the delivery segment that receives this Material. Unknown material has no segment
func (m Material) Position() (Position, bool) {
	switch m {
	case MaterialPlastic:
		return PositionPlastic, true
	case MaterialWood:
		return PositionWood, true
	case MaterialMetal:
		return PositionMetal, true
	default:
		return 0, false
	}
}

// ParseMaterial is the inverse of Material.String
func ParseMaterial(s string) Material {
	switch s {
	case "plastic":
		return MaterialPlastic
	case "wood":
		return MaterialWood
	case "metal":
		return MaterialMetal
	default:
		return MaterialUnknown
	}
}

// Position is one of the discrete delivery segments of the output mechanism. The numeric value is
// meaningful: it is the segment's index along the ring and is used to compute relative moves
type Position int

const (
	PositionPlastic Position = iota
	PositionWood
	PositionMetal
)

// NumPositions is the number of delivery segments on the ring
const NumPositions = 3

func (p Position) String() string {
	switch p {
	case PositionPlastic:
		return "plastic"
	case PositionWood:
		return "wood"
	case PositionMetal:
		return "metal"
	default:
		return "invalid"
	}
}

// Valid reports whether p is one of the known segments
func (p Position) Valid() bool {
	return p >= PositionPlastic && p < NumPositions
}

func (m Material) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Material) UnmarshalText(b []byte) error {
	*m = ParseMaterial(string(b))
	return nil
}

func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Position) UnmarshalText(b []byte) error {
	switch m := ParseMaterial(string(b)); m {
	case MaterialUnknown:
		return fmt.Errorf("%w: position %q", ErrOutOfRange, b)
	default:
		*p, _ = m.Position()
		return nil
	}
}
