package schema

// Side is the direction of an order or fill.
type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
	_sideEnd
)

func (s Side) IsAvailable() bool {
	return s > SideUnknown && s < _sideEnd
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the side that reduces an exposure opened by s.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideUnknown
	}
}

// PositionSide is the direction of a net position.
type PositionSide uint8

const (
	PositionSideFlat PositionSide = iota
	PositionSideLong
	PositionSideShort
)

func (s PositionSide) String() string {
	switch s {
	case PositionSideLong:
		return "long"
	case PositionSideShort:
		return "short"
	default:
		return "flat"
	}
}
