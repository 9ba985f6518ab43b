package types

// Lane is a network-layer address: either an opaque byte string the host
// interprets directly, or a reference to a galaxy the host resolves itself.
// Modeled as a closed sum matched exhaustively.
type Lane struct {
	galaxy  Ship
	opaque  []byte
	isGalaxy bool
}

// GalaxyLane builds a lane that defers address resolution to the host.
func GalaxyLane(g Ship) Lane {
	return Lane{galaxy: g, isGalaxy: true}
}

// OpaqueLane builds a lane carrying a raw network-layer address.
func OpaqueLane(addr []byte) Lane {
	cp := make([]byte, len(addr))
	copy(cp, addr)
	return Lane{opaque: cp}
}

func (l Lane) IsGalaxy() bool { return l.isGalaxy }

// Galaxy returns the sponsoring galaxy address; only meaningful when
// IsGalaxy reports true.
func (l Lane) Galaxy() Ship { return l.galaxy }

// Opaque returns the raw address bytes; only meaningful when IsGalaxy
// reports false.
func (l Lane) Opaque() []byte { return l.opaque }

func (l Lane) Equal(other Lane) bool {
	if l.isGalaxy != other.isGalaxy {
		return false
	}
	if l.isGalaxy {
		return l.galaxy == other.galaxy
	}
	return string(l.opaque) == string(other.opaque)
}

// Route is a peer's optional known network path.
type Route struct {
	Valid   bool
	Direct  bool
	Lane    Lane
}
