package model

// Gate identifies one of the two independent password gates.
type Gate string

const (
	GateContributor Gate = "contributor" // Grants the submission form.
	GateAdmin       Gate = "admin"       // Grants review, export and delete.
)

// AccessState is the combination of gates a visitor currently holds.
type AccessState uint8

const (
	NoAccess        AccessState = 0
	ContributorOnly AccessState = 1 << 0
	AdminOnly       AccessState = 1 << 1
	Both                        = ContributorOnly | AdminOnly
)

func (g Gate) bit() AccessState {
	switch g {
	case GateContributor:
		return ContributorOnly
	case GateAdmin:
		return AdminOnly
	default:
		return NoAccess
	}
}

// Has reports whether the state includes the given gate.
func (s AccessState) Has(g Gate) bool {
	b := g.bit()
	return b != NoAccess && s&b == b
}

// Grant returns the state with the given gate added.
func (s AccessState) Grant(g Gate) AccessState {
	return (s | g.bit()) & Both
}

// Revoke returns the state with the given gate removed. The other gate is untouched.
func (s AccessState) Revoke(g Gate) AccessState {
	return s &^ g.bit() & Both
}

func (s AccessState) String() string {
	switch s & Both {
	case ContributorOnly:
		return "contributor_only"
	case AdminOnly:
		return "admin_only"
	case Both:
		return "both"
	default:
		return "no_access"
	}
}
