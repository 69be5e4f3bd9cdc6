package engine

// Role is the capability a caller presents to a privileged entry point.
// Token validity and ownership are checked by the host before a call reaches
// the engine; here the role is just an explicit argument matched against the
// role each operation requires.
type Role int8

const (
	RoleNone Role = iota
	RoleAdmin
	RoleLiquidityProvider
	RoleOracleOperator
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleLiquidityProvider:
		return "liquidity_provider"
	case RoleOracleOperator:
		return "oracle_operator"
	default:
		return "none"
	}
}

// requireRole returns ErrUnauthorized unless the caller holds the wanted role.
func requireRole(have, want Role) error {
	if have != want {
		return ErrUnauthorized
	}
	return nil
}
