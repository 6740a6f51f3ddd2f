package enums

// UserRole is a functional role stored in user_roles. Identity and sessions
// live in the external provider; these roles only gate marketplace features.
type UserRole string

const (
	UserRoleBuyer  UserRole = "buyer"
	UserRoleAgent  UserRole = "agent"
	UserRoleAgency UserRole = "agency"
	UserRoleAdmin  UserRole = "admin"
)

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleBuyer, UserRoleAgent, UserRoleAgency, UserRoleAdmin:
		return true
	default:
		return false
	}
}
