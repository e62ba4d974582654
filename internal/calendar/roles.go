package calendar

import (
	"fmt"

	"github.com/jalonhq/jalon/internal/types"
)

// VisibilityFor maps a user role to the visibility tag used on calendar
// events. Internal staff roles all collapse to the admin tag.
func VisibilityFor(role types.Role) (types.VisibilityTag, error) {
	switch role {
	case types.RoleAdmin, types.RoleDelivery, types.RoleSales, types.RoleFinance:
		return types.VisibilityAdmin, nil
	case types.RoleClientAdmin, types.RoleClientMember:
		return types.VisibilityClient, nil
	case types.RoleVendor:
		return types.VisibilityVendor, nil
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
}
