package shared

import "github.com/google/uuid"

// Marketplace user roles relevant to the auction flows
const (
	RoleFarmer = "farmer"
	RoleBuyer  = "buyer"
)

// User is the auction service's projection of a marketplace user as
// resolved by the auth collaborator.
type User struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Role     string    `json:"role"`
	Verified bool      `json:"verified"`
}

// IsFarmer returns true if the user may own auctions
func (u *User) IsFarmer() bool {
	return u.Role == RoleFarmer
}
