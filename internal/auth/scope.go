package auth

import "fmt"

// Scope limits which samples a lookup may resolve. The zero value is
// unrestricted.
type Scope struct {
	ownerID    int64
	restricted bool
}

// Unrestricted resolves any sample regardless of owner.
func Unrestricted() Scope { return Scope{} }

// OwnedBy resolves only samples uploaded by userID.
func OwnedBy(userID int64) Scope { return Scope{ownerID: userID, restricted: true} }

// Owner returns the required owner and whether the scope restricts at all.
func (s Scope) Owner() (int64, bool) { return s.ownerID, s.restricted }

func (s Scope) String() string {
	if !s.restricted {
		return "unrestricted"
	}
	return fmt.Sprintf("owner=%d", s.ownerID)
}
