package remotes

import "fmt"

// Identity is the connected user a request is scoped to.
type Identity struct {
	UserID int64
}

func (i Identity) String() string {
	return fmt.Sprintf("user:%d", i.UserID)
}
