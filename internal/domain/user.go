package domain

import "time"

// Role is the authorization level stored on a user record.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a raw role value onto a known Role. Anything unknown is treated as RoleUser.
func ParseRole(v string) Role {
	if Role(v) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ProfilePicture references an uploaded avatar.
type ProfilePicture struct {
	Name string
	URL  string
}

// User is the stable user contract exposed by the gateway.
type User struct {
	ID             string
	Username       string
	Email          string
	Role           Role
	EmailVerified  bool
	ProfilePicture *ProfilePicture
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// UserUpdate carries the optional fields a user may change on their own record.
type UserUpdate struct {
	Username *string
	Email    *string
	Password *string
}

func (u UserUpdate) Empty() bool {
	return u.Username == nil && u.Email == nil && u.Password == nil
}
