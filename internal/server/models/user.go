// Package models holds the user record persisted by the identity store and
// the views of it that leave the server.
package models

import "time"

// User is one locally known identity. ID is assigned once ("user_<n>") and
// never changes; OpenID is unique across all records.
type User struct {
	ID            string     `json:"id"`
	OpenID        string     `json:"openid"`
	SessionKey    string     `json:"sessionKey"`
	Phone         string     `json:"phone,omitempty"`
	NickName      string     `json:"nickName,omitempty"`
	AvatarURL     string     `json:"avatarUrl,omitempty"`
	CreateTime    time.Time  `json:"createTime"`
	LastLoginTime time.Time  `json:"lastLoginTime"`
	UpdateTime    *time.Time `json:"updateTime,omitempty"`
}

// NewUser is the input of Repository.Create. A zero CreateTime means now.
type NewUser struct {
	OpenID     string
	SessionKey string
	Phone      string
	CreateTime time.Time
}

// Patch lists the mutable fields of a User. Nil fields are left untouched.
type Patch struct {
	SessionKey    *string
	Phone         *string
	NickName      *string
	AvatarURL     *string
	LastLoginTime *time.Time
}

// Apply merges p into u and stamps UpdateTime with now.
func (p Patch) Apply(u *User, now time.Time) {
	if p.SessionKey != nil {
		u.SessionKey = *p.SessionKey
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.NickName != nil {
		u.NickName = *p.NickName
	}
	if p.AvatarURL != nil {
		u.AvatarURL = *p.AvatarURL
	}
	if p.LastLoginTime != nil {
		u.LastLoginTime = *p.LastLoginTime
	}
	u.UpdateTime = &now
}

// Ptr returns a pointer to v. Handy for building a Patch.
func Ptr[T any](v T) *T {
	return &v
}

// Identity is the sanitized view attached to authenticated requests. It
// never carries the session key.
type Identity struct {
	UserID    string `json:"userId"`
	OpenID    string `json:"openid"`
	Phone     string `json:"phone,omitempty"`
	NickName  string `json:"nickName,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

func (u *User) Identity() *Identity {
	return &Identity{
		UserID:    u.ID,
		OpenID:    u.OpenID,
		Phone:     u.Phone,
		NickName:  u.NickName,
		AvatarURL: u.AvatarURL,
	}
}

// Profile is what the check and update-profile calls return.
type Profile struct {
	UserID    string `json:"userId"`
	Phone     string `json:"phone,omitempty"`
	NickName  string `json:"nickName,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

func (u *User) Profile() *Profile {
	return &Profile{
		UserID:    u.ID,
		Phone:     u.Phone,
		NickName:  u.NickName,
		AvatarURL: u.AvatarURL,
	}
}

// Stats summarises the store.
type Stats struct {
	TotalUsers int   `json:"totalUsers"`
	NextID     int64 `json:"nextId"`
}
