package session

import "time"

// CapabilityAdmin is the capability name granting access to the admin area.
const CapabilityAdmin = "admin"

// Identity is the profile of the authenticated user as returned by the
// backend. Phone is optional.
type Identity struct {
	ID              string    `json:"id"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	Email           string    `json:"email"`
	Phone           *string   `json:"phone,omitempty"`
	AccountVerified bool      `json:"accountVerified"`
	CreatedAt       time.Time `json:"createdAt"`
	Capabilities    []string  `json:"capabilities,omitempty"`
}

// HasCapability reports whether the identity carries the named capability.
func (i Identity) HasCapability(name string) bool {
	for _, c := range i.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// Empty reports whether the identity has not been loaded yet, which is the
// case for a session restored from durable storage.
func (i Identity) Empty() bool {
	return i.ID == "" && i.Email == ""
}

func (i Identity) clone() Identity {
	out := i
	if i.Phone != nil {
		p := *i.Phone
		out.Phone = &p
	}
	if i.Capabilities != nil {
		out.Capabilities = append([]string(nil), i.Capabilities...)
	}
	return out
}

// IdentityPatch lists the profile fields a caller wants to change. Nil
// pointers leave the matching field untouched.
type IdentityPatch struct {
	FirstName       *string `json:"firstName,omitempty"`
	LastName        *string `json:"lastName,omitempty"`
	Email           *string `json:"email,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	AccountVerified *bool   `json:"-"`
}

// IsZero reports whether the patch changes nothing.
func (p IdentityPatch) IsZero() bool {
	return p.FirstName == nil && p.LastName == nil && p.Email == nil &&
		p.Phone == nil && p.AccountVerified == nil
}

// Apply returns a copy of id with the patch merged in.
func (p IdentityPatch) Apply(id Identity) Identity {
	out := id.clone()
	if p.FirstName != nil {
		out.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		out.LastName = *p.LastName
	}
	if p.Email != nil {
		out.Email = *p.Email
	}
	if p.Phone != nil {
		phone := *p.Phone
		out.Phone = &phone
	}
	if p.AccountVerified != nil {
		out.AccountVerified = *p.AccountVerified
	}
	return out
}

// Session is an authenticated session. Restored is set when the token came
// from durable storage and the identity has not been fetched yet.
type Session struct {
	Token    string
	User     Identity
	Restored bool
}

func (s Session) clone() Session {
	s.User = s.User.clone()
	return s
}
