package auth

import "strings"

// User is the authenticated identity the assistant reads a greeting name
// and a language preference from.
type User struct {
	DisplayName string
	LanguageTag string
}

// FirstName returns the leading word of the display name.
func (u User) FirstName() string {
	name := strings.TrimSpace(u.DisplayName)
	if name == "" {
		return ""
	}
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}

// Provider exposes the current user, if any.
type Provider interface {
	CurrentUser() (User, bool)
}

// Static is a fixed-identity provider, used for the per-session identity
// announced by the device on connect.
type Static struct {
	user User
	ok   bool
}

func NewStatic(displayName, languageTag string) *Static {
	if strings.TrimSpace(displayName) == "" {
		return &Static{}
	}
	return &Static{user: User{DisplayName: displayName, LanguageTag: languageTag}, ok: true}
}

func (s *Static) CurrentUser() (User, bool) { return s.user, s.ok }
