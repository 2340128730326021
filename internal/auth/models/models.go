package models

import "strings"

// UserInfo is the normalized identity returned by a provider's userinfo
// endpoint. It is also the body sent to the backend linker.
type UserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// DisplayName returns Name, or the local part of Email when the provider
// supplied no name.
func (u *UserInfo) DisplayName() string {
	return DisplayNameFor(u.Name, u.Email)
}

// DisplayNameFor picks name, falling back to the email local part.
func DisplayNameFor(name, email string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}
