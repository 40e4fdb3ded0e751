package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownRole = errors.New("unknown role")

type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleHRManager Role = "HR_MANAGER"
	RoleRecruiter Role = "RECRUITER"
	RoleAnalyst   Role = "ANALYST"
)

// Roles lists every recognized role. New roles must be added here to be parseable.
var Roles = []Role{RoleAdmin, RoleHRManager, RoleRecruiter, RoleAnalyst}

func ParseRole(s string) (Role, error) {
	candidate := Role(strings.ToUpper(strings.TrimSpace(s)))
	for _, r := range Roles {
		if r == candidate {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func (r Role) String() string {
	return string(r)
}

func (r Role) MarshalJSON() ([]byte, error) {
	if _, err := ParseRole(string(r)); err != nil {
		return nil, err
	}
	return json.Marshal(string(r))
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Identity is the signed-in user as held by the client.
type Identity struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	DisplayName      string `json:"displayName"`
	OrganizationName string `json:"organizationName,omitempty"`
	Role             Role   `json:"role"`
	EmailVerified    bool   `json:"emailVerified"`
	AvatarURL        string `json:"avatarUrl,omitempty"`
}
