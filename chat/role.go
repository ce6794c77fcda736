package chat

import (
	"fmt"
	"strings"
)

// Role is the marketplace role a participant acts in.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleSchool     Role = "school"
	RolePartner    Role = "partner"
)

var roleLabels = map[Role]string{
	RoleStudent:    "Student",
	RoleInstructor: "Instructor",
	RoleSchool:     "Dance School",
	RolePartner:    "Dance Partner",
}

// Label returns the display name of the role.
func (r Role) Label() string {
	if l, ok := roleLabels[r]; ok {
		return l
	}
	return "User"
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

// ParseRole normalizes a role as it arrives from profile data, either a single
// string or a list of strings. For a list the first known role wins. An empty
// value yields the zero Role and no error.
func ParseRole(v any) (Role, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case Role:
		return parseRoleString(string(v))
	case string:
		return parseRoleString(v)
	case []string:
		for _, s := range v {
			if r, err := parseRoleString(s); err == nil && r != "" {
				return r, nil
			}
		}
		if len(v) == 0 {
			return "", nil
		}
		return "", fmt.Errorf("unknown roles %q", v)
	case []any:
		ss := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return "", fmt.Errorf("role of type %T", e)
			}
			ss = append(ss, s)
		}
		return ParseRole(ss)
	default:
		return "", fmt.Errorf("role of type %T", v)
	}
}

func parseRoleString(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
