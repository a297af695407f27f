package environment

import (
	"fmt"
	"strings"
)

// MaxNameLength is the longest accepted environment name.
const MaxNameLength = 63

// Name is a validated environment name. It is used as a directory name, an
// instance name and a DNS label, so the alphabet is restricted accordingly.
type Name string

// NewName validates s and returns it as a Name.
func NewName(s string) (Name, error) {
	if err := ValidateName(s); err != nil {
		return "", err
	}
	return Name(s), nil
}

// String implements fmt.Stringer.
func (n Name) String() string {
	return string(n)
}

// ValidateName checks s against the naming rules: 1 to 63 characters of
// lowercase letters, digits and '-', starting with a letter, not ending with
// '-' and without consecutive '-'.
func ValidateName(s string) error {
	if s == "" {
		return &NameError{Name: s, Reason: "name must not be empty"}
	}
	if len(s) > MaxNameLength {
		return &NameError{Name: s, Reason: fmt.Sprintf("name must be at most %d characters", MaxNameLength)}
	}
	if s[0] < 'a' || s[0] > 'z' {
		return &NameError{Name: s, Reason: "name must start with a lowercase letter"}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return &NameError{Name: s, Reason: fmt.Sprintf("invalid character %q at position %d", c, i)}
		}
	}
	if strings.HasSuffix(s, "-") {
		return &NameError{Name: s, Reason: "name must not end with '-'"}
	}
	if strings.Contains(s, "--") {
		return &NameError{Name: s, Reason: "name must not contain consecutive '-'"}
	}
	return nil
}

// NameError reports an invalid environment name.
type NameError struct {
	Name   string
	Reason string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("invalid environment name %q: %s", e.Name, e.Reason)
}

// Help returns remediation text for the operator.
func (e *NameError) Help() string {
	return "Use 1-63 lowercase letters, digits and single hyphens, starting with a letter, for example 'tracker-staging'."
}
