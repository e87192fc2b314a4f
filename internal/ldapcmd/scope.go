package ldapcmd

import (
	"encoding/json"
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// Scope mirrors ldap.Scope* but accepts both the textual and numeric
// spellings on the wire, per the command model's scope parser.
type Scope int

const (
	ScopeBaseObject   Scope = ldap.ScopeBaseObject
	ScopeSingleLevel  Scope = ldap.ScopeSingleLevel
	ScopeWholeSubtree Scope = ldap.ScopeWholeSubtree
)

func (s Scope) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(s))
}

func (s *Scope) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		switch asString {
		case "base":
			*s = ScopeBaseObject
		case "one":
			*s = ScopeSingleLevel
		case "sub":
			*s = ScopeWholeSubtree
		default:
			return fmt.Errorf("unknown scope %q", asString)
		}

		return nil
	}

	var asInt int
	if err := json.Unmarshal(data, &asInt); err != nil {
		return fmt.Errorf("scope must be a string or integer: %w", err)
	}

	switch asInt {
	case 0, 1, 2:
		*s = Scope(asInt)
	default:
		return fmt.Errorf("unknown scope %d", asInt)
	}

	return nil
}
