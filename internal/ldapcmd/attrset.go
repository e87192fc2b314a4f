package ldapcmd

import (
	"encoding/json"
	"fmt"
)

// AttrSet is a (name, set<string>) pair, wire-encoded as a two-element
// JSON array: ["cn", ["alice"]].
type AttrSet struct {
	Name   string
	Values []string
}

func (a AttrSet) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{a.Name, a.Values})
}

func (a *AttrSet) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("attribute must be a [name, values] pair: %w", err)
	}

	if err := json.Unmarshal(pair[0], &a.Name); err != nil {
		return fmt.Errorf("attribute name: %w", err)
	}

	if err := json.Unmarshal(pair[1], &a.Values); err != nil {
		return fmt.Errorf("attribute values: %w", err)
	}

	return nil
}
