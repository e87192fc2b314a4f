package ldapcmd

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ModKind discriminates the Mod union.
type ModKind string

const (
	ModKindAdd       ModKind = "Add"
	ModKindDelete    ModKind = "Delete"
	ModKindReplace   ModKind = "Replace"
	ModKindIncrement ModKind = "Increment"
)

// AddMod, DeleteMod, ReplaceMod each carry an attribute and a set of values.
type AddMod struct {
	Attr   string   `json:"attr"`
	Values []string `json:"values"`
}

type DeleteMod struct {
	Attr   string   `json:"attr"`
	Values []string `json:"values"`
}

type ReplaceMod struct {
	Attr   string   `json:"attr"`
	Values []string `json:"values"`
}

// IncrementMod carries a single value, parsed as a decimal integer at
// execution time rather than at deserialization time — a non-integer value
// is a bad_request_body error surfaced from the command executor.
type IncrementMod struct {
	Attr  string `json:"attr"`
	Value string `json:"value"`
}

func (m IncrementMod) parseDelta() (int, error) {
	n, err := strconv.Atoi(m.Value)
	if err != nil {
		return 0, fmt.Errorf("increment value %q is not an integer: %w", m.Value, err)
	}

	return n, nil
}

// Mod is one entry of a modify command's change list.
type Mod struct {
	Kind      ModKind
	Add       *AddMod
	Delete    *DeleteMod
	Replace   *ReplaceMod
	Increment *IncrementMod
}

func (m Mod) MarshalJSON() ([]byte, error) {
	var body any

	switch m.Kind {
	case ModKindAdd:
		body = m.Add
	case ModKindDelete:
		body = m.Delete
	case ModKindReplace:
		body = m.Replace
	case ModKindIncrement:
		body = m.Increment
	default:
		return nil, fmt.Errorf("unknown mod kind %q", m.Kind)
	}

	return marshalTagged(string(m.Kind), body)
}

func (m *Mod) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type ModKind `json:"type"`
	}

	if err := json.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("modify change: %w", err)
	}

	m.Kind = tag.Type

	switch tag.Type {
	case ModKindAdd:
		m.Add = &AddMod{}

		return json.Unmarshal(data, m.Add)
	case ModKindDelete:
		m.Delete = &DeleteMod{}

		return json.Unmarshal(data, m.Delete)
	case ModKindReplace:
		m.Replace = &ReplaceMod{}

		return json.Unmarshal(data, m.Replace)
	case ModKindIncrement:
		m.Increment = &IncrementMod{}

		return json.Unmarshal(data, m.Increment)
	default:
		return fmt.Errorf("unknown modify change type %q", tag.Type)
	}
}

// marshalTagged merges a "type" discriminator into v's own JSON encoding.
func marshalTagged(kind string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}

	kindJSON, err := json.Marshal(kind)
	if err != nil {
		return nil, err
	}

	fields["type"] = kindJSON

	return json.Marshal(fields)
}
