package ldapcmd

import (
	"encoding/json"
	"fmt"
)

// ResultKind discriminates the Command Result union.
type ResultKind string

const (
	ResultKindCommon   ResultKind = "Common"
	ResultKindSearch   ResultKind = "Search"
	ResultKindCompare  ResultKind = "Compare"
	ResultKindExtended ResultKind = "Extended"
)

// Common is the outcome shape shared by every LDAP operation: an LDAP
// result code, matched DN, diagnostic text, referrals, and controls.
type Common struct {
	RC      int       `json:"rc"`
	Matched string    `json:"matched"`
	Text    string    `json:"text"`
	Refs    []string  `json:"refs"`
	Ctrls   []Control `json:"ctrls"`
}

// SearchResult carries the operation outcome plus the matched entries.
// Compare results do not surface a derived boolean; rc=5 is LDAP's
// compareFalse and rc=6 is compareTrue, and callers are expected to
// interpret rc directly, per the design notes' open question.
type SearchResult struct {
	Result Common        `json:"result"`
	Data   []ResultEntry `json:"data"`
}

type CompareResult struct {
	Result Common `json:"result"`
}

// ExtendedOperation is the OID name plus opaque value of an extended
// operation response (who-am-I, password-modify, or a generic extended
// op all funnel through this shape).
type ExtendedOperation struct {
	Name  *string `json:"name"`
	Value []byte  `json:"value"`
}

type ExtendedResult struct {
	Result    Common            `json:"result"`
	Operation ExtendedOperation `json:"operation"`
}

// Result is the tagged union returned by Command.Execute. Exactly one of
// the typed fields is populated, matching Kind.
type Result struct {
	Kind     ResultKind
	Common   *Common
	Search   *SearchResult
	Compare  *CompareResult
	Extended *ExtendedResult
}

func (r Result) MarshalJSON() ([]byte, error) {
	var body any

	switch r.Kind {
	case ResultKindCommon:
		body = r.Common
	case ResultKindSearch:
		body = r.Search
	case ResultKindCompare:
		body = r.Compare
	case ResultKindExtended:
		body = r.Extended
	default:
		return nil, fmt.Errorf("unknown result kind %q", r.Kind)
	}

	return marshalTagged(string(r.Kind), body)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type ResultKind `json:"type"`
	}

	if err := json.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("command result: %w", err)
	}

	r.Kind = tag.Type

	switch tag.Type {
	case ResultKindCommon:
		r.Common = &Common{}

		return json.Unmarshal(data, r.Common)
	case ResultKindSearch:
		r.Search = &SearchResult{}

		return json.Unmarshal(data, r.Search)
	case ResultKindCompare:
		r.Compare = &CompareResult{}

		return json.Unmarshal(data, r.Compare)
	case ResultKindExtended:
		r.Extended = &ExtendedResult{}

		return json.Unmarshal(data, r.Extended)
	default:
		return fmt.Errorf("unknown command result type %q", tag.Type)
	}
}

func commonResult(rc int, matched, text string, refs []string, ctrls []Control) *Result {
	if refs == nil {
		refs = []string{}
	}

	if ctrls == nil {
		ctrls = []Control{}
	}

	return &Result{
		Kind:   ResultKindCommon,
		Common: &Common{RC: rc, Matched: matched, Text: text, Refs: refs, Ctrls: ctrls},
	}
}
