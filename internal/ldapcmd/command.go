package ldapcmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

// CommandKind discriminates the Command union.
type CommandKind string

const (
	CommandKindBind     CommandKind = "bind"
	CommandKindUnbind   CommandKind = "unbind"
	CommandKindSearch   CommandKind = "search"
	CommandKindAdd      CommandKind = "add"
	CommandKindCompare  CommandKind = "compare"
	CommandKindDelete   CommandKind = "delete"
	CommandKindModify   CommandKind = "modify"
	CommandKindModifyDN CommandKind = "modifydn"
	CommandKindWhoAmI   CommandKind = "whoami"
	CommandKindPasswd   CommandKind = "passwd"
	CommandKindExtended CommandKind = "extended"
)

type BindCommand struct {
	DN string `json:"dn"`
	PW string `json:"pw"`
}

type UnbindCommand struct{}

type SearchCommand struct {
	Base   string   `json:"base"`
	Scope  Scope    `json:"scope"`
	Filter string   `json:"filter"`
	Attrs  []string `json:"attrs"`
}

type AddCommand struct {
	DN    string    `json:"dn"`
	Attrs []AttrSet `json:"attrs"`
}

type CompareCommand struct {
	DN        string `json:"dn"`
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

type DeleteCommand struct {
	DN string `json:"dn"`
}

type ModifyCommand struct {
	DN      string `json:"dn"`
	Changes []Mod  `json:"changes"`
}

type ModifyDNCommand struct {
	DN           string  `json:"dn"`
	RDN          string  `json:"rdn"`
	DeleteOld    bool    `json:"delete_old"`
	NewSuperior  *string `json:"new_superior"`
}

type WhoAmICommand struct{}

type PasswdCommand struct {
	UserID  *string `json:"user_id"`
	OldPass *string `json:"old_pass"`
	NewPass *string `json:"new_pass"`
}

type ExtendedCommand struct {
	Name  *string `json:"name"`
	Value []byte  `json:"value"`
}

// Command is the tagged union of every supported LDAP operation. Exactly
// one of the typed fields is populated, matching Kind.
type Command struct {
	Kind     CommandKind
	Bind     *BindCommand
	Unbind   *UnbindCommand
	Search   *SearchCommand
	Add      *AddCommand
	Compare  *CompareCommand
	Delete   *DeleteCommand
	Modify   *ModifyCommand
	ModifyDN *ModifyDNCommand
	WhoAmI   *WhoAmICommand
	Passwd   *PasswdCommand
	Extended *ExtendedCommand
}

func (c Command) MarshalJSON() ([]byte, error) {
	var body any

	switch c.Kind {
	case CommandKindBind:
		body = c.Bind
	case CommandKindUnbind:
		body = c.Unbind
	case CommandKindSearch:
		body = c.Search
	case CommandKindAdd:
		body = c.Add
	case CommandKindCompare:
		body = c.Compare
	case CommandKindDelete:
		body = c.Delete
	case CommandKindModify:
		body = c.Modify
	case CommandKindModifyDN:
		body = c.ModifyDN
	case CommandKindWhoAmI:
		body = c.WhoAmI
	case CommandKindPasswd:
		body = c.Passwd
	case CommandKindExtended:
		body = c.Extended
	default:
		return nil, fmt.Errorf("unknown command kind %q", c.Kind)
	}

	return marshalTagged(string(c.Kind), body)
}

func (c *Command) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type CommandKind `json:"type"`
	}

	if err := json.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("command: %w", err)
	}

	c.Kind = tag.Type

	switch tag.Type {
	case CommandKindBind:
		c.Bind = &BindCommand{}

		return json.Unmarshal(data, c.Bind)
	case CommandKindUnbind:
		c.Unbind = &UnbindCommand{}

		return nil
	case CommandKindSearch:
		c.Search = &SearchCommand{}

		return json.Unmarshal(data, c.Search)
	case CommandKindAdd:
		c.Add = &AddCommand{}

		return json.Unmarshal(data, c.Add)
	case CommandKindCompare:
		c.Compare = &CompareCommand{}

		return json.Unmarshal(data, c.Compare)
	case CommandKindDelete:
		c.Delete = &DeleteCommand{}

		return json.Unmarshal(data, c.Delete)
	case CommandKindModify:
		c.Modify = &ModifyCommand{}

		return json.Unmarshal(data, c.Modify)
	case CommandKindModifyDN:
		c.ModifyDN = &ModifyDNCommand{}

		return json.Unmarshal(data, c.ModifyDN)
	case CommandKindWhoAmI:
		c.WhoAmI = &WhoAmICommand{}

		return nil
	case CommandKindPasswd:
		c.Passwd = &PasswdCommand{}

		return json.Unmarshal(data, c.Passwd)
	case CommandKindExtended:
		c.Extended = &ExtendedCommand{}

		return json.Unmarshal(data, c.Extended)
	default:
		return fmt.Errorf("unknown command type %q", tag.Type)
	}
}

// BadInputError marks a failure that originates from the command's own
// arguments (e.g. a non-integer increment value) rather than from the LDAP
// transport. The session runner maps this to bad_request_body (400)
// instead of aborting the batch with ldap_exec (206).
type BadInputError struct {
	Err error
}

func (e *BadInputError) Error() string { return e.Err.Error() }
func (e *BadInputError) Unwrap() error { return e.Err }

// ldapOutcome classifies an error returned by a go-ldap Conn method.
// A *ldap.Error with a protocol-level result code (<200) is a normal LDAP
// outcome, not a transport failure, and is folded into the Common result.
// Anything else — a raw I/O error, or a *ldap.Error with a client-side
// code (network failure, TLS failure, etc., all >=200 in go-ldap's
// numbering) — is a transport-level failure that aborts the batch.
func ldapOutcome(err error) (rc int, matched, text string, transportErr error) {
	if err == nil {
		return 0, "", "", nil
	}

	var lerr *ldap.Error
	if errors.As(err, &lerr) && lerr.ResultCode < 200 {
		msg := lerr.Error()
		if lerr.Err != nil {
			msg = lerr.Err.Error()
		}

		return int(lerr.ResultCode), lerr.MatchedDN, msg, nil
	}

	return 0, "", "", err
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

func ptr(s string) *string { return &s }

// Execute runs the command against an open LDAP session and returns the
// single Result it produces, or nil for unbind (which consumes an index
// but yields no result). A non-nil error signals a transport-level
// failure that should abort the remainder of the batch.
func (c Command) Execute(conn *ldap.Conn) (*Result, error) {
	switch c.Kind {
	case CommandKindBind:
		err := conn.Bind(c.Bind.DN, c.Bind.PW)
		rc, matched, text, transportErr := ldapOutcome(err)
		if transportErr != nil {
			return nil, transportErr
		}

		return commonResult(rc, matched, text, nil, nil), nil

	case CommandKindUnbind:
		if err := conn.Unbind(); err != nil {
			return nil, err
		}

		return nil, nil

	case CommandKindSearch:
		return c.executeSearch(conn)

	case CommandKindAdd:
		req := ldap.NewAddRequest(c.Add.DN, nil)
		for _, a := range c.Add.Attrs {
			req.Attribute(a.Name, a.Values)
		}

		rc, matched, text, transportErr := ldapOutcome(conn.Add(req))
		if transportErr != nil {
			return nil, transportErr
		}

		return commonResult(rc, matched, text, nil, nil), nil

	case CommandKindCompare:
		return c.executeCompare(conn)

	case CommandKindDelete:
		req := ldap.NewDelRequest(c.Delete.DN, nil)

		rc, matched, text, transportErr := ldapOutcome(conn.Del(req))
		if transportErr != nil {
			return nil, transportErr
		}

		return commonResult(rc, matched, text, nil, nil), nil

	case CommandKindModify:
		return c.executeModify(conn)

	case CommandKindModifyDN:
		req := ldap.NewModifyDNRequest(c.ModifyDN.DN, c.ModifyDN.RDN, c.ModifyDN.DeleteOld, derefString(c.ModifyDN.NewSuperior))

		rc, matched, text, transportErr := ldapOutcome(conn.ModifyDN(req))
		if transportErr != nil {
			return nil, transportErr
		}

		return commonResult(rc, matched, text, nil, nil), nil

	case CommandKindWhoAmI:
		return c.executeWhoAmI(conn)

	case CommandKindPasswd:
		return c.executePasswd(conn)

	case CommandKindExtended:
		return c.executeExtended(conn)

	default:
		return nil, fmt.Errorf("unknown command kind %q", c.Kind)
	}
}

func (c Command) executeSearch(conn *ldap.Conn) (*Result, error) {
	req := ldap.NewSearchRequest(
		c.Search.Base,
		int(c.Search.Scope),
		ldap.NeverDerefAliases,
		0, 0, false,
		c.Search.Filter,
		c.Search.Attrs,
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		rc, matched, text, transportErr := ldapOutcome(err)
		if transportErr != nil {
			return nil, transportErr
		}

		return &Result{
			Kind: ResultKindSearch,
			Search: &SearchResult{
				Result: Common{RC: rc, Matched: matched, Text: text, Refs: []string{}, Ctrls: []Control{}},
				Data:   []ResultEntry{},
			},
		}, nil
	}

	entries := make([]ResultEntry, len(res.Entries))
	for i, e := range res.Entries {
		entries[i] = FromLDAPEntry(e)
	}

	ctrls := make([]Control, len(res.Controls))
	for i, ctl := range res.Controls {
		ctrls[i] = FromLDAPControl(ctl)
	}

	return &Result{
		Kind: ResultKindSearch,
		Search: &SearchResult{
			Result: Common{Refs: []string{}, Ctrls: ctrls},
			Data:   entries,
		},
	}, nil
}

func (c Command) executeCompare(conn *ldap.Conn) (*Result, error) {
	match, err := conn.Compare(c.Compare.DN, c.Compare.Attribute, c.Compare.Value)
	if err != nil {
		rc, matched, text, transportErr := ldapOutcome(err)
		if transportErr != nil {
			return nil, transportErr
		}

		return &Result{
			Kind:    ResultKindCompare,
			Compare: &CompareResult{Result: Common{RC: rc, Matched: matched, Text: text, Refs: []string{}, Ctrls: []Control{}}},
		}, nil
	}

	rc := 5 // LDAP compareFalse
	if match {
		rc = 6 // LDAP compareTrue
	}

	return &Result{
		Kind:    ResultKindCompare,
		Compare: &CompareResult{Result: Common{RC: rc, Refs: []string{}, Ctrls: []Control{}}},
	}, nil
}

// adIncrementControl marks a Modify request as an Active Directory atomic
// attribute increment (applied alongside a Replace change), per
// MS-ADTS 3.1.1.3.4.1.3.
type adIncrementControl struct{}

func (adIncrementControl) GetControlType() string { return "1.2.840.113556.1.4.7" }
func (adIncrementControl) String() string         { return "Increment Control" }
func (adIncrementControl) Encode() *ber.Packet {
	return ber.Encode(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, "1.2.840.113556.1.4.7", "Control Type")
}

func (c Command) executeModify(conn *ldap.Conn) (*Result, error) {
	req := ldap.NewModifyRequest(c.Modify.DN, nil)

	for _, m := range c.Modify.Changes {
		switch m.Kind {
		case ModKindAdd:
			req.Add(m.Add.Attr, m.Add.Values)
		case ModKindDelete:
			req.Delete(m.Delete.Attr, m.Delete.Values)
		case ModKindReplace:
			req.Replace(m.Replace.Attr, m.Replace.Values)
		case ModKindIncrement:
			delta, err := m.Increment.parseDelta()
			if err != nil {
				return nil, &BadInputError{Err: err}
			}

			req.Replace(m.Increment.Attr, []string{strconv.Itoa(delta)})
			req.Controls = append(req.Controls, adIncrementControl{})
		default:
			return nil, &BadInputError{Err: fmt.Errorf("unknown modify change type %q", m.Kind)}
		}
	}

	rc, matched, text, transportErr := ldapOutcome(conn.Modify(req))
	if transportErr != nil {
		return nil, transportErr
	}

	return commonResult(rc, matched, text, nil, nil), nil
}

func (c Command) executeWhoAmI(conn *ldap.Conn) (*Result, error) {
	res, err := conn.WhoAmI(nil)
	if err != nil {
		rc, matched, text, transportErr := ldapOutcome(err)
		if transportErr != nil {
			return nil, transportErr
		}

		return &Result{
			Kind: ResultKindExtended,
			Extended: &ExtendedResult{
				Result:    Common{RC: rc, Matched: matched, Text: text, Refs: []string{}, Ctrls: []Control{}},
				Operation: ExtendedOperation{Name: ptr("1.3.6.1.4.1.4203.1.11.3")},
			},
		}, nil
	}

	return &Result{
		Kind: ResultKindExtended,
		Extended: &ExtendedResult{
			Result:    Common{Refs: []string{}, Ctrls: []Control{}},
			Operation: ExtendedOperation{Name: ptr("1.3.6.1.4.1.4203.1.11.3"), Value: []byte(res.AuthzID)},
		},
	}, nil
}

func (c Command) executePasswd(conn *ldap.Conn) (*Result, error) {
	req := ldap.NewPasswordModifyRequest(derefString(c.Passwd.UserID), derefString(c.Passwd.OldPass), derefString(c.Passwd.NewPass))

	res, err := conn.PasswordModify(req)
	if err != nil {
		rc, matched, text, transportErr := ldapOutcome(err)
		if transportErr != nil {
			return nil, transportErr
		}

		return &Result{
			Kind: ResultKindExtended,
			Extended: &ExtendedResult{
				Result:    Common{RC: rc, Matched: matched, Text: text, Refs: []string{}, Ctrls: []Control{}},
				Operation: ExtendedOperation{Name: ptr("1.3.6.1.4.1.4203.1.11.1")},
			},
		}, nil
	}

	return &Result{
		Kind: ResultKindExtended,
		Extended: &ExtendedResult{
			Result:    Common{Refs: []string{}, Ctrls: []Control{}},
			Operation: ExtendedOperation{Name: ptr("1.3.6.1.4.1.4203.1.11.1"), Value: []byte(res.GeneratedPassword)},
		},
	}, nil
}

func (c Command) executeExtended(conn *ldap.Conn) (*Result, error) {
	req := ldap.NewExtendedRequest(derefString(c.Extended.Name), string(c.Extended.Value))

	res, err := conn.Extended(req)
	if err != nil {
		rc, matched, text, transportErr := ldapOutcome(err)
		if transportErr != nil {
			return nil, transportErr
		}

		return &Result{
			Kind: ResultKindExtended,
			Extended: &ExtendedResult{
				Result:    Common{RC: rc, Matched: matched, Text: text, Refs: []string{}, Ctrls: []Control{}},
				Operation: ExtendedOperation{Name: c.Extended.Name},
			},
		}, nil
	}

	var value []byte
	if res.Value != nil {
		value = res.Value
	}

	return &Result{
		Kind: ResultKindExtended,
		Extended: &ExtendedResult{
			Result:    Common{Refs: []string{}, Ctrls: []Control{}},
			Operation: ExtendedOperation{Name: ptr(res.Name), Value: value},
		},
	}, nil
}
