package ldapcmd

import "github.com/go-ldap/ldap/v3"

// knownControlOIDs is the fixed, closed table of control type OIDs the
// gateway recognizes by canonical dotted string. Anything else serializes
// with a null type_oid, per the data model.
var knownControlOIDs = map[string]bool{
	"1.2.840.113556.1.4.319":   true, // paged-results
	"1.3.6.1.1.13.1":           true, // pre-read response
	"1.3.6.1.1.13.2":           true, // post-read response
	"1.3.6.1.4.1.4203.1.9.1.3": true, // sync-done
	"1.3.6.1.4.1.4203.1.9.1.2": true, // sync-state
	"2.16.840.1.113730.3.4.2":  true, // manage-DSA-IT
	"1.2.826.0.1.3344810.2.3":  true, // matched-values
}

// RawControl is the control's wire-level payload.
type RawControl struct {
	CType string `json:"ctype"`
	Crit  bool   `json:"crit"`
	Val   []byte `json:"val,omitempty"`
}

// Control pairs an (optional, known-OID-only) canonical type name with the
// raw control payload.
type Control struct {
	TypeOID *string    `json:"type_oid"`
	Raw     RawControl `json:"raw"`
}

// FromLDAPControl converts a parsed go-ldap control into the gateway's wire
// representation. go-ldap's Control interface only exposes the type OID and
// a human-readable string, not the raw criticality/value octets, so Crit
// defaults false and Val is left empty; controls round-trip by identity
// (type_oid) rather than by byte-for-byte payload.
func FromLDAPControl(c ldap.Control) Control {
	oid := c.GetControlType()

	out := Control{Raw: RawControl{CType: oid}}

	if knownControlOIDs[oid] {
		v := oid
		out.TypeOID = &v
	}

	return out
}
