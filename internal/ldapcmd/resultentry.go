package ldapcmd

import (
	"encoding/json"
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

// BERClass names the four ASN.1 tag classes.
type BERClass string

const (
	ClassUniversal   BERClass = "universal"
	ClassApplication BERClass = "application"
	ClassContext     BERClass = "context"
	ClassPrivate     BERClass = "private"
)

func classFromBER(c ber.Class) BERClass {
	switch c {
	case ber.ClassApplication:
		return ClassApplication
	case ber.ClassContext:
		return ClassContext
	case ber.ClassPrivate:
		return ClassPrivate
	default:
		return ClassUniversal
	}
}

func classToBER(c BERClass) ber.Class {
	switch c {
	case ClassApplication:
		return ber.ClassApplication
	case ClassContext:
		return ber.ClassContext
	case ClassPrivate:
		return ber.ClassPrivate
	default:
		return ber.ClassUniversal
	}
}

// Payload is the tagged union of a StructureTag's content: either raw
// primitive bytes, or a constructed list of child StructureTags.
type Payload struct {
	Primitive   []byte
	Constructed []StructureTag
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Constructed != nil {
		return json.Marshal(struct {
			Type  string         `json:"type"`
			Value []StructureTag `json:"value"`
		}{"Constructed", p.Constructed})
	}

	return json.Marshal(struct {
		Type  string `json:"type"`
		Value []byte `json:"value"`
	}{"Primitive", p.Primitive})
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}

	switch tag.Type {
	case "Primitive":
		var v struct {
			Value []byte `json:"value"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}

		p.Primitive = v.Value
	case "Constructed":
		var v struct {
			Value []StructureTag `json:"value"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}

		p.Constructed = v.Value
	default:
		return fmt.Errorf("unknown BER payload type %q", tag.Type)
	}

	return nil
}

// StructureTag is one node of a BER-encoded structure, preserving class,
// tag id, and primitive/constructed discrimination.
type StructureTag struct {
	Class   BERClass `json:"class"`
	ID      int      `json:"id"`
	Payload Payload  `json:"payload"`
}

func structureTagFromPacket(p *ber.Packet) StructureTag {
	tag := StructureTag{
		Class: classFromBER(p.ClassType),
		ID:    int(p.Tag),
	}

	if len(p.Children) > 0 {
		children := make([]StructureTag, len(p.Children))
		for i, child := range p.Children {
			children[i] = structureTagFromPacket(child)
		}

		tag.Payload = Payload{Constructed: children}

		return tag
	}

	var raw []byte
	if p.Data != nil {
		raw = p.Data.Bytes()
	}

	tag.Payload = Payload{Primitive: raw}

	return tag
}

func (t StructureTag) toPacket() *ber.Packet {
	if t.Payload.Constructed != nil {
		p := ber.Encode(classToBER(t.Class), ber.TypeConstructed, ber.Tag(t.ID), nil, "")
		for _, child := range t.Payload.Constructed {
			p.AppendChild(child.toPacket())
		}

		return p
	}

	p := ber.Encode(classToBER(t.Class), ber.TypePrimitive, ber.Tag(t.ID), nil, "")
	p.Data.Write(t.Payload.Primitive)

	return p
}

// ResultEntry is a search result entry, re-expressed as a canonical BER
// structure-tag tree built from the parsed ldap.Entry (go-ldap's public API
// surfaces entries already decoded, not the raw wire packet, so the tree
// below is synthesized rather than captured off the socket — see the
// design notes for this tradeoff) paired with the entry's controls.
type ResultEntry struct {
	Tag      StructureTag `json:"tag"`
	Controls []Control    `json:"ctrls"`
}

// FromLDAPEntry builds a ResultEntry from a parsed search result entry.
// The tree mirrors a SearchResultEntry PDU: a constructed sequence holding
// the object name (an octet string) followed by a sequence of
// (attribute-description, attribute-values) sequences.
func FromLDAPEntry(entry *ldap.Entry) ResultEntry {
	root := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ber.Tag(4), nil, "SearchResultEntry")
	root.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, entry.DN, "objectName"))

	attrsSeq := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "attributes")

	for _, attr := range entry.Attributes {
		attrSeq := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "attribute")
		attrSeq.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, attr.Name, "type"))

		valuesSet := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSet, nil, "vals")
		for _, v := range attr.Values {
			valuesSet.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, v, "val"))
		}

		attrSeq.AppendChild(valuesSet)
		attrsSeq.AppendChild(attrSeq)
	}

	root.AppendChild(attrsSeq)

	return ResultEntry{
		Tag:      structureTagFromPacket(root),
		Controls: nil,
	}
}
