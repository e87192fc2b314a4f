package ldapsession

import (
	"bufio"
	"net"
	"testing"
	"time"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/stretchr/testify/require"
)

// fakeLDAPServer is a minimal RFC4511 responder, grounded on the
// accept-loop-plus-per-connection-handler shape of a raw LDAP listener
// (the same shape summerwind-etcdap's server.go uses), but built directly
// on go-asn1-ber — already a direct dependency via internal/ldapcmd —
// instead of a bespoke wire-protocol package. It answers bind, search,
// modify, add, delete, modify-DN and compare requests with
// LDAPResult{success} and ignores unbind; any other request type drops the
// connection. It also silently drops the connection after closeAfter
// successful responses, to exercise ldapsession's transport-failure abort
// path.
type fakeLDAPServer struct {
	ln         net.Listener
	closeAfter int           // 0 means never drop
	delay      time.Duration // delay before each response, to let a test race a cancellation
}

func startFakeLDAPServer(t *testing.T, closeAfter int) string {
	t.Helper()

	return startFakeLDAPServerWithDelay(t, closeAfter, 0)
}

func startFakeLDAPServerWithDelay(t *testing.T, closeAfter int, delay time.Duration) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &fakeLDAPServer{ln: ln, closeAfter: closeAfter, delay: delay}

	go srv.serve()
	t.Cleanup(func() { _ = ln.Close() })

	return ln.Addr().String()
}

func (s *fakeLDAPServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	answered := 0

	for {
		packet, err := ber.ReadPacket(r)
		if err != nil {
			return
		}

		if len(packet.Children) < 2 {
			return
		}

		messageID := packet.Children[0].Value.(int64)
		op := packet.Children[1]

		if op.Tag == 2 { // UnbindRequest: no response defined
			continue
		}

		if s.closeAfter > 0 && answered >= s.closeAfter {
			return
		}

		respTag := responseTagFor(op.Tag)
		if respTag == 0 {
			return
		}

		if s.delay > 0 {
			time.Sleep(s.delay)
		}

		msg := encodeLDAPResult(messageID, respTag, 0, "", "")
		if _, err := conn.Write(msg.Bytes()); err != nil {
			return
		}

		answered++
	}
}

func responseTagFor(requestTag ber.Tag) ber.Tag {
	switch requestTag {
	case 0: // BindRequest
		return 1
	case 3: // SearchRequest -> SearchResultDone
		return 5
	case 6: // ModifyRequest
		return 7
	case 8: // AddRequest
		return 9
	case 10: // DelRequest
		return 11
	case 12: // ModifyDNRequest
		return 13
	case 14: // CompareRequest
		return 15
	default:
		return 0
	}
}

func encodeLDAPResult(messageID int64, appTag ber.Tag, resultCode int64, matchedDN, diagMsg string) *ber.Packet {
	result := ber.Encode(ber.ClassApplication, ber.TypeConstructed, appTag, nil, "LDAPResult")
	result.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, resultCode, "resultCode"))
	result.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, matchedDN, "matchedDN"))
	result.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, diagMsg, "diagnosticMessage"))

	msg := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "LDAPMessage")
	msg.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, messageID, "messageID"))
	msg.AppendChild(result)

	return msg
}
