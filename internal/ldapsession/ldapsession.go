// Package ldapsession implements the request-scoped LDAP session runner
// (C5 in the design): dial the query batch's target, execute its commands
// in order, and stop at the first transport-level failure.
package ldapsession

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"

	"ldap-rest-gateway/internal/gatewayerr"
	"ldap-rest-gateway/internal/ldapcmd"
)

const (
	defaultHost = "localhost"
	defaultPort = 389
)

// Batch is the decoded "data" payload of a /query request: an optional
// LDAP target override and the ordered command sequence to execute.
type Batch struct {
	Host     string             `json:"host"`
	Port     uint16             `json:"port"`
	Commands []ldapcmd.Command  `json:"commands"`
}

// UnmarshalJSON applies the batch's default host/port before overlaying
// whatever the client supplied.
func (b *Batch) UnmarshalJSON(data []byte) error {
	type alias struct {
		Host     *string           `json:"host"`
		Port     *uint16           `json:"port"`
		Commands []ldapcmd.Command `json:"commands"`
	}

	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	b.Host = defaultHost
	if a.Host != nil {
		b.Host = *a.Host
	}

	b.Port = defaultPort
	if a.Port != nil {
		b.Port = *a.Port
	}

	b.Commands = a.Commands

	return nil
}

// Run dials the batch's target, executes every command in order, and
// closes the session before returning. It returns exactly one
// *ldapcmd.Result (or nil, for unbind) per command, unless a
// transport-level failure aborts the batch early — in which case it
// returns a *gatewayerr.Error (kind ldap_connect or ldap_exec) and no
// results at all, per the design's discard-on-abort policy.
//
// If ctx is canceled while a command is in flight, the session's socket is
// closed immediately: the next blocking read or write unblocks with an
// error, which surfaces as an ldap_exec failure.
func Run(ctx context.Context, batch Batch, dialTimeout time.Duration) ([]*ldapcmd.Result, error) {
	addr := fmt.Sprintf("ldap://%s:%d", batch.Host, batch.Port)

	conn, err := ldap.DialURL(addr, ldap.DialWithDialer(&net.Dialer{Timeout: dialTimeout}))
	if err != nil {
		return nil, gatewayerr.LDAPConnect(err)
	}
	defer func() { _ = conn.Close() }()

	watchDone := make(chan struct{})
	defer close(watchDone)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-watchDone:
		}
	}()

	results := make([]*ldapcmd.Result, 0, len(batch.Commands))

	for i, cmd := range batch.Commands {
		result, err := cmd.Execute(conn)
		if err != nil {
			if badInput, ok := err.(*ldapcmd.BadInputError); ok {
				return nil, gatewayerr.BadRequestBody(badInput.Err)
			}

			return nil, gatewayerr.LDAPExec(fmt.Sprintf("command %d (%s)", i, cmd.Kind), err)
		}

		results = append(results, result)
	}

	return results, nil
}
