// Package web provides the HTTP server for the LDAP REST gateway.
//
// # Architecture
//
// The package implements a small, two-route Fiber v2 application:
//
//	┌─────────────────────────────────────┐
//	│  HTTP Layer (Fiber Handlers)         │
//	│  • GET  /      liveness probe        │
//	│  • POST /query authenticated gateway │
//	└─────────────────────────────────────┘
//	            ↓
//	┌─────────────────────────────────────┐
//	│  internal/envelope (signature auth)  │
//	│  internal/ldapsession (LDAP batch)   │
//	└─────────────────────────────────────┘
//
// App is the central application structure:
//
//	type App struct {
//	    verifier        *envelope.Verifier
//	    ldapDialTimeout time.Duration
//	    requestTimeout  time.Duration
//	    fiber           *fiber.App
//	}
//
// # Request Handling
//
// POST /query runs, in order: body parsing, envelope verification
// (internal/envelope), LDAP batch execution (internal/ldapsession), and
// response encoding. Every step that rejects the request does so with a
// *gatewayerr.Error, which the handler writes itself (writeError) as the
// canonical {"result": false, "message": ...} envelope with the matching
// HTTP status. Errors returned to Fiber go through its error handler.
//
// # Middleware
//
//   - helmet: baseline security headers.
//   - compress: response compression.
//   - timeout: wraps /query in the configured per-request timeout,
//     producing HTTP 408 on expiry.
//
// # TLS
//
// The server listens through a *tlsmaterial.Handle so a reload (HUP/USR2,
// see internal/reload) is visible to the next handshake without rebinding
// the listener.
package web
