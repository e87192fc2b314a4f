// Package web provides the HTTP surface of the gateway (C8 in the design):
// the liveness probe, the authenticated /query endpoint, and the
// request-level timeout and error-envelope middleware around them.
package web

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ldap-rest-gateway/internal/envelope"
	"ldap-rest-gateway/internal/gatewayerr"
	"ldap-rest-gateway/internal/keystore"
	"ldap-rest-gateway/internal/ldapsession"
	"ldap-rest-gateway/internal/options"
	"ldap-rest-gateway/internal/tlsmaterial"
)

// App wires the envelope verifier, the request-scoped LDAP session runner,
// and the Fiber HTTP server together.
type App struct {
	verifier        *envelope.Verifier
	ldapDialTimeout time.Duration
	requestTimeout  time.Duration

	fiber *fiber.App
}

// NewApp loads the authorized-key set and TLS material, builds the shared
// application state the reload controller (C6) will later swap under, and
// registers all routes.
func NewApp(opts *options.Opts) (*App, *sync.RWMutex, *keystore.Set, *tlsmaterial.Handle, error) {
	keys, err := keystore.Load(opts.AuthorizedKeysPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	log.Info().Int("count", keys.Len()).Str("path", opts.AuthorizedKeysPath).Msg("authorized key set loaded")

	cert, err := tlsmaterial.Load(opts.CertPath, opts.KeyPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	tlsHandle := tlsmaterial.NewHandle(cert)

	var keysMu sync.RWMutex

	verifier := envelope.NewVerifier(&keysMu, &keys, opts.Namespace)

	a := &App{
		verifier:        verifier,
		ldapDialTimeout: opts.LDAPDialTimeout,
		requestTimeout:  opts.RequestTimeout,
		fiber:           createFiberApp(),
	}

	a.setupRoutes()

	return a, &keysMu, &keys, tlsHandle, nil
}

func createFiberApp() *fiber.App {
	f := fiber.New(fiber.Config{
		AppName:      "ldap-rest-gateway",
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: handleError,
	})
	setupMiddleware(f)

	return f
}

func setupMiddleware(f *fiber.App) {
	f.Use(requestid.New(requestid.Config{
		Generator: func() string { return uuid.New().String() },
	}))
	f.Use(helmet.New())
	f.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
}

func (a *App) setupRoutes() {
	a.fiber.Get("/", a.livenessHandler)
	a.fiber.Post("/query", timeout.NewWithContext(a.queryHandler, a.requestTimeout))
}

// Listen starts serving HTTPS on addr using the live-swappable TLS handle:
// new handshakes always read the handle's current certificate, so a reload
// takes effect without rebinding the listener.
func (a *App) Listen(addr string, tlsHandle *tlsmaterial.Handle) error {
	ln, err := tls.Listen("tcp", addr, tlsHandle.Config())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	return a.fiber.Listener(ln)
}

// Shutdown gracefully shuts down the Fiber server, waiting at most timeout
// for in-flight requests to complete.
func (a *App) Shutdown(timeout time.Duration) error {
	return a.fiber.ShutdownWithTimeout(timeout)
}

func handleError(c *fiber.Ctx, err error) error {
	requestID, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)

	if gwErr, ok := err.(*gatewayerr.Error); ok {
		return writeError(c, gwErr)
	}

	if fiberErr, ok := err.(*fiber.Error); ok {
		if fiberErr.Code == fiber.StatusRequestTimeout {
			return writeError(c, gatewayerr.Timeout())
		}

		log.Error().Err(err).Str("request_id", requestID).Msg("request failed")
		c.Status(fiberErr.Code)

		return c.JSON(fiber.Map{"result": false, "message": "Internal server error"})
	}

	log.Error().Err(err).Str("request_id", requestID).Msg("unhandled request error")
	c.Status(fiber.StatusInternalServerError)

	return c.JSON(fiber.Map{"result": false, "message": "Internal server error"})
}

func writeError(c *fiber.Ctx, err *gatewayerr.Error) error {
	c.Status(err.Status)

	return c.JSON(fiber.Map{"result": false, "message": err.Message})
}

func (a *App) livenessHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": true})
}

func (a *App) queryHandler(c *fiber.Ctx) error {
	var req envelope.Request
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, gatewayerr.BadRequestBody(err))
	}

	if err := a.verifier.Verify(req); err != nil {
		gwErr, ok := err.(*gatewayerr.Error)
		if !ok {
			gwErr = gatewayerr.Internal(err)
		}

		return writeError(c, gwErr)
	}

	var batch ldapsession.Batch
	if err := batch.UnmarshalJSON([]byte(req.Data)); err != nil {
		return writeError(c, gatewayerr.BadRequestBody(err))
	}

	results, err := ldapsession.Run(c.UserContext(), batch, a.ldapDialTimeout)
	if err != nil {
		if errors.Is(c.UserContext().Err(), context.DeadlineExceeded) {
			return writeError(c, gatewayerr.Timeout())
		}

		gwErr, ok := err.(*gatewayerr.Error)
		if !ok {
			gwErr = gatewayerr.Internal(err)
		}

		return writeError(c, gwErr)
	}

	data, err := marshalResults(results)
	if err != nil {
		return writeError(c, gatewayerr.Serialization(err))
	}

	return c.JSON(fiber.Map{"result": true, "data": data})
}
