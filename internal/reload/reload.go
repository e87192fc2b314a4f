// Package reload implements the signal-driven reload controller (C6 in
// the design): on HUP or USR2, re-read the authorized-key directory and
// the TLS material from disk and swap them in, without touching the
// listener or dropping any established connection.
package reload

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"ldap-rest-gateway/internal/keystore"
	"ldap-rest-gateway/internal/tlsmaterial"
)

// Controller owns the shared, swappable authorized-key set and TLS handle
// and reloads both in response to HUP/USR2.
type Controller struct {
	keysMu   *sync.RWMutex
	keys     *keystore.Set
	keysPath string

	tls      *tlsmaterial.Handle
	certPath string
	keyPath  string
}

// New builds a Controller over the live key set and TLS handle created at
// startup. keysMu guards *keys and is the same mutex the envelope verifier
// (C3) reads under.
func New(keysMu *sync.RWMutex, keys *keystore.Set, keysPath string, tls *tlsmaterial.Handle, certPath, keyPath string) *Controller {
	return &Controller{
		keysMu:   keysMu,
		keys:     keys,
		keysPath: keysPath,
		tls:      tls,
		certPath: certPath,
		keyPath:  keyPath,
	}
}

// Run starts a goroutine that reloads on every HUP or USR2 and returns
// immediately. Calling the returned stop func unregisters the signals
// (signal.Stop) and ends the goroutine.
func (c *Controller) Run() (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGUSR2)

	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig, ok := <-sigCh:
				if !ok {
					return
				}

				log.Info().Str("signal", sig.String()).Msg("reload signal received")
				c.reload()
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// reload re-reads the key directory and TLS material, logging and keeping
// the previous state on any failure. Neither failure is fatal and neither
// reaches a client.
func (c *Controller) reload() {
	newKeys, err := keystore.Load(c.keysPath)
	if err != nil {
		log.Error().Err(err).Str("path", c.keysPath).Msg("reload: keeping previous authorized key set")
	} else {
		c.keysMu.Lock()
		*c.keys = newKeys
		c.keysMu.Unlock()

		log.Info().Int("count", newKeys.Len()).Msg("reload: authorized key set replaced")
	}

	newCert, err := tlsmaterial.Load(c.certPath, c.keyPath)
	if err != nil {
		log.Error().Err(err).Msg("reload: keeping previous TLS material")

		return
	}

	c.tls.Swap(newCert)
	log.Info().Msg("reload: TLS material replaced")
}
