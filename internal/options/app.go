// Package options provides configuration parsing and environment variable
// handling for the LDAP REST gateway.
package options

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Opts holds all configuration options for the gateway.
type Opts struct {
	LogLevel zerolog.Level

	Host string
	Port int

	CertPath string
	KeyPath  string

	AuthorizedKeysPath string
	Namespace          string

	RequestTimeout  time.Duration
	LDAPDialTimeout time.Duration
	ShutdownTimeout time.Duration
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

func envStringOrDefault(name, d string) string {
	if v, exists := os.LookupEnv(name); exists && v != "" {
		return v
	}

	return d
}

func envDurationOrDefault(name string, d time.Duration) (time.Duration, error) {
	raw := envStringOrDefault(name, d.String())

	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, ValidationError{
			Field:   name,
			Message: fmt.Sprintf("could not parse %q as duration: %v", raw, err),
		}
	}

	return v, nil
}

func envLogLevelOrDefault(name string, d zerolog.Level) (string, error) {
	raw := envStringOrDefault(name, d.String())

	if _, err := zerolog.ParseLevel(raw); err != nil {
		return "", ValidationError{
			Field:   name,
			Message: fmt.Sprintf("could not parse %q as log level: %v", raw, err),
		}
	}

	return raw, nil
}

func envIntOrDefault(name string, d int) (int, error) {
	raw := envStringOrDefault(name, strconv.Itoa(d))

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ValidationError{
			Field:   name,
			Message: fmt.Sprintf("could not parse %q as int: %v", raw, err),
		}
	}

	return v, nil
}

// Parse parses command line flags and environment variables to build the
// gateway's configuration. It loads from .env files, parses flags, and
// validates the values it parses; no setting is required.
func Parse() (*Opts, error) {
	if err := godotenv.Load(".env.local", ".env"); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	logLevelStr, err := envLogLevelOrDefault("LOG_LEVEL", zerolog.InfoLevel)
	if err != nil {
		return nil, err
	}

	port, err := envIntOrDefault("PORT", 3000)
	if err != nil {
		return nil, err
	}

	requestTimeout, err := envDurationOrDefault("REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	ldapDialTimeout, err := envDurationOrDefault("LDAP_DIAL_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := envDurationOrDefault("SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	var (
		fLogLevel = flag.String("log-level", logLevelStr,
			"Log level. Valid values are: trace, debug, info, warn, error, fatal, panic.")

		fHost = flag.String("host", envStringOrDefault("HOST", "0.0.0.0"), "Bind address.")
		fPort = flag.Int("port", port, "Bind port.")

		fCertPath = flag.String("cert-path", envStringOrDefault("CERT_PATH", ""),
			"PEM certificate path. If set together with --key-path, disables self-signed synthesis.")
		fKeyPath = flag.String("key-path", envStringOrDefault("KEY_PATH", ""), "PEM private key path.")

		fAuthorizedKeysPath = flag.String("authorized-keys-path", envStringOrDefault("AUTHORIZED_KEYS_PATH", "authorized_keys"),
			"Directory of PEM-encoded authorized public keys.")
		fNamespace = flag.String("namespace", envStringOrDefault("NAMESPACE", "ldap-rest"),
			"SSH signature namespace expected on incoming requests.")

		fRequestTimeout  = flag.Duration("request-timeout", requestTimeout, "Per-request timeout.")
		fLDAPDialTimeout = flag.Duration("ldap-dial-timeout", ldapDialTimeout, "LDAP dial timeout.")
		fShutdownTimeout = flag.Duration("shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout.")
	)

	if !flag.Parsed() {
		flag.Parse()
	}

	logLevel, err := zerolog.ParseLevel(*fLogLevel)
	if err != nil {
		return nil, ValidationError{Field: "log-level", Message: err.Error()}
	}

	return &Opts{
		LogLevel: logLevel,

		Host: *fHost,
		Port: *fPort,

		CertPath: *fCertPath,
		KeyPath:  *fKeyPath,

		AuthorizedKeysPath: *fAuthorizedKeysPath,
		Namespace:          *fNamespace,

		RequestTimeout:  *fRequestTimeout,
		LDAPDialTimeout: *fLDAPDialTimeout,
		ShutdownTimeout: *fShutdownTimeout,
	}, nil
}
