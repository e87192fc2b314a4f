//go:build integration

package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// OpenLDAPContainer represents a running OpenLDAP container for testing.
type OpenLDAPContainer struct {
	Container testcontainers.Container
	Host      string
	Port      uint16
	BaseDN    string
	AdminDN   string
	AdminPass string
}

// OpenLDAPConfig holds configuration for the OpenLDAP container.
type OpenLDAPConfig struct {
	BaseDN       string
	AdminPass    string
	Organization string
	Domain       string
}

// DefaultOpenLDAPConfig returns sensible defaults for testing.
func DefaultOpenLDAPConfig() OpenLDAPConfig {
	return OpenLDAPConfig{
		BaseDN:       "dc=example,dc=org",
		AdminPass:    "adminpassword",
		Organization: "Example Inc",
		Domain:       "example.org",
	}
}

// StartOpenLDAP starts an OpenLDAP container for integration testing.
func StartOpenLDAP(ctx context.Context, config OpenLDAPConfig) (*OpenLDAPContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "osixia/openldap:1.5.0",
		ExposedPorts: []string{"389/tcp"},
		Env: map[string]string{
			"LDAP_ORGANISATION":   config.Organization,
			"LDAP_DOMAIN":         config.Domain,
			"LDAP_ADMIN_PASSWORD": config.AdminPass,
			"LDAP_TLS":            "false",
		},
		WaitingFor: wait.ForLog("slapd starting").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start OpenLDAP container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("get container host: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, "389")
	if err != nil {
		return nil, fmt.Errorf("get container port: %w", err)
	}

	return &OpenLDAPContainer{
		Container: container,
		Host:      host,
		Port:      uint16(mappedPort.Int()),
		BaseDN:    config.BaseDN,
		AdminDN:   "cn=admin," + config.BaseDN,
		AdminPass: config.AdminPass,
	}, nil
}

// Stop terminates the OpenLDAP container.
func (c *OpenLDAPContainer) Stop(ctx context.Context) error {
	if c.Container == nil {
		return nil
	}

	return c.Container.Terminate(ctx)
}

// SeedUser adds a single inetOrgPerson entry under ou=people,<BaseDN>,
// creating the OU first if it doesn't already exist.
func (c *OpenLDAPContainer) SeedUser(ctx context.Context, cn, sn, mail string) error {
	ouLDIF := fmt.Sprintf("dn: ou=people,%s\nobjectClass: organizationalUnit\nobjectClass: top\nou: people\n", c.BaseDN)

	// The OU may already exist from a previous seed in the same
	// container; ignore failures here and let the user add fail loudly
	// instead if something is actually wrong.
	_, _, _ = c.Container.Exec(ctx, []string{
		"bash", "-c",
		fmt.Sprintf(`echo '%s' | ldapadd -x -H ldap://localhost -D "%s" -w "%s" -c`, ouLDIF, c.AdminDN, c.AdminPass),
	})

	userLDIF := fmt.Sprintf(`dn: cn=%s,ou=people,%s
objectClass: inetOrgPerson
objectClass: organizationalPerson
objectClass: person
objectClass: top
cn: %s
sn: %s
mail: %s
`, cn, c.BaseDN, cn, sn, mail)

	_, _, err := c.Container.Exec(ctx, []string{
		"bash", "-c",
		fmt.Sprintf(`echo '%s' | ldapadd -x -H ldap://localhost -D "%s" -w "%s"`, userLDIF, c.AdminDN, c.AdminPass),
	})

	return err
}
