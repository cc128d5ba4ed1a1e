package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the fields required by the given command are set.
// Commands have different needs: resolve runs without a CRM, batch needs
// Salesforce credentials, serve only needs a usable port.
func (c *Config) Validate(command string) error {
	var missing []string

	requireKeys := func() {
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if c.Jina.Key == "" {
			missing = append(missing, "jina.key is required")
		}
		if c.EJF.Username == "" || c.EJF.Password == "" {
			missing = append(missing, "ejf.username and ejf.password are required")
		}
	}

	switch command {
	case "resolve":
		requireKeys()
	case "batch":
		requireKeys()
		if c.Salesforce.ClientID == "" {
			missing = append(missing, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			missing = append(missing, "salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" {
			missing = append(missing, "salesforce.key_path is required")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			missing = append(missing, "server.port must be between 1 and 65535")
		}
	case "runs":
		// Store defaults are always usable.
	}

	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url is required when store.driver is postgres")
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		missing = append(missing, "store.path is required when store.driver is sqlite")
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}
