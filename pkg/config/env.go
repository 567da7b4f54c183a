package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override credentials and connection strings, so that secrets
// can stay out of the YAML or SQLite configuration.
const (
	EnvNetworkDSN       = "RIVERPROFILE_NETWORK_DSN"
	EnvPostgresSinkDSN  = "RIVERPROFILE_POSTGRES_DSN"
	EnvObjectAccessKey  = "RIVERPROFILE_OBJECTSTORE_ACCESS_KEY"
	EnvObjectSecretKey  = "RIVERPROFILE_OBJECTSTORE_SECRET_KEY"
	EnvNeo4jPassword    = "RIVERPROFILE_NEO4J_PASSWORD"
	EnvNeo4jUsername    = "RIVERPROFILE_NEO4J_USERNAME"
	EnvServerListenAddr = "RIVERPROFILE_LISTEN_ADDR"
)

// LoadDotEnv loads variables from the given .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overrides configuration values from the RIVERPROFILE_* environment variables
func (c *ConfigData) ApplyEnv() {
	if v := os.Getenv(EnvNetworkDSN); v != "" {
		c.Network.ConnectionString = v
	}
	if v := os.Getenv(EnvPostgresSinkDSN); v != "" && c.Sinks.Postgres != nil {
		c.Sinks.Postgres.ConnectionString = v
	}
	if o := c.Sinks.ObjectStore; o != nil {
		if v := os.Getenv(EnvObjectAccessKey); v != "" {
			o.AccessKey = v
		}
		if v := os.Getenv(EnvObjectSecretKey); v != "" {
			o.SecretKey = v
		}
	}
	if n := c.NetworkExport.Neo4j; n != nil {
		if v := os.Getenv(EnvNeo4jUsername); v != "" {
			n.Username = v
		}
		if v := os.Getenv(EnvNeo4jPassword); v != "" {
			n.Password = v
		}
	}
	if v := os.Getenv(EnvServerListenAddr); v != "" {
		c.Server.ListenAddr = v
	}
}
