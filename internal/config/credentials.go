package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Default environment variables holding the WordPress credentials.
const (
	DefaultUsernameEnv = "WP_USERNAME"
	DefaultPasswordEnv = "WP_APP_PASSWORD"
)

// ErrMissingCredentials is returned when the username or the application
// password is not set anywhere.
var ErrMissingCredentials = errors.New("wordpress credentials not set")

// CredentialsConfig names the environment variables that hold the username
// and application password, and an optional .env file to read them from.
type CredentialsConfig struct {
	UsernameEnv string `yaml:"username_env"`
	PasswordEnv string `yaml:"password_env"`
	EnvFile     string `yaml:"env_file"`
}

// Credentials is a WordPress username and application password.
type Credentials struct {
	Username string
	Password string
}

// EnvProvider resolves credentials from the process environment, falling
// back to a .env file. The process environment wins.
type EnvProvider struct {
	UsernameEnv string
	PasswordEnv string
	EnvFile     string

	lookupEnv func(string) (string, bool)
}

// CredentialProvider returns the provider described by the credentials block.
func (c *Config) CredentialProvider() *EnvProvider {
	return &EnvProvider{
		UsernameEnv: c.Credentials.UsernameEnv,
		PasswordEnv: c.Credentials.PasswordEnv,
		EnvFile:     c.Credentials.EnvFile,
	}
}

// Credentials returns the username and application password.
func (p *EnvProvider) Credentials() (Credentials, error) {
	userKey := p.UsernameEnv
	if userKey == "" {
		userKey = DefaultUsernameEnv
	}
	passKey := p.PasswordEnv
	if passKey == "" {
		passKey = DefaultPasswordEnv
	}
	lookup := p.lookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var file map[string]string
	if p.EnvFile != "" {
		m, err := godotenv.Read(p.EnvFile)
		if err != nil {
			return Credentials{}, fmt.Errorf("reading env file %q: %w", p.EnvFile, err)
		}
		file = m
	}
	get := func(key string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return file[key]
	}

	creds := Credentials{Username: get(userKey), Password: get(passKey)}
	if creds.Username == "" {
		return Credentials{}, fmt.Errorf("%w: %s is empty", ErrMissingCredentials, userKey)
	}
	if creds.Password == "" {
		return Credentials{}, fmt.Errorf("%w: %s is empty", ErrMissingCredentials, passKey)
	}
	return creds, nil
}
