package config

import (
	"context"
	"fmt"
	"strings"
)

// VaultPrefix marks a value that must be fetched from Vault, e.g.
// "vault:secret/equity-auth#jwt_secret".
const VaultPrefix = "vault:"

// SecretResolver fetches one key from a KV secret.
type SecretResolver interface {
	GetKV(ctx context.Context, secretPath, key string) (string, error)
}

// NeedsSecrets reports whether any secret-bearing field is a Vault reference.
func (c *Config) NeedsSecrets() bool {
	for _, f := range c.secretFields() {
		if strings.HasPrefix(*f, VaultPrefix) {
			return true
		}
	}
	return false
}

// ResolveSecrets replaces every Vault reference in the secret-bearing fields
// with the value stored in Vault.
func (c *Config) ResolveSecrets(ctx context.Context, r SecretResolver) error {
	for _, f := range c.secretFields() {
		ref, ok := strings.CutPrefix(*f, VaultPrefix)
		if !ok {
			continue
		}
		path, key, found := strings.Cut(ref, "#")
		if !found || path == "" || key == "" {
			return fmt.Errorf("malformed vault reference %q: want vault:<path>#<key>", *f)
		}
		val, err := r.GetKV(ctx, path, key)
		if err != nil {
			return fmt.Errorf("resolve %s#%s: %w", path, key, err)
		}
		*f = val
	}
	return nil
}

func (c *Config) secretFields() []*string {
	return []*string{
		&c.JWTSecret,
		&c.SMTPUsername,
		&c.SMTPPassword,
		&c.RedisPassword,
		&c.AWSSecretKey,
	}
}
