package vault

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-equity-auth/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeKV struct {
	secrets map[string]map[string]interface{} // mount/rel
	reads   int
}

func (f *fakeKV) read(_ context.Context, mount, rel string) (map[string]interface{}, error) {
	f.reads++
	data, ok := f.secrets[mount+"/"+rel]
	if !ok {
		return nil, errors.New("secret not found")
	}
	return data, nil
}

func TestGetKV_CachesWithinTTL(t *testing.T) {
	kv := &fakeKV{secrets: map[string]map[string]interface{}{
		"secret/equity-auth": {"jwt_secret": "s3cret"},
	}}
	c := newClient(kv.read, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		v, err := c.GetKV(context.Background(), "secret/equity-auth", "jwt_secret")
		require.NoError(t, err)
		assert.Equal(t, "s3cret", v)
	}
	assert.Equal(t, 1, kv.reads)
}

func TestGetKV_Errors(t *testing.T) {
	kv := &fakeKV{secrets: map[string]map[string]interface{}{
		"secret/app": {"port": 25},
	}}
	c := newClient(kv.read, 0, zap.NewNop())
	ctx := context.Background()

	_, err := c.GetKV(ctx, "", "k")
	assert.Error(t, err)
	_, err = c.GetKV(ctx, "secret/missing", "k")
	assert.ErrorContains(t, err, "vault get secret/missing")
	_, err = c.GetKV(ctx, "secret/app", "absent")
	assert.ErrorContains(t, err, "not found")
	_, err = c.GetKV(ctx, "secret/app", "port")
	assert.ErrorContains(t, err, "not a string")
}

func TestClientResolvesConfig(t *testing.T) {
	kv := &fakeKV{secrets: map[string]map[string]interface{}{
		"secret/smtp": {"password": "relay-pw"},
	}}
	var r config.SecretResolver = newClient(kv.read, time.Minute, zap.NewNop())

	cfg := &config.Config{SMTPPassword: "vault:secret/smtp#password"}
	require.NoError(t, cfg.ResolveSecrets(context.Background(), r))
	assert.Equal(t, "relay-pw", cfg.SMTPPassword)
}

func TestSplitMount(t *testing.T) {
	m, r := splitMount("secret/equity/auth")
	assert.Equal(t, "secret", m)
	assert.Equal(t, "equity/auth", r)
}
