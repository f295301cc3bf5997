package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/psms/core"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		debug   bool
		secret  string
		wantErr bool
	}{
		{name: "default secret in debug", debug: true, secret: core.DefaultSecretKey},
		{name: "default secret in production", secret: core.DefaultSecretKey, wantErr: true},
		{name: "custom secret in production", secret: "s3cr3t-from-the-environment"},
		{name: "no secret", debug: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := core.NewTestConfig()
			conf.Debug = tt.debug
			conf.SecretKey = tt.secret

			err := conf.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewConfig_secretKey(t *testing.T) {
	t.Setenv("ENV", "PROD")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PROD_SECRET_KEY", "")
	t.Setenv("PROD_DEBUG", "")

	conf := core.NewConfig()
	assert.False(t, conf.Debug)
	assert.Equal(t, core.ErrDefaultSecretKey, conf.Validate())

	t.Setenv("JWT_SECRET", "s3cr3t-from-the-environment")
	conf = core.NewConfig()
	assert.Equal(t, "s3cr3t-from-the-environment", conf.SecretKey)
	assert.NoError(t, conf.Validate())
}
