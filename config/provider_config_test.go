package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderConfigFromMap(t *testing.T) {
	pc := ProviderConfigFromMap(map[string]string{"USER": "ham", "KEY": "bones"})

	assert.True(t, pc.IsSet("USER"))
	assert.Equal(t, "ham", pc.Get("USER"))
	assert.Equal(t, "bones", pc.Get("KEY"))
	assert.False(t, pc.IsSet("ENDPOINT"))
	assert.Equal(t, "", pc.Get("ENDPOINT"))
}

func TestProviderConfig_Set(t *testing.T) {
	pc := ProviderConfigFromMap(map[string]string{})
	pc.Set("USER", "ham")

	assert.True(t, pc.IsSet("USER"))
	assert.Equal(t, "ham", pc.Get("USER"))
}

func TestProviderConfig_Map(t *testing.T) {
	pc := ProviderConfigFromMap(map[string]string{"B": "2", "A": "1"})

	keys := []string{}
	pc.Map(func(key, value string) {
		keys = append(keys, key+"="+value)
	})

	assert.Equal(t, []string{"A=1", "B=2"}, keys)
}

func TestProviderConfigFromEnviron(t *testing.T) {
	os.Setenv("NEPHOSCALE_USER", "ham")
	os.Setenv("MIST_NEPHOSCALE_KEY", "bones")
	defer os.Unsetenv("NEPHOSCALE_USER")
	defer os.Unsetenv("MIST_NEPHOSCALE_KEY")

	pc := ProviderConfigFromEnviron("nephoscale")

	assert.Equal(t, "ham", pc.Get("USER"))
	assert.Equal(t, "bones", pc.Get("KEY"))
}

func TestProviderConfigFromEnviron_prefixedOverridesBare(t *testing.T) {
	os.Setenv("NEPHOSCALE_USER", "bare")
	os.Setenv("MIST_NEPHOSCALE_USER", "prefixed")
	defer os.Unsetenv("NEPHOSCALE_USER")
	defer os.Unsetenv("MIST_NEPHOSCALE_USER")

	pc := ProviderConfigFromEnviron("nephoscale")

	assert.Equal(t, "prefixed", pc.Get("USER"))
}
