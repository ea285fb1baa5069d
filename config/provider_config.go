package config

import (
	"os"
	"sort"
	"strings"
	"sync"
)

// ProviderConfig is a concurrency-safe string map of provider settings.
type ProviderConfig struct {
	sync.Mutex

	cfgMap map[string]string
}

func (pc *ProviderConfig) Map(f func(string, string)) {
	keys := []string{}
	for key := range pc.cfgMap {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		f(key, pc.Get(key))
	}
}

func (pc *ProviderConfig) Get(key string) string {
	pc.Lock()
	defer pc.Unlock()

	if value, ok := pc.cfgMap[key]; ok {
		return value
	}

	return ""
}

func (pc *ProviderConfig) Set(key, value string) {
	pc.Lock()
	defer pc.Unlock()

	pc.cfgMap[key] = value
}

func (pc *ProviderConfig) IsSet(key string) bool {
	pc.Lock()
	defer pc.Unlock()

	_, ok := pc.cfgMap[key]
	return ok
}

// ProviderConfigFromEnviron dynamically builds a *ProviderConfig from
// the environment by loading values from keys with prefixes that match
// either the uppercase provider name + "_" or "MIST_" + uppercase
// provider name + "_", e.g., for provider "nephoscale":
//
//	env: MIST_NEPHOSCALE_USER=ham NEPHOSCALE_KEY=bones
//	map equiv: {"USER": "ham", "KEY": "bones"}
func ProviderConfigFromEnviron(providerName string) *ProviderConfig {
	upperProvider := strings.ToUpper(providerName)

	pc := &ProviderConfig{cfgMap: map[string]string{}}

	for _, prefix := range []string{
		upperProvider + "_",
		"MIST_" + upperProvider + "_",
	} {
		for _, e := range os.Environ() {
			if !strings.HasPrefix(e, prefix) {
				continue
			}

			parts := strings.SplitN(strings.TrimPrefix(e, prefix), "=", 2)
			if len(parts) != 2 {
				continue
			}

			pc.Set(parts[0], parts[1])
		}
	}

	return pc
}

// ProviderConfigFromMap wraps a plain map, mostly for tests.
func ProviderConfigFromMap(cfgMap map[string]string) *ProviderConfig {
	return &ProviderConfig{cfgMap: cfgMap}
}
