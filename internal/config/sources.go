package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/magiconair/properties"

	"github.com/cybertec-postgresql/delta_notifier/internal/etcd"
)

// PropertiesFile reads a Java-style properties file.
type PropertiesFile struct {
	Path string
}

// Load implements Source.
func (f PropertiesFile) Load(context.Context) (map[string]string, error) {
	loader := properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Path, err)
	}
	return p.Map(), nil
}

// EtcdSource reads every key under Prefix; the key name is the remainder
// after the prefix, e.g. /delta_notifier/interval -> interval.
type EtcdSource struct {
	Client *etcd.Client
	Prefix string
}

// Load implements Source.
func (e EtcdSource) Load(ctx context.Context) (map[string]string, error) {
	pairs, err := e.Client.GetPrefix(ctx, e.Prefix)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(pairs))
	for key, value := range pairs {
		values[strings.TrimPrefix(strings.TrimPrefix(key, e.Prefix), "/")] = value
	}
	return values, nil
}

// MapSource serves fixed values; mostly useful in tests.
type MapSource map[string]string

// Load implements Source.
func (m MapSource) Load(context.Context) (map[string]string, error) {
	values := make(map[string]string, len(m))
	for k, v := range m {
		values[k] = v
	}
	return values, nil
}
