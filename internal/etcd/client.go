// Package etcd provides the etcd client used as a configuration source.
package etcd

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/cybertec-postgresql/delta_notifier/internal/retry"
)

// Client reads configuration keys from etcd
type Client struct {
	*clientv3.Client
}

// NewClient creates a new etcd client with DSN parsing
func NewClient(dsn string) (*Client, error) {
	config, err := parseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse etcd DSN: %w", err)
	}

	client, err := clientv3.New(*config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	logrus.WithField("endpoints", config.Endpoints).Info("Connected to etcd successfully")
	return &Client{Client: client}, nil
}

// NewClientWithRetry connects and checks the connection with a read, retrying on failure
func NewClientWithRetry(ctx context.Context, dsn string) (*Client, error) {
	client, err := retry.Connect(ctx, retry.EtcdDefaults(), "etcd", func(ctx context.Context) (*Client, error) {
		c, err := NewClient(dsn)
		if err != nil {
			return nil, err
		}
		if _, err := c.Client.Get(ctx, "healthcheck"); err != nil {
			_ = c.Close()
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to establish etcd connection after all retries")
		return nil, err
	}
	return client, nil
}

// Close closes the etcd client connection
func (c *Client) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

// GetPrefix returns all keys under prefix with their values
func (c *Client) GetPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	resp, err := c.Client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to get keys under %s: %w", prefix, err)
	}

	values := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		values[string(kv.Key)] = string(kv.Value)
	}

	logrus.WithFields(logrus.Fields{
		"prefix":          prefix,
		"count":           len(values),
		"header_revision": resp.Header.Revision,
	}).Debug("Retrieved configuration keys from etcd")
	return values, nil
}

// WatchPrefix notifies about every change under prefix
func (c *Client) WatchPrefix(ctx context.Context, prefix string) clientv3.WatchChan {
	logrus.WithField("prefix", prefix).Info("Started etcd watch")
	return c.Client.Watch(ctx, prefix, clientv3.WithPrefix())
}

// parseDSN parses etcd DSN format: etcd://[user:password@]host1:port1[,host2:port2]/[prefix]?param=value
func parseDSN(dsn string) (*clientv3.Config, error) {
	if dsn == "" {
		return nil, fmt.Errorf("etcd DSN is required")
	}
	if !strings.HasPrefix(dsn, "etcd://") {
		return nil, fmt.Errorf("etcd DSN must start with etcd://")
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	endpoints := strings.Split(u.Host, ",")
	for i, endpoint := range endpoints {
		if !strings.Contains(endpoint, ":") {
			endpoints[i] = endpoint + ":2379" // Default etcd port
		}
	}

	config := &clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	}

	if u.User != nil {
		config.Username = u.User.Username()
		if password, ok := u.User.Password(); ok {
			config.Password = password
		}
	}

	params := u.Query()
	if timeout := params.Get("dial_timeout"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.DialTimeout = d
		}
	}
	if tlsParam := params.Get("tls"); tlsParam == "enabled" {
		config.TLS = &tls.Config{
			InsecureSkipVerify: params.Get("tls_insecure") == "true",
		}
	}

	return config, nil
}

// Prefix extracts the key prefix from the etcd DSN path, "/" when absent
func Prefix(dsn string) string {
	if dsn == "" || !strings.HasPrefix(dsn, "etcd://") {
		return "/"
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
