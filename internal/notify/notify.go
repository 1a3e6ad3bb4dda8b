// Package notify sends the HTTP notification that makes a search target run
// its delta import.
package notify

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// ConnectTimeout bounds establishing the connection only; reading the
// response has no timeout.
const ConnectTimeout = 6 * time.Second

// Result describes one notification attempt
type Result struct {
	URL        string
	Target     string
	StatusCode int
	Status     string
	Started    time.Time
	Duration   time.Duration
	Err        error
}

// OK reports whether the target accepted the notification
func (r Result) OK() bool {
	return r.Err == nil && r.StatusCode == http.StatusOK
}

// Notifier posts notifications
type Notifier struct {
	client *http.Client
	now    func() time.Time
}

// New creates a Notifier whose connections time out after ConnectTimeout
func New() *Notifier {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	return NewWithClient(&http.Client{Transport: transport})
}

// NewWithClient uses client as is
func NewWithClient(client *http.Client) *Notifier {
	return &Notifier{client: client, now: time.Now}
}

// BuildURL assembles http://<host>:<port>/<webapp>[/<target>]<params>.
// An empty target addresses the webapp itself.
func BuildURL(host, port, webapp, target, params string) (string, error) {
	raw := "http://" + host + ":" + port + "/" + webapp
	if target != "" {
		raw += "/" + target
	}
	raw += params
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("malformed notification url %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("malformed notification url %q: missing host", raw)
	}
	return raw, nil
}

// Send posts an empty body with the header "type: submit" to rawURL. The
// outcome is logged and returned, never retried.
func (n *Notifier) Send(ctx context.Context, rawURL, target string) Result {
	result := Result{URL: rawURL, Target: target, Started: n.now()}
	logger := logrus.WithFields(logrus.Fields{
		"component": "notify",
		"target":    target,
		"url":       rawURL,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, http.NoBody)
	if err != nil {
		result.Err = fmt.Errorf("failed to create request: %w", err)
		logger.WithError(result.Err).Error("Malformed notification url")
		return result
	}
	req.Header.Set("type", "submit")

	resp, err := n.client.Do(req)
	result.Duration = n.now().Sub(result.Started)
	if err != nil {
		result.Err = err
		logger.WithError(err).WithField("duration", result.Duration).Error("Failed to send notification")
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.Status = resp.Status
	logger = logger.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"duration":    result.Duration,
	})
	if result.OK() {
		logger.Info("Notification accepted")
	} else {
		logger.WithField("status", resp.Status).Warn("Notification rejected")
	}
	return result
}
