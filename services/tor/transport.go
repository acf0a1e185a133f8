// Package tor provides the anonymized HTTP transport used for remote magnet
// searches: a SOCKS-proxied client with reachability probing, bounded retries
// and circuit rotation on transient failure.
package tor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/net/proxy"

	"magnetar/config"
)

// ErrProxyUnavailable indicates the SOCKS endpoint did not answer the
// reachability probe.
var ErrProxyUnavailable = errors.New("tor proxy unavailable")

// StatusError is a non-2xx HTTP response surfaced as an error.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Transient reports whether the status warrants a retry with a fresh circuit.
// 403 is included: exit nodes banned by upstream CDNs answer with it.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests ||
		e.Code == http.StatusForbidden ||
		e.Code >= http.StatusInternalServerError
}

// Transport issues HTTP requests through the anonymizing proxy with bounded
// retries and best-effort session rotation between attempts.
type Transport struct {
	cfg      config.TorSettings
	proxied  *http.Client
	direct   *http.Client
	socksTCP string
}

// NewTransport builds the proxied and direct clients. Construction never
// touches the network; proxy liveness is checked per request via Probe.
func NewTransport(cfg config.TorSettings) (*Transport, error) {
	socksAddr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.SocksPort))
	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("build socks dialer: %w", err)
	}
	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("socks dialer does not support context dialing")
	}
	timeout := time.Duration(cfg.RequestTimeoutSec) * time.Second
	return &Transport{
		cfg:      cfg,
		socksTCP: socksAddr,
		proxied: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{DialContext: contextDialer.DialContext},
		},
		direct: &http.Client{Timeout: timeout},
	}, nil
}

// Probe is a cheap TCP-level reachability check against the SOCKS endpoint.
// Fixed short timeout, no retries.
func (t *Transport) Probe() bool {
	timeout := time.Duration(t.cfg.ProbeTimeoutSec) * time.Second
	conn, err := net.DialTimeout("tcp", t.socksTCP, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Get fetches a URL through the proxy with up to MaxRetries attempts. A
// transient status or a timeout rotates the circuit before the next attempt;
// connection-refused means the proxy process itself is down and is not
// retried. When the probe fails, the call falls back to the direct client if
// policy allows, otherwise it fails with ErrProxyUnavailable.
func (t *Transport) Get(ctx context.Context, url string) ([]byte, error) {
	client := t.proxied
	anonymized := true
	if !t.Probe() {
		if !t.cfg.AllowDirectFallback {
			return nil, ErrProxyUnavailable
		}
		log.Printf("[tor] probe failed, falling back to direct client for %s", url)
		client = t.direct
		anonymized = false
	}

	var body []byte
	err := retry.Do(
		func() error {
			data, err := t.attempt(ctx, client, url)
			if err != nil {
				return err
			}
			body = data
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(t.cfg.MaxRetries)),
		retry.Delay(time.Duration(t.cfg.RetryDelayMs)*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(attempt uint, err error) {
			log.Printf("[tor] attempt %d for %s failed: %v", attempt+1, url, err)
			if anonymized {
				// Rotation is best effort: a failure to rotate must not
				// abort the retry, the next attempt reuses the circuit.
				if rerr := t.RotateSession(); rerr != nil {
					log.Printf("[tor] session rotation failed: %v", rerr)
				}
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (t *Transport) attempt(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(t.cfg.RequestTimeoutSec)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, URL: url}
	}
	return io.ReadAll(resp.Body)
}

// RotateSession instructs the proxy's control channel to build a fresh
// circuit (SIGNAL NEWNYM).
func (t *Transport) RotateSession() error {
	controlAddr := net.JoinHostPort(t.cfg.Host, fmt.Sprintf("%d", t.cfg.ControlPort))
	conn, err := net.DialTimeout("tcp", controlAddr, time.Duration(t.cfg.ProbeTimeoutSec)*time.Second)
	if err != nil {
		return fmt.Errorf("dial control port: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	reader := bufio.NewReader(conn)
	if err := controlCommand(conn, reader, fmt.Sprintf("AUTHENTICATE %q", t.cfg.ControlPassword)); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if err := controlCommand(conn, reader, "SIGNAL NEWNYM"); err != nil {
		return fmt.Errorf("signal newnym: %w", err)
	}
	log.Printf("[tor] session rotated")
	return nil
}

func controlCommand(conn net.Conn, reader *bufio.Reader, cmd string) error {
	if _, err := fmt.Fprintf(conn, "%s\r\n", cmd); err != nil {
		return err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	if !strings.HasPrefix(line, "250") {
		return fmt.Errorf("control replied %q", strings.TrimSpace(line))
	}
	return nil
}

// isTransient classifies an attempt error. Timeouts, aborts and retryable
// statuses come back with a fresh circuit; connection refused means the proxy
// process is gone and retrying cannot help.
func isTransient(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// url.Error wrapping a closed or reset proxy stream
	return strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "EOF")
}
