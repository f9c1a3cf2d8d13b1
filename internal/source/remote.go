package source

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bytemomo/autopen/internal/config"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultFetchTimeout bounds a single retrieval attempt.
	DefaultFetchTimeout = 15 * time.Second
	// DefaultFetchAttempts is the number of tries before the source is given up.
	DefaultFetchAttempts = 3
)

// Retriever downloads the raw bytes of a remote target list.
type Retriever interface {
	Retrieve(ctx context.Context, cfg config.RemoteSource) ([]byte, error)
}

// Remote is a LineSource fed by a remote file (ftp, ftps, http, https).
// Any failure degrades to an empty list.
type Remote struct {
	Config    config.RemoteSource
	Retriever Retriever
	Attempts  int
	Log       *log.Entry

	// Backoff paces retries; nil means exponential.
	Backoff backoff.BackOff
}

// NewRemote creates a remote source using the default protocol retriever.
func NewRemote(cfg config.RemoteSource, logger *log.Entry) *Remote {
	return &Remote{
		Config:    cfg,
		Retriever: NewProtocolRetriever(DefaultFetchTimeout),
		Attempts:  DefaultFetchAttempts,
		Log:       logger.WithField("source", "remote"),
	}
}

// Lines implements domain.LineSource.
func (r *Remote) Lines(ctx context.Context) ([]string, error) {
	if !r.Config.Enabled() {
		return nil, nil
	}

	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var data []byte
	op := func() error {
		b, err := r.Retriever.Retrieve(ctx, r.Config)
		if err != nil {
			r.Log.WithError(err).Debug("Remote retrieval attempt failed")
			return err
		}
		data = b
		return nil
	}

	pace := r.Backoff
	if pace == nil {
		pace = backoff.NewExponentialBackOff()
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(pace, uint64(attempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		r.Log.WithFields(log.Fields{
			"host":     r.Config.Host,
			"protocol": r.Config.Protocol,
			"path":     r.Config.Path,
		}).WithError(err).Warn("Remote target list unavailable, continuing without it")
		return nil, nil
	}

	lines, err := ParseLines(bytes.NewReader(data))
	if err != nil {
		r.Log.WithError(err).Warn("Remote target list truncated")
	}
	return lines, nil
}

// ProtocolRetriever dispatches on the configured protocol.
type ProtocolRetriever struct {
	Timeout time.Duration
	Client  *http.Client
}

// NewProtocolRetriever creates a retriever with a per-attempt timeout.
func NewProtocolRetriever(timeout time.Duration) *ProtocolRetriever {
	return &ProtocolRetriever{
		Timeout: timeout,
		Client:  &http.Client{Timeout: timeout},
	}
}

// Retrieve implements Retriever.
func (p *ProtocolRetriever) Retrieve(ctx context.Context, cfg config.RemoteSource) ([]byte, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	switch strings.ToLower(cfg.Protocol) {
	case "ftp", "ftps", "":
		return p.retrieveFTP(ctx, cfg)
	case "http", "https":
		return p.retrieveHTTP(ctx, cfg)
	default:
		return nil, backoff.Permanent(fmt.Errorf("unsupported protocol: %s", cfg.Protocol))
	}
}

func (p *ProtocolRetriever) retrieveFTP(ctx context.Context, cfg config.RemoteSource) ([]byte, error) {
	addr, host := cfg.Host, cfg.Host
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	} else {
		addr = net.JoinHostPort(addr, "21")
	}

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(p.Timeout),
	}
	if strings.EqualFold(cfg.Protocol, "ftps") {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: host}))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial ftp %s: %w", addr, err)
	}
	defer conn.Quit()

	if err := conn.Login(cfg.User, cfg.Password); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("ftp login as %s: %w", cfg.User, err))
	}

	resp, err := conn.Retr(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("ftp retr %s: %w", cfg.Path, err)
	}
	defer resp.Close()

	return io.ReadAll(resp)
}

func (p *ProtocolRetriever) retrieveHTTP(ctx context.Context, cfg config.RemoteSource) ([]byte, error) {
	u := url.URL{
		Scheme: strings.ToLower(cfg.Protocol),
		Host:   cfg.Host,
		Path:   cfg.Path,
	}
	if cfg.User != "" && cfg.User != config.AnonymousUser {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("get %s: status %d", u.Redacted(), resp.StatusCode)
		if resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	return io.ReadAll(resp.Body)
}
