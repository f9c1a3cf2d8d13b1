// Package notify announces finished runs on NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bytemomo/autopen/internal/domain"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultSubject is used when no subject is configured.
	DefaultSubject = "autopen.runs"
	// ConnectTimeout bounds the initial dial.
	ConnectTimeout = 5 * time.Second
	// FlushTimeout bounds the wait for the server to acknowledge the publish.
	FlushTimeout = 5 * time.Second
)

// Notifier publishes a run report somewhere.
type Notifier interface {
	Notify(ctx context.Context, r *domain.RunReport) error
}

// Nop is used when notification is disabled.
type Nop struct{}

func (Nop) Notify(context.Context, *domain.RunReport) error { return nil }

// Publisher sends one message per run to a NATS subject. It dials per
// call; runs are minutes apart.
type Publisher struct {
	URL     string
	Subject string
	Log     *log.Entry
}

// New returns a Publisher, or Nop when url is empty.
func New(url, subject string, logger *log.Entry) Notifier {
	if url == "" {
		return Nop{}
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{URL: url, Subject: subject, Log: logger.WithField("component", "notify")}
}

// Notify implements Notifier.
func (p *Publisher) Notify(ctx context.Context, r *domain.RunReport) error {
	msg, err := newReportMsg(p.Subject, r)
	if err != nil {
		return err
	}

	conn, err := nats.Connect(p.URL, nats.Name("autopen"), nats.Timeout(ConnectTimeout))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", p.URL, err)
	}
	defer conn.Close()

	if err := conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish run report: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, FlushTimeout)
	defer cancel()
	if err := conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush run report: %w", err)
	}

	p.Log.WithFields(log.Fields{
		"subject": p.Subject,
		"run_id":  r.RunID,
	}).Debug("Run report published")
	return nil
}

func newReportMsg(subject string, r *domain.RunReport) (*nats.Msg, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run report: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("x-run-id", r.RunID)
	msg.Header.Set("x-run-status", string(r.Status))
	return msg, nil
}
