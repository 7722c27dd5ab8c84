// Package events publishes submission audit records.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
)

// Submitted records one report created for a sandbox submission.
type Submitted struct {
	ID           string    `json:"id"`
	ReportID     int64     `json:"report_id"`
	SampleID     int64     `json:"sample_id"`
	SHA256       string    `json:"sha256"`
	Env          int       `json:"env"`
	SubmissionID string    `json:"submission_id"`
	ListID       string    `json:"list_id,omitempty"`
	UserID       int64     `json:"user_id"`
	At           time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Submitted) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Submitted) error { return nil }

// NATS publishes events as JSON on a fixed subject.
type NATS struct {
	conn    *natsgo.Conn
	subject string
}

func NewNATS(url, subject string, logger *slog.Logger) (*NATS, error) {
	conn, err := natsgo.Connect(url,
		natsgo.Name("fireeye-analysis"),
		natsgo.MaxReconnects(-1),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return &NATS{conn: conn, subject: subject}, nil
}

func (n *NATS) Publish(_ context.Context, ev Submitted) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	return n.conn.Publish(n.subject, data)
}

func (n *NATS) Close() {
	n.conn.Close()
}

// Encode fills in the id and timestamp when unset and marshals ev.
func Encode(ev Submitted) ([]byte, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return json.Marshal(ev)
}
