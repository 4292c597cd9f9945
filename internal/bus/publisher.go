package bus

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/diascribe/diascribe/internal/config"
	"github.com/diascribe/diascribe/internal/transcript"
	"github.com/nats-io/nats.go"
)

// CompletedEvent is broadcast after each successful transcription request.
type CompletedEvent struct {
	TranscriptID string                 `json:"transcript_id"`
	FileName     string                 `json:"file_name"`
	Utterances   []transcript.Utterance `json:"utterances"`
	CompletedAt  time.Time              `json:"completed_at"`
}

// Publisher emits completed-transcript events on NATS. A nil Publisher is
// valid and publishes nothing, so callers never branch on bus availability.
type Publisher struct {
	conn    *nats.Conn
	subject string
	log     *slog.Logger
}

func Connect(cfg config.BusConfig, log *slog.Logger) (*Publisher, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("diascribed"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}
	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url), slog.String("subject", cfg.Subject))

	return &Publisher{conn: conn, subject: cfg.Subject, log: log}, nil
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.log.Info("closing NATS connection")
	p.conn.Drain()
	p.conn.Close()
}

func (p *Publisher) Healthy() bool {
	return p == nil || (p.conn != nil && p.conn.Status() == nats.CONNECTED)
}

// PublishCompleted emits the event; failures are logged, not propagated,
// since the HTTP response is the authoritative delivery path.
func (p *Publisher) PublishCompleted(event CompletedEvent) {
	if p == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn("failed to marshal completed event", slog.String("error", err.Error()))
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		p.log.Warn("failed to publish completed event",
			slog.String("error", err.Error()),
			slog.String("transcript_id", event.TranscriptID))
	}
}
