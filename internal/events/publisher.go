package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Topics published by the service.
const (
	TopicConnectivity  = "connectivity"
	TopicBackupCreated = "backup.created"
	TopicRestored      = "backup.restored"
)

// Envelope wraps every published payload.
type Envelope struct {
	Source  string          `json:"source"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// Publisher fans events out to redis pub/sub and NATS, whichever are configured.
type Publisher struct {
	redis       *redis.Client
	nats        *nats.Conn
	channelBase string
	nodeID      string
	logger      zerolog.Logger
}

// NewPublisher constructs an event publisher. A nil client disables that transport.
func NewPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		redis:       redisClient,
		nats:        natsConn,
		channelBase: strings.TrimSpace(channelBase),
		nodeID:      uuid.NewString(),
		logger:      logger.With().Str("component", "event_publisher").Logger(),
	}
}

// RedisChannel returns the redis channel used for a topic.
func (p *Publisher) RedisChannel(topic string) string {
	return p.channelBase + ":" + topic
}

// NATSSubject returns the NATS subject used for a topic.
func (p *Publisher) NATSSubject(topic string) string {
	return strings.ReplaceAll(p.channelBase, ":", ".") + "." + topic
}

// Publish encodes payload and sends it to every configured transport.
func (p *Publisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	if p == nil || p.channelBase == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	message, err := json.Marshal(Envelope{
		Source:  p.nodeID,
		Topic:   topic,
		Payload: body,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	var errs []error
	if p.redis != nil {
		if err := p.redis.Publish(ctx, p.RedisChannel(topic), message).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.nats != nil {
		if err := p.nats.Publish(p.NATSSubject(topic), message); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		p.logger.Debug().Err(err).Str("topic", topic).Msg("event publish failed")
		return err
	}
	return nil
}
