package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gtpesantren22/wasender/internal/models"
)

// EventsChannel is the redis pub/sub channel carrying session events.
const EventsChannel = "wa:events"

// Publisher pushes session events onto the pub/sub channel the hub consumes.
type Publisher struct {
	rdb     *redis.Client
	channel string
	log     *zap.Logger
}

func NewPublisher(rdb *redis.Client, channel string, log *zap.Logger) *Publisher {
	if channel == "" {
		channel = EventsChannel
	}
	return &Publisher{rdb: rdb, channel: channel, log: log}
}

// Publish broadcasts one event. Failures are logged only; state publication
// must never fail a session operation.
func (p *Publisher) Publish(event string, data interface{}) {
	payload, err := json.Marshal(models.WSEvent{Event: event, Data: data})
	if err != nil {
		p.log.Error("marshal event", zap.String("event", event), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.log.Error("publish event", zap.String("event", event), zap.Error(err))
	}
}
