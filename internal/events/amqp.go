package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-booking-engine/internal/booking"
)

// AMQPPublisher sends events and jobs to a durable topic exchange. Events
// are routed by their type ("appointment.cancelled"), jobs by "job.<kind>".
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   zerolog.Logger
}

func NewAMQPPublisher(url, exchange string, logger zerolog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	logger.Info().Str("exchange", exchange).Msg("amqp publisher ready")

	return &AMQPPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		logger:   logger.With().Str("component", "amqp").Logger(),
	}, nil
}

func (p *AMQPPublisher) PublishEvent(ctx context.Context, ev booking.Event) error {
	return p.publish(ctx, string(ev.Type), string(ev.Type), ev.EmittedAt, ev)
}

func (p *AMQPPublisher) PublishJob(ctx context.Context, job booking.Job) error {
	return p.publish(ctx, jobRoutingKey(job.Kind), string(job.Kind), time.Now().UTC(), job)
}

func (p *AMQPPublisher) publish(ctx context.Context, routingKey, msgType string, ts time.Time, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ts,
		Type:         msgType,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	p.logger.Debug().Str("routing_key", routingKey).Msg("published")
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p == nil || p.channel == nil {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		return err
	}
	return p.conn.Close()
}

func jobRoutingKey(kind booking.JobKind) string {
	return "job." + string(kind)
}
