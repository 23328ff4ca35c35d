// Package rabbitmq fans forwarded intake reports out to an AMQP exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"report-intake-service/metrics"
	"report-intake-service/models"
	"report-intake-service/version"

	"github.com/apex/log"
	"github.com/streadway/amqp"
)

// MessageType is the AMQP type property of every intake report message.
const MessageType = "report.intake.v1"

// ErrPublisherClosed is returned by PublishReport after Close.
var ErrPublisherClosed = errors.New("report publisher closed")

// Publisher sends structured reports to one durable direct exchange under a
// fixed routing key. It redials lazily after the broker drops the connection.
type Publisher struct {
	amqpURL    string
	exchange   string
	routingKey string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	lost    chan *amqp.Error
	closed  bool
}

// NewPublisher dials the broker and declares the exchange. ctx bounds the dial
// and the AMQP handshake.
func NewPublisher(ctx context.Context, amqpURL, exchange, routingKey string) (*Publisher, error) {
	p := &Publisher{
		amqpURL:    amqpURL,
		exchange:   exchange,
		routingKey: routingKey,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.dialLocked(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// PublishReport publishes rep as a persistent JSON message tagged with the
// intake request id. A dropped connection is redialled once.
func (p *Publisher) PublishReport(ctx context.Context, requestID string, rep models.StructuredReport) error {
	msg, err := newReportMessage(requestID, rep, time.Now())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPublisherClosed
	}
	if !p.connectedLocked() {
		p.teardownLocked()
		if err := p.dialLocked(ctx); err != nil {
			return err
		}
	}

	err = p.channel.Publish(p.exchange, p.routingKey, false, false, msg)
	if isConnClosedErr(err) {
		log.WithField("request_id", requestID).Warn("rabbitmq.redial")
		p.teardownLocked()
		if dialErr := p.dialLocked(ctx); dialErr != nil {
			return fmt.Errorf("failed to publish report %s: %w (redial failed: %v)", requestID, err, dialErr)
		}
		err = p.channel.Publish(p.exchange, p.routingKey, false, false, msg)
	}
	if err != nil {
		return fmt.Errorf("failed to publish report %s: %w", requestID, err)
	}
	return nil
}

// IsConnected reports whether the last known connection is still open.
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed && p.connectedLocked()
}

// Close shuts the channel and connection. Later publishes fail with
// ErrPublisherClosed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var err error
	if p.channel != nil {
		err = p.channel.Close()
	}
	if p.conn != nil {
		if connErr := p.conn.Close(); connErr != nil && err == nil {
			err = connErr
		}
	}
	p.channel, p.conn, p.lost = nil, nil, nil
	metrics.RabbitMQConnected.Set(0)
	return err
}

func newReportMessage(requestID string, rep models.StructuredReport, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(rep)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal report: %w", err)
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     requestID,
		CorrelationId: requestID,
		Type:          MessageType,
		AppId:         version.Service,
		Timestamp:     now.UTC(),
		Body:          body,
	}, nil
}

func (p *Publisher) connectedLocked() bool {
	if p.conn == nil || p.channel == nil || p.conn.IsClosed() {
		return false
	}
	select {
	case <-p.lost:
		return false
	default:
		return true
	}
}

func (p *Publisher) dialLocked(ctx context.Context) error {
	conn, err := amqp.DialConfig(p.amqpURL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      contextDialer(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}

	p.conn, p.channel = conn, ch
	p.lost = conn.NotifyClose(make(chan *amqp.Error, 1))
	metrics.RabbitMQConnected.Set(1)
	return nil
}

func (p *Publisher) teardownLocked() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.channel, p.conn, p.lost = nil, nil, nil
	metrics.RabbitMQConnected.Set(0)
}

// contextDialer dials TCP under ctx and carries its deadline into the AMQP
// handshake; the library clears the deadline once the connection is open.
func contextDialer(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var d net.Dialer
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if deadline, ok := ctx.Deadline(); ok {
			if err := conn.SetDeadline(deadline); err != nil {
				conn.Close()
				return nil, err
			}
		}
		return conn, nil
	}
}

func isConnClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "channel/connection is not open")
}
