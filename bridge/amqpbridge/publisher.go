package amqpbridge

import (
	"encoding/json"

	"github.com/streadway/amqp"

	"github.com/maxepunk/ALN-Ecosystem-sub005/log"
	"github.com/maxepunk/ALN-Ecosystem-sub005/server/realtime"
)

// Bridge mirrors every envelope the hub emits onto a fanout exchange so
// external consumers (recording, analytics, secondary displays) can
// follow the live event stream without holding a websocket.
type Bridge struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// New connects to the broker and declares the fanout exchange.
func New(amqpURL, exchange string) (*Bridge, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	err = ch.ExchangeDeclare(
		exchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Bridge{conn: conn, channel: ch, exchange: exchange}, nil
}

// Mirror is installed as the hub's mirror hook.
func (b *Bridge) Mirror(room string, env realtime.Envelope) {
	body, err := json.Marshal(mirroredEnvelope{Room: room, Envelope: env})
	if err != nil {
		log.Error("bridge: marshaling mirrored envelope", "event", env.Event, err)
		return
	}
	err = b.channel.Publish(
		b.exchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		log.Warn("bridge: publishing mirrored envelope", "event", env.Event, "room", room, err)
	}
}

// Close closes the channel and connection.
func (b *Bridge) Close() {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}

type mirroredEnvelope struct {
	Room string `json:"room"`
	realtime.Envelope
}
