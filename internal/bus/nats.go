// internal/bus/nats.go
package bus

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

type Client struct{ nc *nats.Conn }

func Connect(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("webpconv"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc}, nil
}

// Close drains pending publishes before closing the connection.
func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}
