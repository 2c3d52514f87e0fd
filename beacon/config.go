package beacon

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	DefaultAddr          = "127.0.0.1"
	DefaultPort          = 5052
	DefaultRetryInterval = 5 * time.Second

	PayloadAttributesTopic = "payload_attributes"
)

// Config locates the beacon node http server.
type Config struct {
	Addr          string
	Port          uint16
	RetryInterval time.Duration
}

func DefaultConfig() Config {
	return Config{Addr: DefaultAddr, Port: DefaultPort, RetryInterval: DefaultRetryInterval}
}

func (c Config) HTTPBaseURL() string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(c.Addr, strconv.Itoa(int(c.Port))))
}

func (c Config) EventsURL() string {
	return c.HTTPBaseURL() + "/eth/v1/events"
}

func (c Config) PayloadAttributesURL() string {
	return c.EventsURL() + "?topics=" + PayloadAttributesTopic
}
