// internal/meterbus/modbus/client.go
package modbus

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/gridwatt/wattbridge/internal/meterbus"
)

// Modbus exception code 11: gateway target device failed to respond.
const excGatewayTargetFailed = 11

// Client is the single TCP connection to the meter gateway, implementing
// meterbus.TransportClient over goburrow/modbus. It serializes calls
// because it mutates SlaveId per request.
type Client struct {
	mu        sync.Mutex
	handler   *modbus.TCPClientHandler
	conn      modbus.Client
	connected bool
}

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus transport: endpoint required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout

	return &Client{
		handler: h,
		conn:    modbus.NewClient(h),
	}, nil
}

// ---- meterbus.TransportClient ----

func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}
	if err := c.handler.Connect(); err != nil {
		return &meterbus.ConnectionLostError{Cause: err}
	}
	c.connected = true
	return nil
}

func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.connected = false
	return c.handler.Close()
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler.Timeout = d
}

func (c *Client) ReadHoldingRegisters(unitID uint8, address, count uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, &meterbus.ConnectionLostError{Cause: errors.New("not connected")}
	}

	c.handler.SlaveId = unitID

	raw, err := c.conn.ReadHoldingRegisters(address, count)
	if err != nil {
		terr := classify(err)
		if meterbus.IsConnectionLost(terr) {
			c.connected = false
		}
		return nil, terr
	}
	if len(raw)%2 != 0 {
		return nil, &meterbus.ProtocolError{
			Kind:  meterbus.KindShortResponse,
			Cause: fmt.Errorf("odd payload length %d", len(raw)),
		}
	}

	words := make([]uint16, len(raw)/2)
	for i := range words {
		words[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
	}
	return words, nil
}

// classify maps goburrow errors onto the meterbus taxonomy. This is the
// only place allowed to look at error text: goburrow reports framing
// mismatches as plain fmt errors with no type to match on.
func classify(err error) error {
	// Modbus exception response.
	var me *modbus.ModbusError
	if errors.As(err, &me) {
		kind := meterbus.KindException
		if me.ExceptionCode == excGatewayTargetFailed {
			kind = meterbus.KindTimeout
		}
		return &meterbus.ProtocolError{Kind: kind, Cause: err}
	}

	// Socket-level failures kill the connection: reset, refused, broken
	// pipe, EOF on a half-closed gateway, and deadline expiry all mean
	// the link state is unknown and must be rebuilt.
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &meterbus.ConnectionLostError{Cause: err}
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return &meterbus.ConnectionLostError{Cause: err}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "transaction id") || strings.Contains(msg, "unit id"):
		// Response frame belongs to some other request: cross-talk
		// between logical sessions on the gateway.
		return &meterbus.ProtocolError{Kind: meterbus.KindUnitMismatch, Cause: err}
	case strings.Contains(msg, "data size") || strings.Contains(msg, "length"):
		return &meterbus.ProtocolError{Kind: meterbus.KindShortResponse, Cause: err}
	default:
		return &meterbus.ProtocolError{Kind: meterbus.KindOther, Cause: err}
	}
}
