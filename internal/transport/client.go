// Package transport implements the Transport Adapter of spec.md §4.G: a
// client-dial WebSocket connection to a CSMS, wire framing per §6.1, and a
// uniqueId-correlated pending-call registry. Several outbound calls may be
// in flight at once (a session's heartbeat and transaction workers call
// independently); responses are matched by uniqueId, and frame writes go
// through a single mutex, mirroring the teacher's single-writer discipline
// in its ConnectionWrapper.sendRoutine.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charging-platform/station-fleet-simulator/internal/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const subprotocol = "ocpp1.6"

// Handler processes an inbound CALL and returns the CALLRESULT payload, or a
// CallError to send a CALLERROR instead.
type Handler func(ctx context.Context, action string, payload json.RawMessage) (interface{}, *CallError)

// Client is a single station's connection to its CSMS.
type Client struct {
	conn        *websocket.Conn
	logger      *logger.Logger
	pending     *pendingRegistry
	callTimeout time.Duration

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens a WebSocket connection to baseURL/basePath/stationID, negotiating
// the ocpp1.6 subprotocol, bounded by connectTimeout per spec.md §5's short
// connect bound. callTimeout bounds each subsequent outbound Call so a CSMS
// that accepts the connection but never answers a request cannot hang the
// session forever; <= 0 disables the per-call deadline.
func Dial(ctx context.Context, baseURL, basePath, stationID string, connectTimeout, callTimeout time.Duration, log *logger.Logger) (*Client, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid csms url: %w", err)
	}
	target.Path = fmt.Sprintf("/%s/%s", basePath, stationID)

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	dialer := &websocket.Dialer{
		Subprotocols:     []string{subprotocol},
		HandshakeTimeout: connectTimeout,
	}

	conn, _, err := dialer.DialContext(dialCtx, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial csms: %w", err)
	}

	if log == nil {
		log, _ = logger.New(logger.DefaultConfig())
	}

	return &Client{
		conn:        conn,
		logger:      log,
		pending:     newPendingRegistry(),
		callTimeout: callTimeout,
		closed:      make(chan struct{}),
	}, nil
}

// Call issues an outbound OCPP call and waits for its CALLRESULT, decoding
// the payload into result. Returns the CallError if the CSMS responded with
// a CALLERROR, or a plain error if ctx is cancelled, the configured
// callTimeout elapses without a response, or the transport closes.
func (c *Client) Call(ctx context.Context, action string, payload interface{}, result interface{}) error {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	uniqueID := uuid.NewString()
	pc := c.pending.register(uniqueID, action)

	frame, err := encodeCall(uniqueID, action, payload)
	if err != nil {
		c.pending.reject(uniqueID, nil)
		return err
	}

	if err := c.write(frame); err != nil {
		c.pending.reject(uniqueID, nil)
		return fmt.Errorf("send %s: %w", action, err)
	}

	select {
	case res := <-pc.done:
		if res.err != nil {
			return res.err
		}
		if result != nil {
			if err := json.Unmarshal(res.payload, result); err != nil {
				return fmt.Errorf("decode %s response: %w", action, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return fmt.Errorf("transport closed")
	}
}

// write serializes writes so only one frame is on the wire at a time.
func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Serve runs the receive loop until the connection closes or ctx is
// cancelled. Inbound CALLs are dispatched to handler; CALLRESULT/CALLERROR
// frames resolve pending outbound calls. Malformed frames are logged and
// dropped, never fatal to the loop.
func (c *Client) Serve(ctx context.Context, handler Handler) error {
	// ReadMessage does not observe ctx, so close the connection on
	// cancellation to unblock it.
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.closed:
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.pending.abortAll(fmt.Errorf("transport closed: %w", err))
			return err
		}

		frame, err := decodeFrame(data)
		if err != nil {
			c.logger.Warnf("dropping malformed frame: %v", err)
			continue
		}

		switch frame.messageType {
		case callResultMessageType:
			if !c.pending.resolve(frame.uniqueID, frame.payload) {
				c.logger.Warnf("dropping call result for unknown id %s", frame.uniqueID)
			}
		case callErrorMessageType:
			if !c.pending.reject(frame.uniqueID, frame.callError) {
				c.logger.Warnf("dropping call error for unknown id %s", frame.uniqueID)
			}
		case callMessageType:
			c.handleInbound(ctx, frame, handler)
		}
	}
}

func (c *Client) handleInbound(ctx context.Context, frame *decodedFrame, handler Handler) {
	if handler == nil {
		c.logger.Warnf("dropping inbound call %s: no handler registered", frame.action)
		return
	}

	result, callErr := handler(ctx, frame.action, frame.payload)

	var response []byte
	var err error
	if callErr != nil {
		response, err = encodeCallError(frame.uniqueID, callErr)
	} else {
		response, err = encodeCallResult(frame.uniqueID, result)
	}
	if err != nil {
		c.logger.Errorf("encode response to %s: %v", frame.action, err)
		return
	}

	if err := c.write(response); err != nil {
		c.logger.Errorf("send response to %s: %v", frame.action, err)
	}
}

// Close closes the underlying connection and aborts any pending calls.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.pending.abortAll(fmt.Errorf("transport closed"))
		err = c.conn.Close()
	})
	return err
}
