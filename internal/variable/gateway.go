package variable

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/mqtt"
)

// Gateway operations.
const (
	opConnect   = "connect"
	opRead      = "read"
	opWrite     = "write"
	opBatchRead = "batch_read"
	opClose     = "close"
)

// defaultGatewayTimeout bounds a round trip when GatewayOptions.Timeout is zero.
const defaultGatewayTimeout = 5 * time.Second

// MQTTClient is the subset of the MQTT client the gateway needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	// Prefix is the topic root, e.g. "sfc/gateway".
	Prefix string

	// ClientID names this sfcd instance's reply topic.
	ClientID string

	// Timeout bounds each request/response round trip.
	Timeout time.Duration

	// QoS for requests and the reply subscription.
	QoS byte
}

// gatewayRequest is published on {prefix}/request.
type gatewayRequest struct {
	ID        string   `json:"id"`
	Op        string   `json:"op"`
	Session   string   `json:"session,omitempty"`
	Endpoint  string   `json:"endpoint,omitempty"`
	Variables []string `json:"variables,omitempty"`
	Value     *Value   `json:"value,omitempty"`
	ReplyTo   string   `json:"reply_to"`
}

// gatewayResponse arrives on {prefix}/response/{client}.
type gatewayResponse struct {
	ID      string      `json:"id"`
	OK      bool        `json:"ok"`
	Error   string      `json:"error,omitempty"`
	Session string      `json:"session,omitempty"`
	Values  []DataValue `json:"values,omitempty"`
}

// Gateway reaches the automation server through a protocol gateway on MQTT.
//
// Every call publishes a request carrying a fresh id and blocks until the
// matching reply arrives, the context ends, or the timeout elapses.
//
// Thread Safety: all methods are safe for concurrent use.
type Gateway struct {
	client     MQTTClient
	opts       GatewayOptions
	replyTopic string
	logger     Logger

	mu      sync.Mutex
	pending map[string]chan gatewayResponse
	running bool
}

// NewGateway creates a gateway. Call Start before Connect.
func NewGateway(client MQTTClient, opts GatewayOptions, logger Logger) *Gateway {
	if logger == nil {
		logger = noopLogger{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultGatewayTimeout
	}
	return &Gateway{
		client:     client,
		opts:       opts,
		replyTopic: mqtt.Topics{}.GatewayResponse(opts.Prefix, opts.ClientID),
		logger:     logger,
		pending:    make(map[string]chan gatewayResponse),
	}
}

// Start subscribes to the reply topic.
func (g *Gateway) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return nil
	}
	if err := g.client.Subscribe(g.replyTopic, g.opts.QoS, g.handleResponse); err != nil {
		return fmt.Errorf("subscribing to %s: %w", g.replyTopic, err)
	}
	g.running = true
	return nil
}

// Stop unsubscribes and fails every in-flight request with ErrGatewayStopped.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	g.running = false
	for id, ch := range g.pending {
		close(ch)
		delete(g.pending, id)
	}
	g.mu.Unlock()

	if err := g.client.Unsubscribe(g.replyTopic); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", g.replyTopic, err)
	}
	return nil
}

// Connect asks the gateway to open a server session for endpoint.
func (g *Gateway) Connect(ctx context.Context, endpoint string) (Session, error) {
	resp, err := g.roundTrip(ctx, gatewayRequest{Op: opConnect, Endpoint: endpoint})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", endpoint, err)
	}
	if resp.Session == "" {
		return nil, fmt.Errorf("connecting to %s: %w: no session id in reply", endpoint, ErrGateway)
	}
	return &gatewaySession{gateway: g, id: resp.Session}, nil
}

// handleResponse routes a reply to the waiting request.
func (g *Gateway) handleResponse(_ string, payload []byte) error {
	var resp gatewayResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("decoding gateway response: %w", err)
	}

	g.mu.Lock()
	ch, ok := g.pending[resp.ID]
	if ok {
		delete(g.pending, resp.ID)
	}
	g.mu.Unlock()

	if !ok {
		g.logger.Debug("dropping gateway response with no waiter", "id", resp.ID)
		return nil
	}
	ch <- resp
	return nil
}

func (g *Gateway) roundTrip(ctx context.Context, req gatewayRequest) (gatewayResponse, error) {
	req.ID = uuid.NewString()
	req.ReplyTo = g.replyTopic

	payload, err := json.Marshal(req)
	if err != nil {
		return gatewayResponse{}, fmt.Errorf("encoding %s request: %w", req.Op, err)
	}

	ch := make(chan gatewayResponse, 1)
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return gatewayResponse{}, ErrGatewayStopped
	}
	g.pending[req.ID] = ch
	g.mu.Unlock()

	forget := func() {
		g.mu.Lock()
		delete(g.pending, req.ID)
		g.mu.Unlock()
	}

	topic := mqtt.Topics{}.GatewayRequest(g.opts.Prefix)
	if err := g.client.Publish(topic, payload, g.opts.QoS, false); err != nil {
		forget()
		return gatewayResponse{}, fmt.Errorf("publishing %s request: %w", req.Op, err)
	}

	timer := time.NewTimer(g.opts.Timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return gatewayResponse{}, ErrGatewayStopped
		}
		if !resp.OK {
			return resp, fmt.Errorf("%w: %s", ErrGateway, resp.Error)
		}
		return resp, nil
	case <-timer.C:
		forget()
		return gatewayResponse{}, fmt.Errorf("%w: %s after %v", ErrTimeout, req.Op, g.opts.Timeout)
	case <-ctx.Done():
		forget()
		return gatewayResponse{}, ctx.Err()
	}
}

type gatewaySession struct {
	gateway *Gateway
	id      string
	closed  atomic.Bool
}

func (s *gatewaySession) Read(ctx context.Context, id string) (DataValue, error) {
	values, err := s.call(ctx, gatewayRequest{Op: opRead, Variables: []string{id}}, 1)
	if err != nil {
		return DataValue{}, fmt.Errorf("reading %s: %w", id, err)
	}
	return values[0], nil
}

func (s *gatewaySession) Write(ctx context.Context, id string, v Value) error {
	if _, err := s.call(ctx, gatewayRequest{Op: opWrite, Variables: []string{id}, Value: &v}, 0); err != nil {
		return fmt.Errorf("writing %s: %w", id, err)
	}
	return nil
}

func (s *gatewaySession) BatchRead(ctx context.Context, ids []string) ([]DataValue, error) {
	values, err := s.call(ctx, gatewayRequest{Op: opBatchRead, Variables: ids}, len(ids))
	if err != nil {
		return nil, fmt.Errorf("batch reading %d variables: %w", len(ids), err)
	}
	return values, nil
}

func (s *gatewaySession) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if _, err := s.gateway.roundTrip(ctx, gatewayRequest{Op: opClose, Session: s.id}); err != nil {
		return fmt.Errorf("closing session %s: %w", s.id, err)
	}
	return nil
}

// call issues a session-scoped request and checks the reply carries want values.
func (s *gatewaySession) call(ctx context.Context, req gatewayRequest, want int) ([]DataValue, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	req.Session = s.id

	resp, err := s.gateway.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Values) < want {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrGateway, want, len(resp.Values))
	}
	return resp.Values, nil
}
