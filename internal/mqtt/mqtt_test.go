package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daemonp/domologica2mqtt/internal/config"
	"github.com/daemonp/domologica2mqtt/internal/domologica"
	"github.com/daemonp/domologica2mqtt/internal/gateway"
	"github.com/daemonp/domologica2mqtt/internal/log"
	"github.com/daemonp/domologica2mqtt/internal/types"
)

var closed = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

type doneToken struct {
	err error
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return closed }
func (t *doneToken) Error() error                   { return t.err }

type published struct {
	topic   string
	payload string
	retain  bool
}

type fakePaho struct {
	mu         sync.Mutex
	connected  bool
	published  []published
	subscribed []string
}

func (c *fakePaho) IsConnected() bool      { return c.connected }
func (c *fakePaho) IsConnectionOpen() bool { return c.connected }
func (c *fakePaho) Disconnect(uint)        { c.connected = false }

func (c *fakePaho) Connect() paho.Token {
	c.connected = true
	return &doneToken{}
}

func (c *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, payload: string(payload.([]byte)), retain: retained})
	return &doneToken{}
}

func (c *fakePaho) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	return &doneToken{}
}

func (c *fakePaho) SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token {
	return &doneToken{}
}

func (c *fakePaho) Unsubscribe(topics ...string) paho.Token             { return &doneToken{} }
func (c *fakePaho) AddRoute(topic string, callback paho.MessageHandler) {}
func (c *fakePaho) OptionsReader() paho.ClientOptionsReader             { return paho.ClientOptionsReader{} }

func (c *fakePaho) on(topic string) []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []published
	for _, p := range c.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 0 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 0 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

type fakeGateway struct {
	mu          sync.Mutex
	data        types.WorldSnapshot
	lastSuccess time.Time
	lastErr     error
	commands    []domologica.Command
	refreshes   int
	subscriber  func(gateway.Event)
}

func (g *fakeGateway) Data() types.WorldSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.data
}

func (g *fakeGateway) Health() (time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSuccess, g.lastErr
}

func (g *fakeGateway) Command(ctx context.Context, cmd domologica.Command) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.commands = append(g.commands, cmd)
	return nil
}

func (g *fakeGateway) RequestRefresh() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshes++
}

func (g *fakeGateway) Subscribe(fn func(gateway.Event)) func() {
	g.subscriber = fn
	return func() { g.subscriber = nil }
}

type fakeRenderer struct {
	hidden types.ElementID
}

func (r fakeRenderer) State(id types.ElementID, e types.ElementSnapshot) (interface{}, bool) {
	if id == r.hidden {
		return nil, false
	}
	return map[string]interface{}{"keys": len(e)}, true
}

func (r fakeRenderer) Commands(id types.ElementID, control string, payload []byte) ([]domologica.Command, error) {
	if string(payload) == "ON" {
		return []domologica.Command{domologica.SwitchOn(id)}, nil
	}
	return nil, errors.New("unsupported")
}

func newTestMQTT() (*MQTT, *fakePaho, *fakeGateway) {
	return newTestMQTTWithConfig(&config.MQTTConfig{Prefix: "domologica2mqtt", QOS: 1, Retain: true})
}

func newTestMQTTWithConfig(cfg *config.MQTTConfig) (*MQTT, *fakePaho, *fakeGateway) {
	gw := &fakeGateway{
		data: types.WorldSnapshot{
			"10":  {"isswitchedon": types.Flag()},
			"1/2": {"getdimmer": types.Text("40"), "isswitchedon": types.Flag()},
		},
		lastSuccess: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	m := NewMQTT(cfg, gw, fakeRenderer{hidden: "99"}, log.Nop())
	client := &fakePaho{connected: true}
	m.client = client
	return m, client, gw
}

func TestOnConnect_SubscribesAndPublishes(t *testing.T) {
	m, client, _ := newTestMQTT()
	hooked := false
	m.SetOnConnect(func() { hooked = true })

	m.onConnect(client)

	assert.ElementsMatch(t, []string{
		"domologica2mqtt/refresh",
		"domologica2mqtt/command",
		"domologica2mqtt/element/+/set",
		"domologica2mqtt/element/+/+/set",
	}, client.subscribed)

	status := client.on("domologica2mqtt/status")
	require.Len(t, status, 1)
	assert.Equal(t, "online", status[0].payload)
	assert.True(t, status[0].retain)

	require.Len(t, client.on("domologica2mqtt/element/10"), 1)
	require.Len(t, client.on("domologica2mqtt/element/1_2"), 1)

	health := client.on("domologica2mqtt/gateway")
	require.Len(t, health, 1)
	assert.JSONEq(t, `{"status":"online","last_update":"2024-05-01T12:00:00Z"}`, health[0].payload)
	assert.True(t, hooked)
}

func TestPublish_HonoursRetainSetting(t *testing.T) {
	m, client, _ := newTestMQTTWithConfig(&config.MQTTConfig{Prefix: "domologica2mqtt", Retain: false})
	m.onConnect(client)

	for _, topic := range []string{"domologica2mqtt/status", "domologica2mqtt/element/10", "domologica2mqtt/gateway"} {
		msgs := client.on(topic)
		require.NotEmpty(t, msgs, topic)
		assert.False(t, msgs[0].retain, topic)
	}
}

func TestPublishStates_SkipsUnchanged(t *testing.T) {
	m, client, gw := newTestMQTT()
	m.Start()

	require.NotNil(t, gw.subscriber)
	gw.subscriber(gateway.Event{Type: gateway.EventUpdated, Snapshot: gw.Data()})
	assert.Len(t, client.on("domologica2mqtt/element/10"), 1)

	changed := types.WorldSnapshot{"10": {"isswitchedoff": types.Flag(), "parameter": types.Text("x")}}
	gw.subscriber(gateway.Event{Type: gateway.EventUpdated, Snapshot: changed})
	states := client.on("domologica2mqtt/element/10")
	require.Len(t, states, 2)
	assert.JSONEq(t, `{"keys":2}`, states[1].payload)
}

func TestPublishStates_HidesDisabledElements(t *testing.T) {
	m, client, _ := newTestMQTT()
	m.publishStates(types.WorldSnapshot{"99": {"isswitchedon": types.Flag()}})
	assert.Empty(t, client.on("domologica2mqtt/element/99"))
}

func TestGatewayEvent_FailureReportsError(t *testing.T) {
	m, client, gw := newTestMQTT()
	m.Start()

	gw.mu.Lock()
	gw.lastErr = errors.New("timeout")
	gw.mu.Unlock()
	gw.subscriber(gateway.Event{Type: gateway.EventUpdateFailed, Snapshot: gw.Data(), Err: gw.lastErr})

	health := client.on("domologica2mqtt/gateway")
	require.NotEmpty(t, health)
	assert.JSONEq(t, `{"status":"error","last_update":"2024-05-01T12:00:00Z","error":"timeout"}`, health[len(health)-1].payload)
}

func TestHandleMessage_Refresh(t *testing.T) {
	m, client, gw := newTestMQTT()
	m.handleMessage(client, message{topic: "domologica2mqtt/refresh"})
	assert.Equal(t, 1, gw.refreshes)
}

func TestHandleMessage_ElementCommand(t *testing.T) {
	m, client, gw := newTestMQTT()

	m.handleMessage(client, message{topic: "domologica2mqtt/element/1_2/set", payload: []byte("ON")})
	m.handleMessage(client, message{topic: "domologica2mqtt/element/10/set", payload: []byte("bogus")})
	m.handleMessage(client, message{topic: "domologica2mqtt/element/77/set", payload: []byte("ON")})

	assert.Equal(t, []domologica.Command{domologica.SwitchOn("1/2")}, gw.commands)
}

func TestHandleMessage_ServiceCommand(t *testing.T) {
	m, client, gw := newTestMQTT()

	m.handleMessage(client, message{topic: "domologica2mqtt/command", payload: []byte(`{"element_id":"10","action":"setdimmer","value":40}`)})
	m.handleMessage(client, message{topic: "domologica2mqtt/command", payload: []byte(`{"element_id":"10","action":"settemperaturedesired","value":21.5}`)})
	m.handleMessage(client, message{topic: "domologica2mqtt/command", payload: []byte(`{"element_id":"10","action":"stop"}`)})
	m.handleMessage(client, message{topic: "domologica2mqtt/command", payload: []byte(`{"action":"stop"}`)})
	m.handleMessage(client, message{topic: "domologica2mqtt/command", payload: []byte(`not json`)})

	assert.Equal(t, []domologica.Command{
		{Element: "10", Action: "setdimmer", Args: []domologica.Argument{{Value: "40", Type: "int"}}},
		{Element: "10", Action: "settemperaturedesired", Args: []domologica.Argument{{Value: "21.5", Type: "float"}}},
		{Element: "10", Action: "stop"},
	}, gw.commands)
}

func TestClose_PublishesOffline(t *testing.T) {
	m, client, gw := newTestMQTT()
	m.Start()
	m.Close()

	status := client.on("domologica2mqtt/status")
	require.Len(t, status, 1)
	assert.Equal(t, "offline", status[0].payload)
	assert.False(t, client.connected)
	assert.Nil(t, gw.subscriber)
}

func TestArgumentFor(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  domologica.Argument
		ok    bool
	}{
		{"whole number", float64(55), domologica.Argument{Value: "55", Type: "int"}, true},
		{"fraction", 20.5, domologica.Argument{Value: "20.5", Type: "float"}, true},
		{"numeric string", "30", domologica.Argument{Value: "30", Type: "int"}, true},
		{"text", "auto", domologica.Argument{Value: "auto", Type: "string"}, true},
		{"true", true, domologica.Argument{Value: "1", Type: "int"}, true},
		{"missing", nil, domologica.Argument{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := argumentFor(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
