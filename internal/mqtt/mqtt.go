package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/daemonp/domologica2mqtt/internal/config"
	"github.com/daemonp/domologica2mqtt/internal/domologica"
	"github.com/daemonp/domologica2mqtt/internal/gateway"
	"github.com/daemonp/domologica2mqtt/internal/log"
	"github.com/daemonp/domologica2mqtt/internal/types"
	"github.com/daemonp/domologica2mqtt/internal/util"
)

const (
	offlinePayload = "offline"
	onlinePayload  = "online"

	healthOnline = "online"
	healthError  = "error"

	commandTimeout = 30 * time.Second
)

type MQTT struct {
	config   *config.MQTTConfig
	gateway  Gateway
	renderer Renderer
	log      *log.Logger
	client   mqtt.Client
	topics   *Topics

	mu          sync.Mutex
	published   map[string]string
	onConnected func()
	unsubscribe func()
}

// serviceCommand is the payload of the generic command topic.
type serviceCommand struct {
	ElementID string      `json:"element_id"`
	Action    string      `json:"action"`
	Value     interface{} `json:"value"`
}

type gatewayHealth struct {
	Status     string `json:"status"`
	LastUpdate string `json:"last_update,omitempty"`
	Error      string `json:"error,omitempty"`
}

func NewMQTT(cfg *config.MQTTConfig, gw Gateway, renderer Renderer, logger *log.Logger) *MQTT {
	return &MQTT{
		config:    cfg,
		gateway:   gw,
		renderer:  renderer,
		log:       logger.Source("mqtt"),
		topics:    NewTopics(cfg.Prefix),
		published: make(map[string]string),
	}
}

func (m *MQTT) GetPrefix() string {
	return m.config.Prefix
}

func (m *MQTT) Topics() *Topics {
	return m.topics
}

// SetOnConnect registers fn to run after every (re)connect, once the
// bridge has restored its subscriptions.
func (m *MQTT) SetOnConnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

func (m *MQTT) Connect() error {
	host, port := ParseURL(m.config.Host, m.config.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", host, port))
	opts.SetClientID(m.config.ClientID)
	opts.SetUsername(m.config.Username)
	opts.SetPassword(m.config.Password)
	opts.SetCleanSession(m.config.Clean)
	opts.SetKeepAlive(time.Duration(m.config.Keepalive) * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(m.onConnect)
	opts.SetConnectionLostHandler(m.onDisconnect)

	opts.SetWill(m.topics.Status(), offlinePayload, byte(m.config.QOS), m.config.Retain)

	m.client = mqtt.NewClient(opts)

	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	m.log.Info("Connected to MQTT broker: %s:%d", host, port)
	return nil
}

// Start mirrors gateway snapshots onto the state topics.
func (m *MQTT) Start() {
	m.mu.Lock()
	if m.unsubscribe != nil {
		m.mu.Unlock()
		return
	}
	m.unsubscribe = m.gateway.Subscribe(m.onGatewayEvent)
	m.mu.Unlock()

	m.publishStates(m.gateway.Data())
	m.publishGatewayHealth()
}

func (m *MQTT) onConnect(client mqtt.Client) {
	m.log.Info("MQTT connection established")
	m.publishOnlineStatus()
	m.subscribeTopics()

	// The broker may have lost retained states while we were away.
	m.mu.Lock()
	m.published = make(map[string]string)
	hook := m.onConnected
	m.mu.Unlock()

	m.publishStates(m.gateway.Data())
	m.publishGatewayHealth()
	if hook != nil {
		hook()
	}
}

func (m *MQTT) onDisconnect(client mqtt.Client, err error) {
	m.log.Error("MQTT connection lost: %v", err)
}

func (m *MQTT) subscribeTopics() {
	topics := []string{
		m.topics.Refresh(),
		m.topics.Command(),
	}
	topics = append(topics, m.topics.ElementCommandFilters()...)

	for _, topic := range topics {
		token := m.client.Subscribe(topic, byte(m.config.QOS), m.handleMessage)
		if token.Wait() && token.Error() != nil {
			m.log.Error("Failed to subscribe to topic %s: %v", topic, token.Error())
		} else {
			m.log.Debug("Subscribed to topic: %s", topic)
		}
	}
}

func (m *MQTT) handleMessage(client mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	payload := msg.Payload()

	m.log.Debug("Received message on topic %s: %s", topic, payload)

	switch topic {
	case m.topics.Refresh():
		m.gateway.RequestRefresh()
	case m.topics.Command():
		m.handleServiceCommand(payload)
	default:
		slug, control, ok := m.topics.ParseElementCommand(topic)
		if !ok {
			m.log.Warning("Received message on unknown topic: %s", topic)
			return
		}
		id, ok := m.resolveElement(slug)
		if !ok {
			m.log.Warning("Command for unknown element %s", slug)
			return
		}
		m.handleElementCommand(id, control, payload)
	}
}

func (m *MQTT) handleElementCommand(id types.ElementID, control string, payload []byte) {
	cmds, err := m.renderer.Commands(id, control, payload)
	if err != nil {
		m.log.Warning("Ignoring command for element %s: %v", id, err)
		return
	}
	for _, cmd := range cmds {
		m.dispatch(cmd)
	}
}

func (m *MQTT) handleServiceCommand(payload []byte) {
	var req serviceCommand
	if err := json.Unmarshal(payload, &req); err != nil {
		m.log.Error("Invalid command payload: %v", err)
		return
	}
	if req.ElementID == "" || req.Action == "" {
		m.log.Error("Command payload needs element_id and action: %s", payload)
		return
	}

	cmd := domologica.Command{
		Element: types.ElementID(req.ElementID),
		Action:  domologica.Action(req.Action),
	}
	if arg, ok := argumentFor(req.Value); ok {
		cmd.Args = []domologica.Argument{arg}
	}
	m.dispatch(cmd)
}

func (m *MQTT) dispatch(cmd domologica.Command) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := m.gateway.Command(ctx, cmd); err != nil {
		m.log.Error("Command %s failed: %v", cmd, err)
	}
}

// argumentFor types a JSON value the way the gateway expects: whole
// numbers as int, other numbers as float.
func argumentFor(v interface{}) (domologica.Argument, bool) {
	switch val := v.(type) {
	case float64:
		if val == math.Trunc(val) {
			return domologica.IntArgument(int(val)), true
		}
		return domologica.FloatArgument(val), true
	case string:
		if i, err := strconv.Atoi(val); err == nil {
			return domologica.IntArgument(i), true
		}
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return domologica.FloatArgument(f), true
		}
		return domologica.Argument{Value: val, Type: "string"}, val != ""
	case bool:
		if val {
			return domologica.IntArgument(1), true
		}
		return domologica.IntArgument(0), true
	}
	return domologica.Argument{}, false
}

func (m *MQTT) resolveElement(slug string) (types.ElementID, bool) {
	world := m.gateway.Data()
	if _, ok := world[types.ElementID(slug)]; ok {
		return types.ElementID(slug), true
	}
	for _, id := range world.IDs() {
		if util.Slugify(string(id)) == slug {
			return id, true
		}
	}
	return "", false
}

func (m *MQTT) onGatewayEvent(ev gateway.Event) {
	if ev.Type == gateway.EventUpdated {
		m.publishStates(ev.Snapshot)
	}
	m.publishGatewayHealth()
}

// publishStates publishes the state document of every exposed element,
// skipping documents identical to the last one sent.
func (m *MQTT) publishStates(world types.WorldSnapshot) {
	for _, id := range world.IDs() {
		state, ok := m.renderer.State(id, world[id])
		if !ok {
			continue
		}
		payload, err := encodePayload(state)
		if err != nil {
			m.log.Error("Failed to marshal state of element %s: %v", id, err)
			continue
		}

		topic := m.topics.Element(id)
		m.mu.Lock()
		unchanged := m.published[topic] == string(payload)
		if !unchanged {
			m.published[topic] = string(payload)
		}
		m.mu.Unlock()

		if !unchanged {
			m.publish(topic, payload, m.config.Retain)
		}
	}
}

func (m *MQTT) publishGatewayHealth() {
	lastSuccess, lastErr := m.gateway.Health()

	health := gatewayHealth{Status: healthOnline}
	if !lastSuccess.IsZero() {
		health.LastUpdate = lastSuccess.Format(time.RFC3339)
	}
	if lastErr != nil || lastSuccess.IsZero() {
		health.Status = healthError
	}
	if lastErr != nil {
		health.Error = lastErr.Error()
	}
	m.publish(m.topics.Gateway(), health, m.config.Retain)
}

func (m *MQTT) publishOnlineStatus() {
	m.publish(m.topics.Status(), onlinePayload, m.config.Retain)
}

func (m *MQTT) Publish(topic string, payload interface{}, retain bool) {
	m.publish(topic, payload, retain)
}

func (m *MQTT) publish(topic string, message interface{}, retain bool) {
	if m.client == nil {
		return
	}

	payload, err := encodePayload(message)
	if err != nil {
		m.log.Error("Failed to marshal message for topic %s: %v", topic, err)
		return
	}

	token := m.client.Publish(topic, byte(m.config.QOS), retain, payload)
	if token.Wait() && token.Error() != nil {
		m.log.Error("Failed to publish message to topic %s: %v", topic, token.Error())
	} else {
		m.log.Trace("Published message to topic: %s", topic)
	}
}

func (m *MQTT) Close() {
	m.mu.Lock()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.mu.Unlock()

	if m.client != nil && m.client.IsConnected() {
		m.publish(m.topics.Status(), offlinePayload, m.config.Retain)
		m.client.Disconnect(250)
	}
}
