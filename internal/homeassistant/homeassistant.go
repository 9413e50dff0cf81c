package homeassistant

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/daemonp/domologica2mqtt/internal/config"
	"github.com/daemonp/domologica2mqtt/internal/domologica"
	"github.com/daemonp/domologica2mqtt/internal/gateway"
	"github.com/daemonp/domologica2mqtt/internal/log"
	"github.com/daemonp/domologica2mqtt/internal/mqtt"
	"github.com/daemonp/domologica2mqtt/internal/types"
	"github.com/daemonp/domologica2mqtt/internal/util"
)

// Source is the read side of the gateway.
type Source interface {
	Data() types.WorldSnapshot
	Kind(id types.ElementID) types.Kind
	Metadata(id types.ElementID) (types.ElementMetadata, bool)
	Subscribe(fn func(gateway.Event)) (unsubscribe func())
}

type HomeAssistant struct {
	config  *config.HomeAssistantConfig
	devices *config.DomologicaConfig
	source  Source
	mqtt    mqtt.MQTTClient
	log     *log.Logger

	mu          sync.Mutex
	announced   map[string]string
	unsubscribe func()
}

func New(cfg *config.HomeAssistantConfig, devices *config.DomologicaConfig, source Source, logger *log.Logger) *HomeAssistant {
	return &HomeAssistant{
		config:    cfg,
		devices:   devices,
		source:    source,
		log:       logger.Source("homeassistant"),
		announced: make(map[string]string),
	}
}

// Start publishes discovery for every known element and keeps announcing
// elements as they appear or get classified.
func (ha *HomeAssistant) Start(client mqtt.MQTTClient) {
	ha.log.Info("Starting Home Assistant integration")

	ha.mu.Lock()
	ha.mqtt = client
	ha.mu.Unlock()

	ha.publishGatewayConfig()
	ha.PublishDiscovery(ha.source.Data())

	ha.unsubscribe = ha.source.Subscribe(func(ev gateway.Event) {
		if ev.Type == gateway.EventUpdated {
			ha.PublishDiscovery(ev.Snapshot)
		}
	})
}

func (ha *HomeAssistant) Stop() {
	if ha.unsubscribe != nil {
		ha.unsubscribe()
	}
}

// Republish forgets what was announced, e.g. after a broker reconnect.
func (ha *HomeAssistant) Republish() {
	ha.mu.Lock()
	ha.announced = make(map[string]string)
	started := ha.mqtt != nil
	ha.mu.Unlock()

	if started {
		ha.publishGatewayConfig()
		ha.PublishDiscovery(ha.source.Data())
	}
}

// PublishDiscovery announces the entities of every enabled element in
// world. Unchanged configs are not republished.
func (ha *HomeAssistant) PublishDiscovery(world types.WorldSnapshot) {
	if ha.client() == nil {
		return
	}
	for _, id := range world.IDs() {
		if !ha.devices.Enabled(string(id)) {
			continue
		}
		ha.publishElementConfig(id, world[id])
	}
}

// State renders the state document of an element, false when the element
// is not exposed.
func (ha *HomeAssistant) State(id types.ElementID, e types.ElementSnapshot) (interface{}, bool) {
	if !ha.devices.Enabled(string(id)) {
		return nil, false
	}
	return StateFor(ha.source.Kind(id), e), true
}

// Commands translates a command payload for an exposed element.
func (ha *HomeAssistant) Commands(id types.ElementID, control string, payload []byte) ([]domologica.Command, error) {
	if !ha.devices.Enabled(string(id)) {
		return nil, fmt.Errorf("%w: element %s is not enabled", ErrUnsupportedCommand, id)
	}
	e := ha.source.Data()[id]
	return Commands(ha.source.Kind(id), id, e, control, payload)
}

func (ha *HomeAssistant) metadata(id types.ElementID) *types.ElementMetadata {
	if m, ok := ha.source.Metadata(id); ok {
		return &m
	}
	return nil
}

func (ha *HomeAssistant) publishGatewayConfig() {
	client := ha.client()
	config := map[string]interface{}{
		"name":           "Gateway",
		"unique_id":      fmt.Sprintf("%s_gateway", client.GetPrefix()),
		"state_topic":    client.Topics().Gateway(),
		"value_template": "{{ value_json.status }}",
		"payload_on":     "online",
		"payload_off":    "error",
		"device":         ha.gatewayDevice(),
	}

	ha.publishConfig("binary_sensor", "gateway", "connectivity", config)
}

func (ha *HomeAssistant) publishElementConfig(id types.ElementID, e types.ElementSnapshot) {
	client := ha.client()
	kind := ha.source.Kind(id)
	meta := ha.metadata(id)
	name := Name(id, ha.devices.Aliases, meta, e)
	slug := util.Slugify(string(id))
	if slug == "" {
		ha.log.Warn("Element %q has no usable topic name, skipping", id)
		return
	}
	objectID := fmt.Sprintf("element_%s", slug)
	topics := client.Topics()

	base := func() map[string]interface{} {
		return map[string]interface{}{
			"availability_topic": topics.Status(),
			"state_topic":        topics.Element(id),
			"device":             ha.elementDevice(id, name, meta),
		}
	}

	switch kind {
	case types.KindLightDimmer, types.KindLightOnOff:
		config := base()
		config["name"] = nil
		config["unique_id"] = fmt.Sprintf("%s_light_%s", client.GetPrefix(), slug)
		config["schema"] = "json"
		config["command_topic"] = topics.ElementCommand(id, ControlSet)
		if kind == types.KindLightDimmer {
			config["brightness"] = true
			config["brightness_scale"] = domologica.MaxBrightness
			config["supported_color_modes"] = []string{"brightness"}
		} else {
			config["supported_color_modes"] = []string{"onoff"}
		}
		ha.publishConfig("light", objectID, "", config)
	case types.KindSwitch, types.KindSwitchOutlet:
		config := base()
		config["name"] = nil
		config["unique_id"] = fmt.Sprintf("%s_switch_%s", client.GetPrefix(), slug)
		config["command_topic"] = topics.ElementCommand(id, ControlSet)
		config["value_template"] = "{{ value_json.state }}"
		config["payload_on"] = stateOn
		config["payload_off"] = stateOff
		config["state_on"] = stateOn
		config["state_off"] = stateOff
		ha.publishConfig("switch", objectID, switchDeviceClass(kind), config)
	case types.KindCover:
		config := base()
		config["name"] = nil
		config["unique_id"] = fmt.Sprintf("%s_cover_%s", client.GetPrefix(), slug)
		config["command_topic"] = topics.ElementCommand(id, ControlSet)
		config["value_template"] = "{{ value_json.state | default('None') }}"
		config["payload_open"] = "OPEN"
		config["payload_close"] = "CLOSE"
		config["payload_stop"] = "STOP"
		config["state_open"] = stateOpen
		config["state_closed"] = stateClosed
		ha.publishConfig("cover", objectID, "shutter", config)
	case types.KindClimate:
		config := base()
		delete(config, "state_topic")
		config["name"] = nil
		config["unique_id"] = fmt.Sprintf("%s_climate_%s", client.GetPrefix(), slug)
		config["modes"] = []string{modeOff, modeHeat, modeCool}
		config["mode_state_topic"] = topics.Element(id)
		config["mode_state_template"] = "{{ value_json.mode }}"
		config["mode_command_topic"] = topics.ElementCommand(id, ControlMode)
		config["current_temperature_topic"] = topics.Element(id)
		config["current_temperature_template"] = "{{ value_json.current_temperature }}"
		config["temperature_state_topic"] = topics.Element(id)
		config["temperature_state_template"] = "{{ value_json.temperature }}"
		config["temperature_command_topic"] = topics.ElementCommand(id, ControlTemperature)
		config["temperature_unit"] = "C"
		config["temp_step"] = 0.5
		ha.publishConfig("climate", objectID, "", config)
	}

	for _, key := range e.ValueKeys() {
		keySlug := util.Slugify(string(key))
		if keySlug == "" {
			continue
		}
		config := base()
		config["name"] = string(key)
		config["unique_id"] = fmt.Sprintf("%s_sensor_%s_%s", client.GetPrefix(), slug, keySlug)
		config["value_template"] = fmt.Sprintf("{{ value_json['values'][%q] }}", string(key))
		deviceClass, unit := sensorDeviceClass(key)
		if unit != "" {
			config["unit_of_measurement"] = unit
			config["state_class"] = "measurement"
		}
		ha.publishConfig("sensor", fmt.Sprintf("%s_%s", objectID, keySlug), deviceClass, config)
	}
}

func (ha *HomeAssistant) gatewayDevice() map[string]interface{} {
	return map[string]interface{}{
		"identifiers":  []string{fmt.Sprintf("%s_gateway", ha.client().GetPrefix())},
		"name":         "Domologica Gateway",
		"manufacturer": "Domologica",
	}
}

func (ha *HomeAssistant) elementDevice(id types.ElementID, name string, meta *types.ElementMetadata) map[string]interface{} {
	prefix := ha.client().GetPrefix()
	device := map[string]interface{}{
		"identifiers":  []string{fmt.Sprintf("%s_element_%s", prefix, util.Slugify(string(id)))},
		"name":         name,
		"manufacturer": "Domologica",
		"via_device":   fmt.Sprintf("%s_gateway", prefix),
	}
	if meta != nil && meta.ClassID != "" {
		device["model"] = meta.ClassID
	}
	return device
}

func (ha *HomeAssistant) client() mqtt.MQTTClient {
	ha.mu.Lock()
	defer ha.mu.Unlock()
	return ha.mqtt
}

func (ha *HomeAssistant) publishConfig(component, objectId, deviceClass string, config map[string]interface{}) {
	client := ha.client()
	topic := fmt.Sprintf("%s/%s/%s/%s/config", ha.config.Prefix, component, client.GetPrefix(), objectId)

	if deviceClass != "" {
		config["device_class"] = deviceClass
	}

	payload, err := json.Marshal(config)
	if err != nil {
		ha.log.Error("Failed to marshal Home Assistant config: %v", err)
		return
	}

	ha.mu.Lock()
	if ha.announced[topic] == string(payload) {
		ha.mu.Unlock()
		return
	}
	ha.announced[topic] = string(payload)
	ha.mu.Unlock()

	client.Publish(topic, payload, true)
}
