package mqtt

import (
	"context"
	"time"

	"github.com/daemonp/domologica2mqtt/internal/domologica"
	"github.com/daemonp/domologica2mqtt/internal/gateway"
	"github.com/daemonp/domologica2mqtt/internal/types"
)

// MQTTClient is what discovery publishers need from the bridge.
type MQTTClient interface {
	GetPrefix() string
	Topics() *Topics
	Publish(topic string, payload interface{}, retain bool)
}

// Gateway is the part of gateway.Gateway the bridge drives.
type Gateway interface {
	Data() types.WorldSnapshot
	Health() (lastSuccess time.Time, lastErr error)
	Command(ctx context.Context, cmd domologica.Command) error
	RequestRefresh()
	Subscribe(fn func(gateway.Event)) (unsubscribe func())
}

// Renderer maps elements to entity state documents and entity command
// payloads to gateway commands.
type Renderer interface {
	State(id types.ElementID, e types.ElementSnapshot) (interface{}, bool)
	Commands(id types.ElementID, control string, payload []byte) ([]domologica.Command, error)
}

var _ MQTTClient = (*MQTT)(nil)
