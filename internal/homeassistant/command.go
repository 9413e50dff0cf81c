package homeassistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/daemonp/domologica2mqtt/internal/domologica"
	"github.com/daemonp/domologica2mqtt/internal/types"
)

// Controls accepted on an element's command topics.
const (
	ControlSet         = "set"
	ControlTemperature = "temperature"
	ControlMode        = "mode"
)

var ErrUnsupportedCommand = errors.New("unsupported command")

type lightCommand struct {
	State      string `json:"state"`
	Brightness *int   `json:"brightness"`
}

// Commands translates a Home Assistant command payload into gateway
// commands for an element of the given kind.
func Commands(kind types.Kind, id types.ElementID, e types.ElementSnapshot, control string, payload []byte) ([]domologica.Command, error) {
	body := strings.TrimSpace(string(payload))

	switch control {
	case ControlSet:
	case ControlTemperature:
		if kind != types.KindClimate {
			return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedCommand, control, kind)
		}
		celsius, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid temperature %q: %w", body, err)
		}
		return []domologica.Command{domologica.SetTemperature(id, e, celsius)}, nil
	case ControlMode:
		if kind != types.KindClimate {
			return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedCommand, control, kind)
		}
		if strings.EqualFold(body, modeOff) {
			return []domologica.Command{domologica.SwitchOff(id)}, nil
		}
		return []domologica.Command{domologica.SwitchOn(id)}, nil
	default:
		return nil, fmt.Errorf("%w: control %q", ErrUnsupportedCommand, control)
	}

	switch kind {
	case types.KindLightDimmer, types.KindLightOnOff:
		return lightCommands(kind, id, body)
	case types.KindSwitch, types.KindSwitchOutlet:
		return switchCommands(id, body)
	case types.KindCover:
		switch strings.ToUpper(body) {
		case "OPEN":
			return []domologica.Command{domologica.Open(id)}, nil
		case "CLOSE":
			return []domologica.Command{domologica.Close(id)}, nil
		case "STOP":
			return []domologica.Command{domologica.Stop(id)}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q on %s element %s", ErrUnsupportedCommand, body, kind, id)
}

func lightCommands(kind types.Kind, id types.ElementID, body string) ([]domologica.Command, error) {
	var cmd lightCommand
	if err := json.Unmarshal([]byte(body), &cmd); err != nil {
		// Plain ON/OFF payloads are accepted too.
		return switchCommands(id, body)
	}

	if strings.EqualFold(cmd.State, stateOff) {
		return []domologica.Command{domologica.SwitchOff(id)}, nil
	}
	if cmd.Brightness != nil && kind == types.KindLightDimmer {
		level := domologica.ToNative(*cmd.Brightness, domologica.MaxBrightness)
		return []domologica.Command{domologica.SetDimmer(id, level)}, nil
	}
	if strings.EqualFold(cmd.State, stateOn) {
		return []domologica.Command{domologica.SwitchOn(id)}, nil
	}
	return nil, fmt.Errorf("%w: light payload %s", ErrUnsupportedCommand, body)
}

func switchCommands(id types.ElementID, body string) ([]domologica.Command, error) {
	switch strings.ToUpper(body) {
	case stateOn:
		return []domologica.Command{domologica.SwitchOn(id)}, nil
	case stateOff:
		return []domologica.Command{domologica.SwitchOff(id)}, nil
	}
	return nil, fmt.Errorf("%w: switch payload %q", ErrUnsupportedCommand, body)
}
