package homeassistant

import (
	"strings"

	"github.com/daemonp/domologica2mqtt/internal/types"
)

func switchDeviceClass(kind types.Kind) string {
	if kind == types.KindSwitchOutlet {
		return "outlet"
	}
	return "switch"
}

// sensorDeviceClass guesses the device class and unit of a value status
// from its key.
func sensorDeviceClass(key types.StatusKey) (deviceClass, unit string) {
	name := string(key)
	if strings.Contains(name, "temperature") || name == "tmin" || name == "tmax" {
		return "temperature", "°C"
	}
	if strings.Contains(name, "humidity") {
		return "humidity", "%"
	}
	if strings.Contains(name, "power") || strings.Contains(name, "watt") {
		return "power", "W"
	}
	if strings.Contains(name, "energy") || strings.Contains(name, "kwh") {
		return "energy", "kWh"
	}

	// No device class, Home Assistant shows the raw text
	return "", ""
}
