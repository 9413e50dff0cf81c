package domologica

import (
	"strings"

	"github.com/daemonp/domologica2mqtt/internal/types"
)

var (
	coverClasses   = []string{"shutter", "cover", "blind", "roller", "tapparella"}
	outletClasses  = []string{"outlet", "socket", "plug", "presa"}
	dimmerClasses  = []string{"dimmer"}
	lightClasses   = []string{"light", "lamp", "luce"}
	climateClasses = []string{"thermostat", "samsung", "climate", "hvac", "termostato"}

	coverActions = []string{string(ActionTurnUp), string(ActionTurnDown), "open", "close"}
)

// Classify infers the device kind of one element. Declared metadata wins
// when present; otherwise status keys decide. Elements exposing only on/off
// flags are never classified as lights from keys alone, they become plain
// switches until metadata says otherwise.
func Classify(meta *types.ElementMetadata, e types.ElementSnapshot) types.Kind {
	if meta != nil {
		if kind := classifyMetadata(*meta); kind != types.KindUnknown {
			return kind
		}
	}
	return classifyStatuses(e)
}

func classifyMetadata(m types.ElementMetadata) types.Kind {
	class := strings.ToLower(m.ClassID)

	switch {
	case containsAny(class, coverClasses) || hasAnyAction(m, coverActions):
		return types.KindCover
	case containsAny(class, outletClasses):
		return types.KindSwitchOutlet
	case containsAny(class, dimmerClasses) || m.HasAction(string(ActionSetDimmer)):
		return types.KindLightDimmer
	case containsAny(class, lightClasses):
		return types.KindLightOnOff
	case containsAny(class, climateClasses):
		return types.KindClimate
	case m.HasAction(string(ActionSwitchOn)) && m.HasAction(string(ActionSwitchOff)):
		return types.KindSwitch
	}
	return types.KindUnknown
}

func classifyStatuses(e types.ElementSnapshot) types.Kind {
	switch {
	case e.Has(StatusUpSwitched) || e.Has(StatusDownSwitched):
		return types.KindCover
	case e.Has(StatusDimmer):
		return types.KindLightDimmer
	case e.Has(StatusThermostatTemperature) || e.Has(StatusACRoomTemperature):
		return types.KindClimate
	case hasOnOff(e):
		return types.KindSwitch
	}
	return types.KindUnknown
}

// NeedsMetadata reports whether status keys alone leave the kind ambiguous:
// no statuses at all, or binary on/off flags without a dimmer level.
func NeedsMetadata(e types.ElementSnapshot) bool {
	if len(e) == 0 {
		return true
	}
	return hasOnOff(e) && !e.Has(StatusDimmer)
}

func hasOnOff(e types.ElementSnapshot) bool {
	return e.Has(StatusIsSwitchedOn) || e.Has(StatusIsSwitchedOff) ||
		e.Has(StatusOn) || e.Has(StatusOff)
}

func hasAnyAction(m types.ElementMetadata, actions []string) bool {
	for _, a := range actions {
		if m.HasAction(a) {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	if s == "" {
		return false
	}
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
