package homeassistant

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/daemonp/domologica2mqtt/internal/domologica"
	"github.com/daemonp/domologica2mqtt/internal/types"
)

const (
	stateOn     = "ON"
	stateOff    = "OFF"
	stateOpen   = "open"
	stateClosed = "closed"

	modeOff  = "off"
	modeHeat = "heat"
	modeCool = "cool"
)

// State is the JSON document published on an element's state topic. Lights
// use it directly through the json schema; other entities read single
// fields through value templates.
type State struct {
	State              string            `json:"state,omitempty"`
	Brightness         *int              `json:"brightness,omitempty"`
	CurrentTemperature *float64          `json:"current_temperature,omitempty"`
	Temperature        *float64          `json:"temperature,omitempty"`
	Mode               string            `json:"mode,omitempty"`
	Values             map[string]string `json:"values,omitempty"`
}

// IsOn resolves the on/off flags of an element. The off flag wins: an
// element reporting both is off.
func IsOn(e types.ElementSnapshot) bool {
	if e.Has(domologica.StatusIsSwitchedOff) || e.Has(domologica.StatusOff) {
		return false
	}
	return e.Has(domologica.StatusIsSwitchedOn) || e.Has(domologica.StatusOn)
}

// Brightness returns the dimmer level on the 0-255 scale.
func Brightness(e types.ElementSnapshot) (int, bool) {
	v, ok := e.Value(domologica.StatusDimmer)
	if !ok {
		return 0, false
	}
	native, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return domologica.ToUI(native, domologica.MaxBrightness), true
}

// CoverClosed derives the position from the last movement flag. Neither
// flag means the position is unknown.
func CoverClosed(e types.ElementSnapshot) (closed, known bool) {
	if e.Has(domologica.StatusDownSwitched) {
		return true, true
	}
	if e.Has(domologica.StatusUpSwitched) {
		return false, true
	}
	return false, false
}

func CurrentTemperature(e types.ElementSnapshot) (float64, bool) {
	return firstFloat(e, domologica.StatusThermostatTemperature, domologica.StatusACRoomTemperature)
}

func TargetTemperature(e types.ElementSnapshot) (float64, bool) {
	return firstFloat(e, domologica.StatusThermostatSetpoint, domologica.StatusACSetpoint)
}

// HVACMode is off when the element is switched off, heat in the winter
// season and cool otherwise.
func HVACMode(e types.ElementSnapshot) string {
	if e.Has(domologica.StatusIsSwitchedOff) || e.Has(domologica.StatusOff) {
		return modeOff
	}
	if season, ok := e.Value(domologica.StatusSeason); ok {
		s := strings.ToLower(season)
		if strings.Contains(s, "winter") || strings.Contains(s, "heat") {
			return modeHeat
		}
	}
	return modeCool
}

func firstFloat(e types.ElementSnapshot, keys ...types.StatusKey) (float64, bool) {
	for _, k := range keys {
		v, ok := e.Value(k)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		f, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(v), ",", ".", 1), 64)
		if err == nil {
			return f, true
		}
	}
	return 0, false
}

// StateFor renders the state document of one element for its kind.
func StateFor(kind types.Kind, e types.ElementSnapshot) State {
	var s State

	switch kind {
	case types.KindLightDimmer:
		s.State = onOff(IsOn(e))
		if b, ok := Brightness(e); ok {
			s.Brightness = &b
		}
	case types.KindLightOnOff, types.KindSwitch, types.KindSwitchOutlet:
		s.State = onOff(IsOn(e))
	case types.KindCover:
		if closed, known := CoverClosed(e); known {
			s.State = stateOpen
			if closed {
				s.State = stateClosed
			}
		}
	case types.KindClimate:
		s.Mode = HVACMode(e)
		if t, ok := CurrentTemperature(e); ok {
			s.CurrentTemperature = &t
		}
		if t, ok := TargetTemperature(e); ok {
			s.Temperature = &t
		}
	}

	for _, k := range e.ValueKeys() {
		if s.Values == nil {
			s.Values = make(map[string]string)
		}
		s.Values[string(k)] = e[k].Text
	}
	return s
}

func onOff(on bool) string {
	if on {
		return stateOn
	}
	return stateOff
}

// Name picks the display name: alias, then declared name, then the label
// of the parameter status, then a generic fallback.
func Name(id types.ElementID, aliases map[string]string, meta *types.ElementMetadata, e types.ElementSnapshot) string {
	if alias := strings.TrimSpace(aliases[string(id)]); alias != "" {
		return alias
	}
	if meta != nil && meta.Name != "" {
		return meta.Name
	}
	if name := domologica.ParameterName(e); name != "" {
		return name
	}
	return fmt.Sprintf("Element %s", id)
}
