package domologica

import "github.com/daemonp/domologica2mqtt/internal/types"

// Status keys reported by the gateway, already lowercased.
const (
	StatusIsSwitchedOn  types.StatusKey = "isswitchedon"
	StatusIsSwitchedOff types.StatusKey = "isswitchedoff"
	StatusOn            types.StatusKey = "statuson"
	StatusOff           types.StatusKey = "statusoff"
	StatusDimmer        types.StatusKey = "getdimmer"
	StatusUpSwitched    types.StatusKey = "up switched"
	StatusDownSwitched  types.StatusKey = "down switched"
	StatusParameter     types.StatusKey = "parameter"
	StatusSeason        types.StatusKey = "season"

	StatusThermostatTemperature types.StatusKey = "temperaturen"
	StatusThermostatSetpoint    types.StatusKey = "tmin"
	StatusACRoomTemperature     types.StatusKey = "get ac unit temperature room"
	StatusACSetpoint            types.StatusKey = "get ac unit temperature setted"
)

type Action string

const (
	ActionSwitchOn              Action = "switchon"
	ActionSwitchOff             Action = "switchoff"
	ActionSetDimmer             Action = "setdimmer"
	ActionTurnUp                Action = "turnup"
	ActionTurnDown              Action = "turndown"
	ActionStop                  Action = "stop"
	ActionSetTMode              Action = "setTMode"
	ActionSetTemperatureDesired Action = "settemperaturedesired"
)

const (
	statusesPath = "/api/element_xml_statuses.xml"
	metadataPath = "/api/elements/%s.xml"
	commandPath  = "/elements/%s.xml"
)

// OnOffKeys returns the on and off flag names used by an element. Elements
// reporting statuson/statusoff use that pair, everything else the
// isswitchedon/isswitchedoff pair.
func OnOffKeys(e types.ElementSnapshot) (on, off types.StatusKey) {
	if e.Has(StatusOn) || e.Has(StatusOff) {
		return StatusOn, StatusOff
	}
	return StatusIsSwitchedOn, StatusIsSwitchedOff
}
