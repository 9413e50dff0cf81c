package domologica

import (
	"fmt"
	"strconv"

	"github.com/daemonp/domologica2mqtt/internal/types"
)

// Argument is one typed action argument, encoded as
// arguments[i][value] / arguments[i][type].
type Argument struct {
	Value string
	Type  string
}

func IntArgument(v int) Argument {
	return Argument{Value: strconv.Itoa(v), Type: "int"}
}

func FloatArgument(v float64) Argument {
	return Argument{Value: strconv.FormatFloat(v, 'f', -1, 64), Type: "float"}
}

type Command struct {
	Element types.ElementID
	Action  Action
	Args    []Argument
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return fmt.Sprintf("%s(%s)", c.Action, c.Element)
	}
	return fmt.Sprintf("%s(%s, %s)", c.Action, c.Element, c.Args[0].Value)
}

func SwitchOn(id types.ElementID) Command {
	return Command{Element: id, Action: ActionSwitchOn}
}

func SwitchOff(id types.ElementID) Command {
	return Command{Element: id, Action: ActionSwitchOff}
}

// SetDimmer takes the gateway's native 0-100 level.
func SetDimmer(id types.ElementID, level int) Command {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	return Command{Element: id, Action: ActionSetDimmer, Args: []Argument{IntArgument(level)}}
}

func Open(id types.ElementID) Command {
	return Command{Element: id, Action: ActionTurnUp}
}

func Close(id types.ElementID) Command {
	return Command{Element: id, Action: ActionTurnDown}
}

func Stop(id types.ElementID) Command {
	return Command{Element: id, Action: ActionStop}
}

// SetTemperature picks the thermostat or AC setpoint action depending on
// which temperature status the element reports.
func SetTemperature(id types.ElementID, e types.ElementSnapshot, celsius float64) Command {
	action := ActionSetTemperatureDesired
	if e.Has(StatusThermostatTemperature) {
		action = ActionSetTMode
	}
	return Command{Element: id, Action: action, Args: []Argument{FloatArgument(celsius)}}
}
