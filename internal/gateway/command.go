package gateway

import (
	"context"
	"strconv"

	"github.com/daemonp/domologica2mqtt/internal/domologica"
	"github.com/daemonp/domologica2mqtt/internal/types"
)

// Command applies the optimistic overlay and starts the turbo chain for
// cmd before dispatching it, so the overlay is visible while the request is
// in flight and the most recently issued command owns the element's overlay
// and chain. The overlay stays even if the gateway rejects the command. A
// debounced refresh follows the dispatch, whose error is returned.
func (g *Gateway) Command(ctx context.Context, cmd domologica.Command) error {
	current, _ := g.Element(cmd.Element)
	if updates, remove := optimisticDelta(current, cmd); len(updates) > 0 || len(remove) > 0 {
		g.ApplyOptimistic(cmd.Element, updates, remove)
	}
	g.turbo.Start(g.ctx, cmd.Element)

	err := g.client.SendCommand(ctx, cmd)
	g.metrics.ObserveCommand(string(cmd.Action), err)
	if err == nil {
		g.log.Debug("Command %s sent", cmd)
	}

	g.RequestRefresh()
	return err
}

// TurboPending reports whether confirmation polls are still scheduled for id.
func (g *Gateway) TurboPending(id types.ElementID) bool {
	return g.turbo.Pending(id)
}

// optimisticDelta synthesizes the status change a command is expected to
// cause once the gateway has actuated it.
func optimisticDelta(current types.ElementSnapshot, cmd domologica.Command) (map[types.StatusKey]types.StatusValue, []types.StatusKey) {
	on, off := domologica.OnOffKeys(current)

	switch cmd.Action {
	case domologica.ActionSwitchOn:
		return flag(on), []types.StatusKey{off}
	case domologica.ActionSwitchOff:
		return flag(off), []types.StatusKey{on}
	case domologica.ActionSetDimmer:
		level, ok := intArg(cmd)
		if !ok {
			return nil, nil
		}
		updates := map[types.StatusKey]types.StatusValue{
			domologica.StatusDimmer: types.Text(strconv.Itoa(level)),
		}
		if level > 0 {
			updates[on] = types.Flag()
			return updates, []types.StatusKey{off}
		}
		updates[off] = types.Flag()
		return updates, []types.StatusKey{on}
	case domologica.ActionTurnUp:
		return flag(domologica.StatusUpSwitched), []types.StatusKey{domologica.StatusDownSwitched}
	case domologica.ActionTurnDown:
		return flag(domologica.StatusDownSwitched), []types.StatusKey{domologica.StatusUpSwitched}
	case domologica.ActionStop:
		return nil, []types.StatusKey{domologica.StatusUpSwitched, domologica.StatusDownSwitched}
	case domologica.ActionSetTMode:
		return textArg(cmd, domologica.StatusThermostatSetpoint), nil
	case domologica.ActionSetTemperatureDesired:
		return textArg(cmd, domologica.StatusACSetpoint), nil
	}
	return nil, nil
}

func flag(key types.StatusKey) map[types.StatusKey]types.StatusValue {
	return map[types.StatusKey]types.StatusValue{key: types.Flag()}
}

func intArg(cmd domologica.Command) (int, bool) {
	if len(cmd.Args) == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(cmd.Args[0].Value)
	return v, err == nil
}

func textArg(cmd domologica.Command, key types.StatusKey) map[types.StatusKey]types.StatusValue {
	if len(cmd.Args) == 0 {
		return nil
	}
	return map[types.StatusKey]types.StatusValue{key: types.Text(cmd.Args[0].Value)}
}
