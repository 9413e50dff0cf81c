package mqtt

import (
	"fmt"
	"strings"

	"github.com/daemonp/domologica2mqtt/internal/types"
	"github.com/daemonp/domologica2mqtt/internal/util"
)

const setSuffix = "set"

type Topics struct {
	prefix string
}

func NewTopics(prefix string) *Topics {
	return &Topics{prefix: prefix}
}

func (t *Topics) Status() string {
	return fmt.Sprintf("%s/status", t.prefix)
}

func (t *Topics) Gateway() string {
	return fmt.Sprintf("%s/gateway", t.prefix)
}

func (t *Topics) Element(id types.ElementID) string {
	return fmt.Sprintf("%s/element/%s", t.prefix, util.Slugify(string(id)))
}

// ElementCommand is {prefix}/element/{id}/set for the main control and
// {prefix}/element/{id}/{control}/set for the others.
func (t *Topics) ElementCommand(id types.ElementID, control string) string {
	if control == "" || control == setSuffix {
		return fmt.Sprintf("%s/set", t.Element(id))
	}
	return fmt.Sprintf("%s/%s/set", t.Element(id), control)
}

// ElementCommandFilters match every element command topic.
func (t *Topics) ElementCommandFilters() []string {
	return []string{
		fmt.Sprintf("%s/element/+/set", t.prefix),
		fmt.Sprintf("%s/element/+/+/set", t.prefix),
	}
}

// ParseElementCommand splits an element command topic into the element's
// topic name and the control.
func (t *Topics) ParseElementCommand(topic string) (slug, control string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix+"/element/")
	if !found {
		return "", "", false
	}

	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[1] == setSuffix:
		return parts[0], setSuffix, parts[0] != ""
	case len(parts) == 3 && parts[2] == setSuffix:
		return parts[0], parts[1], parts[0] != "" && parts[1] != ""
	}
	return "", "", false
}

func (t *Topics) Refresh() string {
	return fmt.Sprintf("%s/refresh", t.prefix)
}

func (t *Topics) Command() string {
	return fmt.Sprintf("%s/command", t.prefix)
}
