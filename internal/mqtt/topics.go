package mqtt

import (
	"fmt"
	"strings"
)

// DefaultPrefix is the topic root used when none is configured.
const DefaultPrefix = "wxstatus"

// Topics builds the topic tree under a prefix.
type Topics struct {
	Prefix string
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return strings.TrimRight(t.Prefix, "/")
}

// Status is the retained online/offline topic.
func (t Topics) Status() string {
	return t.root() + "/status"
}

// DeviceState is the retained snapshot topic of one device.
func (t Topics) DeviceState(home string, node byte) string {
	return fmt.Sprintf("%s/devices/%s/%d/state", t.root(), home, node)
}

// LedCommand receives LED commands.
func (t Topics) LedCommand() string {
	return t.root() + "/command/led"
}

// ActionCommands matches every action command topic.
func (t Topics) ActionCommands() string {
	return t.root() + "/command/action/+"
}

// ActionName extracts the action from an action command topic.
func (t Topics) ActionName(topic string) (string, bool) {
	prefix := t.root() + "/command/action/"
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(topic, prefix)
	return name, name != "" && !strings.Contains(name, "/")
}
