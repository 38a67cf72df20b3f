package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultTopicPrefix is the root of every topic when none is configured.
const DefaultTopicPrefix = "dss"

// Topics builds the dss-sync topic hierarchy under a configurable prefix:
//
//	{prefix}/event/{zone}/{type}/{group}     scene calls as they happen
//	{prefix}/state/{zone}/{type}/{group}     retained last known status
//	{prefix}/command/{zone}[/{group}]        SetValue requests
//	{prefix}/system/status                   online/offline (LWT)
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// Event returns the topic a resolved callScene event is published on.
//
// Example: dss/event/3/shadow/0
func (t Topics) Event(zone int, groupType string, group int) string {
	return fmt.Sprintf("%s/event/%d/%s/%d", t.prefix(), zone, groupType, group)
}

// State returns the retained status topic of a group.
//
// Example: dss/state/3/shadow/0
func (t Topics) State(zone int, groupType string, group int) string {
	return fmt.Sprintf("%s/state/%d/%s/%d", t.prefix(), zone, groupType, group)
}

// ZoneCommand returns the command topic addressing a whole zone.
//
// Example: dss/command/3
func (t Topics) ZoneCommand(zone int) string {
	return fmt.Sprintf("%s/command/%d", t.prefix(), zone)
}

// GroupCommand returns the command topic addressing one group of a zone.
//
// Example: dss/command/3/1
func (t Topics) GroupCommand(zone, group int) string {
	return fmt.Sprintf("%s/command/%d/%d", t.prefix(), zone, group)
}

// SystemStatus returns the system status topic.
//
// Example: dss/system/status
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// AllCommands returns a pattern matching every command topic.
//
// Pattern: dss/command/#
func (t Topics) AllCommands() string {
	return t.prefix() + "/command/#"
}

// AllStates returns a pattern matching every retained state topic.
//
// Pattern: dss/state/#
func (t Topics) AllStates() string {
	return t.prefix() + "/state/#"
}

// ParseCommand extracts the zone and optional group from a command topic.
// group is nil for zone-wide commands.
func (t Topics) ParseCommand(topic string) (zone int, group *int, err error) {
	base := t.prefix() + "/command/"
	rest, ok := strings.CutPrefix(topic, base)
	if !ok || rest == "" {
		return 0, nil, fmt.Errorf("%w: %q is not a command topic", ErrInvalidTopic, topic)
	}

	parts := strings.Split(rest, "/")
	if len(parts) > 2 {
		return 0, nil, fmt.Errorf("%w: %q has too many levels", ErrInvalidTopic, topic)
	}

	zone, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: zone %q is not a number", ErrInvalidTopic, parts[0])
	}
	if len(parts) == 1 {
		return zone, nil, nil
	}

	g, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: group %q is not a number", ErrInvalidTopic, parts[1])
	}
	return zone, &g, nil
}
