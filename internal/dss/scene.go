package dss

import "fmt"

// ActionKind names the semantic meaning of a scene call.
type ActionKind string

// Scene call semantics understood by the dSS.
const (
	ActionUnknown         ActionKind = "unknown"
	ActionAllLightOn      ActionKind = "all_light_on"
	ActionAllLightOff     ActionKind = "all_light_off"
	ActionLightOn         ActionKind = "light_on"
	ActionLightOff        ActionKind = "light_off"
	ActionAllShadowUp     ActionKind = "all_shadow_up"
	ActionAllShadowDown   ActionKind = "all_shadow_down"
	ActionShadowUp        ActionKind = "shadow_up"
	ActionShadowDown      ActionKind = "shadow_down"
	ActionAllShadowStop   ActionKind = "all_shadow_stop"
	ActionShadowStop      ActionKind = "shadow_stop"
	ActionShadowStepOpen  ActionKind = "shadow_step_open"
	ActionShadowStepClose ActionKind = "shadow_step_close"
	ActionShadowSpecial1  ActionKind = "shadow_special_1"
	ActionShadowSpecial2  ActionKind = "shadow_special_2"
)

// Action is a decoded scene call. Group is only meaningful for the
// per-sub-group kinds (LightOn, LightOff, ShadowUp, ShadowDown, ShadowStop).
type Action struct {
	Kind  ActionKind `json:"kind"`
	Group int        `json:"group,omitempty"`
}

// String renders the action for logs.
func (a Action) String() string {
	if a.hasGroup() {
		return fmt.Sprintf("%s(%d)", a.Kind, a.Group)
	}
	return string(a.Kind)
}

func (a Action) hasGroup() bool {
	switch a.Kind {
	case ActionLightOn, ActionLightOff, ActionShadowUp, ActionShadowDown, ActionShadowStop:
		return true
	}
	return false
}

// sceneRule is one row of the vendor scene table.
type sceneRule struct {
	match  func(t Type, scene int) bool
	action func(t Type, scene int) Action
}

func is(want Type, scenes ...int) func(Type, int) bool {
	return func(t Type, scene int) bool {
		if t != want {
			return false
		}
		for _, s := range scenes {
			if s == scene {
				return true
			}
		}
		return false
	}
}

func within(lo, hi int) func(Type, int) bool {
	return func(_ Type, scene int) bool { return scene >= lo && scene <= hi }
}

func shadowWithin(lo, hi int) func(Type, int) bool {
	return func(t Type, scene int) bool { return t == TypeShadow && scene >= lo && scene <= hi }
}

func fixed(kind ActionKind) func(Type, int) Action {
	return func(Type, int) Action { return Action{Kind: kind} }
}

// perType yields the light or shadow variant, with the sub-group derived
// from the scene number.
func perType(light, shadow ActionKind, offset int) func(Type, int) Action {
	return func(t Type, scene int) Action {
		switch t {
		case TypeLight:
			return Action{Kind: light, Group: scene - offset}
		case TypeShadow:
			return Action{Kind: shadow, Group: scene - offset}
		default:
			return Action{Kind: ActionUnknown}
		}
	}
}

// sceneTable is evaluated top to bottom; the first matching row wins.
// The ranges and aliases mirror observed dSS firmware behaviour and are
// order-sensitive.
var sceneTable = []sceneRule{
	{is(TypeLight, 0), fixed(ActionAllLightOff)},
	{is(TypeLight, 5), fixed(ActionAllLightOn)},
	{is(TypeShadow, 0), fixed(ActionAllShadowDown)},
	{is(TypeShadow, 5), fixed(ActionAllShadowUp)},
	{within(1, 4), perType(ActionLightOff, ActionShadowDown, 0)},
	{within(6, 8), perType(ActionLightOn, ActionShadowUp, 5)},
	{is(TypeShadow, 55), fixed(ActionAllShadowStop)},
	{shadowWithin(51, 54), func(_ Type, scene int) Action {
		return Action{Kind: ActionShadowStop, Group: scene - 51}
	}},
	{is(TypeShadow, 42), fixed(ActionShadowStepClose)},
	{is(TypeShadow, 43), fixed(ActionShadowStepOpen)},
	{is(TypeShadow, 17), fixed(ActionAllShadowUp)},
	{is(TypeShadow, 18), fixed(ActionShadowSpecial1)},
	{is(TypeShadow, 19), fixed(ActionShadowSpecial2)},
}

// ActionFromScene decodes a scene number for the given group type.
// Unmatched combinations decode to ActionUnknown.
func ActionFromScene(t Type, scene int) Action {
	for _, rule := range sceneTable {
		if rule.match(t, scene) {
			return rule.action(t, scene)
		}
	}
	return Action{Kind: ActionUnknown}
}

// ActionToScene encodes an action as a (type, scene) pair for zone/callScene.
// ok is false for ActionUnknown. Scene 17 is never produced: AllShadowUp
// always encodes to 5.
func ActionToScene(a Action) (t Type, scene int, ok bool) {
	switch a.Kind {
	case ActionAllLightOff:
		return TypeLight, 0, true
	case ActionAllLightOn:
		return TypeLight, 5, true
	case ActionLightOff:
		return TypeLight, a.Group, true
	case ActionLightOn:
		return TypeLight, a.Group + 5, true
	case ActionAllShadowDown:
		return TypeShadow, 0, true
	case ActionAllShadowUp:
		return TypeShadow, 5, true
	case ActionShadowDown:
		return TypeShadow, a.Group, true
	case ActionShadowUp:
		return TypeShadow, a.Group + 5, true
	case ActionShadowStop:
		return TypeShadow, a.Group + 51, true
	case ActionAllShadowStop:
		return TypeShadow, 55, true
	case ActionShadowStepClose:
		return TypeShadow, 42, true
	case ActionShadowStepOpen:
		return TypeShadow, 43, true
	case ActionShadowSpecial1:
		return TypeShadow, 18, true
	case ActionShadowSpecial2:
		return TypeShadow, 19, true
	default:
		return TypeUnknown, 0, false
	}
}

// ValueFromAction returns the status implied by an action. Stop, step and
// special actions carry no static value and yield Unknown.
//
// Shadow up is Shadow(0, 1): open 0 is fully open on this protocol's axis.
func ValueFromAction(a Action) Value {
	switch a.Kind {
	case ActionAllLightOn, ActionLightOn:
		return Light(1.0)
	case ActionAllLightOff, ActionLightOff:
		return Light(0.0)
	case ActionAllShadowUp, ActionShadowUp:
		return Shadow(0.0, 1.0)
	case ActionAllShadowDown, ActionShadowDown:
		return Shadow(1.0, 0.0)
	default:
		return UnknownValue()
	}
}

// GroupIDFromScene returns the sub-group a scene number addresses,
// or 0 for zone-wide scenes.
func GroupIDFromScene(scene int) int {
	switch {
	case scene >= 1 && scene <= 4:
		return scene
	case scene >= 6 && scene <= 8:
		return scene - 5
	case scene >= 51 && scene <= 54:
		return scene - 51
	default:
		return 0
	}
}

// GroupsFromScenes derives the groups of a (zone, type) pair from its
// reachable scenes. Scenes 1..3 yield sub-groups, scene 0 the "all" group.
// When sub-groups exist the "all" group is dropped.
func GroupsFromScenes(scenes []int, zoneID int, t Type) []Group {
	var groups []Group
	for _, s := range scenes {
		if s >= 0 && s <= 3 {
			groups = append(groups, Group{ID: s, ZoneID: zoneID, Type: t, Status: UnknownValue()})
		}
	}

	if len(groups) > 1 {
		sub := groups[:0]
		for _, g := range groups {
			if g.ID > 0 {
				sub = append(sub, g)
			}
		}
		groups = sub
	}

	return groups
}
