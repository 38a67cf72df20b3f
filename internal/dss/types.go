package dss

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Reserved zone identifiers that never describe a real room.
const (
	// ZoneNone is the "no zone" sentinel reported by the server.
	ZoneNone = 0

	// ZoneBroadcast addresses every zone at once.
	ZoneBroadcast = 65534
)

// Type is the dSS group type (the "color" of a function group).
// The numeric values are the vendor codes used on the wire.
type Type int

// Group types known to the dSS.
const (
	TypeUnknown              Type = 0
	TypeLight                Type = 1
	TypeShadow               Type = 2
	TypeHeating              Type = 3
	TypeAudio                Type = 4
	TypeVideo                Type = 5
	TypeJoker                Type = 8
	TypeCooling              Type = 9
	TypeVentilation          Type = 10
	TypeWindow               Type = 11
	TypeAirRecirculation     Type = 12
	TypeTemperatureControl   Type = 48
	TypeApartmentVentilation Type = 64
)

var typeNames = map[Type]string{
	TypeUnknown:              "unknown",
	TypeLight:                "light",
	TypeShadow:               "shadow",
	TypeHeating:              "heating",
	TypeAudio:                "audio",
	TypeVideo:                "video",
	TypeJoker:                "joker",
	TypeCooling:              "cooling",
	TypeVentilation:          "ventilation",
	TypeWindow:               "window",
	TypeAirRecirculation:     "air_recirculation",
	TypeTemperatureControl:   "temperature_control",
	TypeApartmentVentilation: "apartment_ventilation",
}

// TypeFromCode maps a wire code to a Type. Unlisted codes become TypeUnknown.
func TypeFromCode(code int) Type {
	t := Type(code)
	if _, ok := typeNames[t]; ok {
		return t
	}
	return TypeUnknown
}

// String returns the lower-case name of the type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return typeNames[TypeUnknown]
}

// ParseType accepts either a type name ("shadow") or its numeric code ("2").
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if code, err := strconv.Atoi(s); err == nil {
		return TypeFromCode(code), nil
	}
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return TypeUnknown, fmt.Errorf("unknown group type %q", s)
}

// MarshalText encodes the type by name.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts a name or a numeric code.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DeviceType classifies a device by its output mode.
type DeviceType string

// Device classifications.
const (
	DeviceSwitch  DeviceType = "switch"
	DeviceLight   DeviceType = "light"
	DeviceTv      DeviceType = "tv"
	DeviceShadow  DeviceType = "shadow"
	DeviceUnknown DeviceType = "unknown"
)

// DeviceTypeFromOutputMode derives the classification from the numeric
// outputMode reported by apartment/getDevices.
func DeviceTypeFromOutputMode(mode int) DeviceType {
	switch mode {
	case 0:
		return DeviceSwitch
	case 16, 22, 35:
		return DeviceLight
	case 33:
		return DeviceShadow
	case 39:
		return DeviceTv
	default:
		return DeviceUnknown
	}
}

// ValueKind tags the variant held by a Value.
type ValueKind string

// Value variants.
const (
	ValueUnknown ValueKind = "unknown"
	ValueLight   ValueKind = "light"
	ValueShadow  ValueKind = "shadow"
)

// Value is a group status, or the target state of a command.
//
// Light carries a level; Shadow carries open (1.0 = fully closed) and
// angle. All numbers are normalised to 0..1. The zero Value is unknown.
type Value struct {
	Kind  ValueKind `json:"kind"`
	Level float64   `json:"level,omitempty"`
	Open  float64   `json:"open,omitempty"`
	Angle float64   `json:"angle,omitempty"`
}

// Light returns a light value with the given level.
func Light(level float64) Value {
	return Value{Kind: ValueLight, Level: level}
}

// Shadow returns a shadow value with the given opening and angle.
func Shadow(open, angle float64) Value {
	return Value{Kind: ValueShadow, Open: open, Angle: angle}
}

// UnknownValue returns the value used when no status can be resolved.
func UnknownValue() Value {
	return Value{Kind: ValueUnknown}
}

// IsLight reports whether v is a light value.
func (v Value) IsLight() bool { return v.Kind == ValueLight }

// IsShadow reports whether v is a shadow value.
func (v Value) IsShadow() bool { return v.Kind == ValueShadow }

// IsUnknown reports whether v holds no resolvable status.
func (v Value) IsUnknown() bool { return !v.IsLight() && !v.IsShadow() }

// On reports whether a light value counts as switched on.
// Shadow and unknown values are never on.
func (v Value) On() bool {
	return v.IsLight() && v.Level >= 0.5
}

// String renders the value for logs and the shell.
func (v Value) String() string {
	switch {
	case v.IsLight():
		return fmt.Sprintf("Light(%.2f)", v.Level)
	case v.IsShadow():
		return fmt.Sprintf("Shadow(%.2f, %.2f)", v.Open, v.Angle)
	default:
		return "Unknown"
	}
}

// Device is a single dSS device, identified by its dSID.
type Device struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	ZoneID     int        `json:"zone_id"`
	Present    bool       `json:"present"`
	DeviceType DeviceType `json:"device_type"`
	Types      []Type     `json:"types"`
	ButtonType Type       `json:"button_type"`
}

// Group is a scene-addressable subset of a zone's devices of one type.
// ID 0 is the "all devices of this type" group, 1..3 are sub-groups.
type Group struct {
	ID      int      `json:"id"`
	ZoneID  int      `json:"zone_id"`
	Type    Type     `json:"type"`
	Status  Value    `json:"status"`
	Devices []Device `json:"devices"`
}

// Zone is a room-like grouping of devices.
type Zone struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Types  []Type  `json:"types"`
	Groups []Group `json:"groups"`
}

// SceneMode is the per-device configuration of a single scene.
type SceneMode struct {
	Scene       int  `json:"scene"`
	DontCare    bool `json:"dont_care"`
	LocalPrio   bool `json:"local_prio"`
	SpecialMode bool `json:"special_mode"`
	FlashMode   bool `json:"flash_mode"`
	LedConIndex int  `json:"ledcon_index"`
}

// Circuit is a metering device (dSM) of the installation.
type Circuit struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Present bool   `json:"present"`
	Valid   bool   `json:"valid"`
}

// Event is a callScene notification. ZoneID, Type, Scene and the origin
// fields come from the server; Action, Value and Group are derived during
// dispatch.
type Event struct {
	Name        string `json:"name"`
	ZoneID      int    `json:"zone_id"`
	Type        Type   `json:"type"`
	Scene       int    `json:"scene"`
	OriginToken string `json:"origin_token,omitempty"`
	OriginDSUID string `json:"origin_dsuid,omitempty"`
	CallOrigin  string `json:"call_origin,omitempty"`

	Action Action `json:"action"`
	Value  Value  `json:"value"`
	Group  int    `json:"group"`
}

// clone returns a deep copy of the device.
func (d Device) clone() Device {
	d.Types = append([]Type(nil), d.Types...)
	return d
}

// clone returns a deep copy of the group.
func (g Group) clone() Group {
	devices := make([]Device, len(g.Devices))
	for i, d := range g.Devices {
		devices[i] = d.clone()
	}
	g.Devices = devices
	return g
}

// clone returns a deep copy of the zone.
func (z Zone) clone() Zone {
	z.Types = append([]Type(nil), z.Types...)
	groups := make([]Group, len(z.Groups))
	for i, g := range z.Groups {
		groups[i] = g.clone()
	}
	z.Groups = groups
	return z
}

// cloneZones deep-copies a zone sequence.
func cloneZones(zones []Zone) []Zone {
	if zones == nil {
		return nil
	}
	out := make([]Zone, len(zones))
	for i, z := range zones {
		out[i] = z.clone()
	}
	return out
}

// findZone returns the index of the zone with the given id, or -1.
func findZone(zones []Zone, id int) int {
	for i := range zones {
		if zones[i].ID == id {
			return i
		}
	}
	return -1
}

// ParseValue decodes a command body such as {"kind":"light","level":1} or
// {"kind":"shadow","open":0.5,"angle":0.3}. Numbers must lie in 0..1 and
// unknown fields are rejected.
func ParseValue(data []byte) (Value, error) {
	var body struct {
		Kind  ValueKind `json:"kind"`
		Level *float64  `json:"level"`
		Open  *float64  `json:"open"`
		Angle *float64  `json:"angle"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return Value{}, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}

	unit := func(name string, p *float64) (float64, error) {
		if p == nil {
			return 0, fmt.Errorf("%w: %s is required", ErrInvalidValue, name)
		}
		if math.IsNaN(*p) || *p < 0 || *p > 1 {
			return 0, fmt.Errorf("%w: %s must be between 0 and 1", ErrInvalidValue, name)
		}
		return *p, nil
	}

	switch body.Kind {
	case ValueLight:
		level, err := unit("level", body.Level)
		if err != nil {
			return Value{}, err
		}
		return Light(level), nil
	case ValueShadow:
		open, err := unit("open", body.Open)
		if err != nil {
			return Value{}, err
		}
		angle, err := unit("angle", body.Angle)
		if err != nil {
			return Value{}, err
		}
		return Shadow(open, angle), nil
	case ValueUnknown:
		return UnknownValue(), nil
	default:
		return Value{}, fmt.Errorf("%w: kind %q", ErrInvalidValue, body.Kind)
	}
}
