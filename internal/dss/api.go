package dss

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

// Output value offsets addressed by device/getOutputValue and setOutputValue.
const (
	offsetShadowOpen  = 2
	offsetShadowAngle = 4
)

// EventCallScene is the event name subscribed to by the pipeline.
const EventCallScene = "callScene"

// RawAPI exposes the dSS JSON endpoints as typed calls. It holds no state
// beyond the Requester and performs no caching.
type RawAPI struct {
	req Requester
}

// NewRawAPI wraps a Requester.
func NewRawAPI(req Requester) *RawAPI {
	return &RawAPI{req: req}
}

// Wire shapes of the dSS results. Pointer fields are required members.

type wireZone struct {
	ID     *int   `mapstructure:"zoneID"`
	Name   string `mapstructure:"name"`
	Groups []int  `mapstructure:"groups"`
}

type wireDevice struct {
	ID                string `mapstructure:"id"`
	Name              string `mapstructure:"name"`
	ZoneID            *int   `mapstructure:"zoneID"`
	IsPresent         bool   `mapstructure:"isPresent"`
	OutputMode        int    `mapstructure:"outputMode"`
	Groups            []int  `mapstructure:"groups"`
	ButtonActiveGroup int    `mapstructure:"buttonActiveGroup"`
}

type wireSceneMode struct {
	SceneID     int   `mapstructure:"sceneID"`
	DontCare    *bool `mapstructure:"dontCare"`
	LocalPrio   bool  `mapstructure:"localPrio"`
	SpecialMode bool  `mapstructure:"specialMode"`
	FlashMode   bool  `mapstructure:"flashMode"`
	LedConIndex int   `mapstructure:"ledconIndex"`
}

type wireCircuit struct {
	DSID      string `mapstructure:"dsid"`
	Name      string `mapstructure:"name"`
	IsPresent bool   `mapstructure:"isPresent"`
	IsValid   bool   `mapstructure:"isValid"`
}

type wireOutputValue struct {
	Offset *int `mapstructure:"offset"`
	Value  *int `mapstructure:"value"`
}

type wireEvent struct {
	Name       string              `mapstructure:"name"`
	Properties *wireEventProperties `mapstructure:"properties"`
}

// wireEventProperties carries ids as strings on the wire; weak decoding
// converts them.
type wireEventProperties struct {
	ZoneID      *int   `mapstructure:"zoneID"`
	GroupID     *int   `mapstructure:"groupID"`
	SceneID     *int   `mapstructure:"sceneID"`
	OriginToken string `mapstructure:"originToken"`
	OriginDSUID string `mapstructure:"originDSUID"`
	CallOrigin  string `mapstructure:"callOrigin"`
}

// decode maps a generic JSON result onto a wire struct.
func decode(path string, input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrProtocol, path, err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrProtocol, path, err)
	}
	return nil
}

// member extracts a named member of an object result.
func member(path string, result any, name string) (any, error) {
	m, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: result is not an object", ErrProtocol, path)
	}
	v, ok := m[name]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s: field %s missing", ErrProtocol, path, name)
	}
	return v, nil
}

func missing(path, field string) error {
	return fmt.Errorf("%w: %s: field %s missing", ErrProtocol, path, field)
}

func zoneParams(zone int, t Type) url.Values {
	p := url.Values{}
	p.Set("id", strconv.Itoa(zone))
	p.Set("groupID", strconv.Itoa(int(t)))
	return p
}

// ApartmentName returns the configured name of the installation.
func (r *RawAPI) ApartmentName(ctx context.Context) (string, error) {
	const path = "apartment/getName"
	res, err := r.req.Request(ctx, path, nil)
	if err != nil {
		return "", err
	}
	v, err := member(path, res, "name")
	if err != nil {
		return "", err
	}
	name, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s: field name is not a string", ErrProtocol, path)
	}
	return name, nil
}

// Zones returns every reachable zone, including the reserved sentinel ids.
func (r *RawAPI) Zones(ctx context.Context) ([]Zone, error) {
	const path = "apartment/getReachableGroups"
	res, err := r.req.Request(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	raw, err := member(path, res, "zones")
	if err != nil {
		return nil, err
	}

	var wz []wireZone
	if err := decode(path, raw, &wz); err != nil {
		return nil, err
	}

	zones := make([]Zone, 0, len(wz))
	for _, w := range wz {
		if w.ID == nil {
			return nil, missing(path, "zones[].zoneID")
		}
		types := make([]Type, 0, len(w.Groups))
		for _, code := range w.Groups {
			types = append(types, TypeFromCode(code))
		}
		zones = append(zones, Zone{ID: *w.ID, Name: w.Name, Types: types})
	}
	return zones, nil
}

// ZoneName returns the name of a single zone.
func (r *RawAPI) ZoneName(ctx context.Context, id int) (string, error) {
	const path = "zone/getName"
	p := url.Values{}
	p.Set("id", strconv.Itoa(id))

	res, err := r.req.Request(ctx, path, p)
	if err != nil {
		return "", err
	}
	v, err := member(path, res, "name")
	if err != nil {
		return "", err
	}
	name, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s: field name is not a string", ErrProtocol, path)
	}
	return name, nil
}

// Devices returns every device of the apartment.
func (r *RawAPI) Devices(ctx context.Context) ([]Device, error) {
	const path = "apartment/getDevices"
	res, err := r.req.Request(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	var wd []wireDevice
	if err := decode(path, res, &wd); err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(wd))
	for _, w := range wd {
		if w.ID == "" {
			return nil, missing(path, "id")
		}
		if w.ZoneID == nil {
			return nil, missing(path, "zoneID")
		}
		types := make([]Type, 0, len(w.Groups))
		for _, code := range w.Groups {
			types = append(types, TypeFromCode(code))
		}
		devices = append(devices, Device{
			ID:         w.ID,
			Name:       w.Name,
			ZoneID:     *w.ZoneID,
			Present:    w.IsPresent,
			DeviceType: DeviceTypeFromOutputMode(w.OutputMode),
			Types:      types,
			ButtonType: TypeFromCode(w.ButtonActiveGroup),
		})
	}
	return devices, nil
}

// SceneMode returns the per-device configuration of a scene.
func (r *RawAPI) SceneMode(ctx context.Context, dsid string, scene int) (SceneMode, error) {
	const path = "device/getSceneMode"
	p := url.Values{}
	p.Set("dsid", dsid)
	p.Set("sceneID", strconv.Itoa(scene))

	res, err := r.req.Request(ctx, path, p)
	if err != nil {
		return SceneMode{}, err
	}

	var w wireSceneMode
	if err := decode(path, res, &w); err != nil {
		return SceneMode{}, err
	}
	if w.DontCare == nil {
		return SceneMode{}, missing(path, "dontCare")
	}
	return SceneMode{
		Scene:       w.SceneID,
		DontCare:    *w.DontCare,
		LocalPrio:   w.LocalPrio,
		SpecialMode: w.SpecialMode,
		FlashMode:   w.FlashMode,
		LedConIndex: w.LedConIndex,
	}, nil
}

// Circuits returns the metering circuits (dSMs) of the apartment.
func (r *RawAPI) Circuits(ctx context.Context) ([]Circuit, error) {
	const path = "apartment/getCircuits"
	res, err := r.req.Request(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	raw, err := member(path, res, "circuits")
	if err != nil {
		return nil, err
	}

	var wc []wireCircuit
	if err := decode(path, raw, &wc); err != nil {
		return nil, err
	}
	circuits := make([]Circuit, 0, len(wc))
	for _, w := range wc {
		circuits = append(circuits, Circuit{ID: w.DSID, Name: w.Name, Present: w.IsPresent, Valid: w.IsValid})
	}
	return circuits, nil
}

// ReachableScenes returns the scene numbers configured for a zone and type.
func (r *RawAPI) ReachableScenes(ctx context.Context, zone int, t Type) ([]int, error) {
	const path = "zone/getReachableScenes"
	res, err := r.req.Request(ctx, path, zoneParams(zone, t))
	if err != nil {
		return nil, err
	}
	raw, err := member(path, res, "reachableScenes")
	if err != nil {
		return nil, err
	}
	var scenes []int
	if err := decode(path, raw, &scenes); err != nil {
		return nil, err
	}
	return scenes, nil
}

// LastCalledScene returns the most recent scene called on a zone and type.
func (r *RawAPI) LastCalledScene(ctx context.Context, zone int, t Type) (int, error) {
	const path = "zone/getLastCalledScene"
	res, err := r.req.Request(ctx, path, zoneParams(zone, t))
	if err != nil {
		return 0, err
	}
	raw, err := member(path, res, "scene")
	if err != nil {
		return 0, err
	}
	var scene int
	if err := decode(path, raw, &scene); err != nil {
		return 0, err
	}
	return scene, nil
}

// CallScene invokes a scene on a zone and type.
func (r *RawAPI) CallScene(ctx context.Context, zone int, t Type, scene int) error {
	p := zoneParams(zone, t)
	p.Set("sceneNumber", strconv.Itoa(scene))
	_, err := r.req.Request(ctx, "zone/callScene", p)
	return err
}

// CallAction encodes an action and calls the resulting scene.
func (r *RawAPI) CallAction(ctx context.Context, zone int, a Action) error {
	t, scene, ok := ActionToScene(a)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoMapping, a)
	}
	return r.CallScene(ctx, zone, t, scene)
}

// outputValue reads a raw output value and checks the echoed offset.
func (r *RawAPI) outputValue(ctx context.Context, dsid string, offset int) (int, error) {
	const path = "device/getOutputValue"
	p := url.Values{}
	p.Set("dsid", dsid)
	p.Set("offset", strconv.Itoa(offset))

	res, err := r.req.Request(ctx, path, p)
	if err != nil {
		return 0, err
	}

	var w wireOutputValue
	if err := decode(path, res, &w); err != nil {
		return 0, err
	}
	if w.Offset == nil {
		return 0, missing(path, "offset")
	}
	if *w.Offset != offset {
		return 0, fmt.Errorf("%w: %w: %s: device %s requested offset %d, got %d",
			ErrProtocol, ErrOffsetMismatch, path, dsid, offset, *w.Offset)
	}
	if w.Value == nil {
		return 0, missing(path, "value")
	}
	return *w.Value, nil
}

func (r *RawAPI) setOutputValue(ctx context.Context, dsid string, offset, value int) error {
	p := url.Values{}
	p.Set("dsid", dsid)
	p.Set("value", strconv.Itoa(value))
	p.Set("offset", strconv.Itoa(offset))
	_, err := r.req.Request(ctx, "device/setOutputValue", p)
	return err
}

// ShadowOpen reads the opening of a shadow device (1.0 = closed).
func (r *RawAPI) ShadowOpen(ctx context.Context, dsid string) (float64, error) {
	raw, err := r.outputValue(ctx, dsid, offsetShadowOpen)
	if err != nil {
		return 0, err
	}
	return openFromRaw(raw), nil
}

// SetShadowOpen drives a shadow device to an opening (clamped to 0..1).
func (r *RawAPI) SetShadowOpen(ctx context.Context, dsid string, open float64) error {
	return r.setOutputValue(ctx, dsid, offsetShadowOpen, openToRaw(open))
}

// ShadowAngle reads the slat angle of a shadow device.
func (r *RawAPI) ShadowAngle(ctx context.Context, dsid string) (float64, error) {
	raw, err := r.outputValue(ctx, dsid, offsetShadowAngle)
	if err != nil {
		return 0, err
	}
	return angleFromRaw(raw), nil
}

// SetShadowAngle drives a shadow device to a slat angle (clamped to 0..1).
func (r *RawAPI) SetShadowAngle(ctx context.Context, dsid string, angle float64) error {
	return r.setOutputValue(ctx, dsid, offsetShadowAngle, angleToRaw(angle))
}

// ShadowValue reads both opening and angle of a shadow device.
func (r *RawAPI) ShadowValue(ctx context.Context, dsid string) (Value, error) {
	open, err := r.ShadowOpen(ctx, dsid)
	if err != nil {
		return UnknownValue(), err
	}
	angle, err := r.ShadowAngle(ctx, dsid)
	if err != nil {
		return UnknownValue(), err
	}
	return Shadow(open, angle), nil
}

// Subscribe registers the subscription for callScene events.
func (r *RawAPI) Subscribe(ctx context.Context, subscriptionID int) error {
	p := url.Values{}
	p.Set("name", EventCallScene)
	p.Set("subscriptionID", strconv.Itoa(subscriptionID))
	_, err := r.req.Request(ctx, "event/subscribe", p)
	return err
}

// Unsubscribe removes the callScene subscription.
func (r *RawAPI) Unsubscribe(ctx context.Context, subscriptionID int) error {
	p := url.Values{}
	p.Set("name", EventCallScene)
	p.Set("subscriptionID", strconv.Itoa(subscriptionID))
	_, err := r.req.Request(ctx, "event/unsubscribe", p)
	return err
}

// PollEvents long-polls for pending events and returns the raw result.
// The server holds the request for up to timeoutMs.
func (r *RawAPI) PollEvents(ctx context.Context, subscriptionID, timeoutMs int) (any, error) {
	p := url.Values{}
	p.Set("timeout", strconv.Itoa(timeoutMs))
	p.Set("subscriptionID", strconv.Itoa(subscriptionID))
	return r.req.Request(ctx, "event/get", p)
}

// DecodeEvents parses an event/get result and derives each event's
// action, sub-group and static value.
func DecodeEvents(result any) ([]Event, error) {
	const path = "event/get"
	raw, err := member(path, result, "events")
	if err != nil {
		return nil, err
	}

	var we []wireEvent
	if err := decode(path, raw, &we); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(we))
	for _, w := range we {
		if w.Properties == nil {
			return nil, missing(path, "events[].properties")
		}
		p := w.Properties
		switch {
		case p.ZoneID == nil:
			return nil, missing(path, "events[].properties.zoneID")
		case p.GroupID == nil:
			return nil, missing(path, "events[].properties.groupID")
		case p.SceneID == nil:
			return nil, missing(path, "events[].properties.sceneID")
		}

		ev := Event{
			Name:        w.Name,
			ZoneID:      *p.ZoneID,
			Type:        TypeFromCode(*p.GroupID),
			Scene:       *p.SceneID,
			OriginToken: p.OriginToken,
			OriginDSUID: p.OriginDSUID,
			CallOrigin:  p.CallOrigin,
		}
		ev.Action = ActionFromScene(ev.Type, ev.Scene)
		ev.Group = GroupIDFromScene(ev.Scene)
		ev.Value = ValueFromAction(ev.Action)
		events = append(events, ev)
	}
	return events, nil
}
