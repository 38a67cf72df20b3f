package dss

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
)

func TestDecodeEvents(t *testing.T) {
	result := mustJSON(`{"events":[
		{"name":"callScene","properties":{"zoneID":"4","groupID":"1","sceneID":"7","originToken":"tok","callOrigin":"2"}},
		{"name":"callScene","properties":{"zoneID":"3","groupID":"2","sceneID":"52"}}
	]}`)

	events, err := DecodeEvents(result)
	if err != nil {
		t.Fatalf("DecodeEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}

	first := events[0]
	if first.ZoneID != 4 || first.Type != TypeLight || first.Scene != 7 || first.Group != 2 {
		t.Errorf("first event = %+v", first)
	}
	if first.Action != (Action{Kind: ActionLightOn, Group: 2}) || first.Value != Light(1) {
		t.Errorf("first event derived action %v value %v", first.Action, first.Value)
	}
	if first.OriginToken != "tok" || first.CallOrigin != "2" {
		t.Errorf("first event origin = %q/%q", first.OriginToken, first.CallOrigin)
	}

	second := events[1]
	if second.Action != (Action{Kind: ActionShadowStop, Group: 1}) || second.Group != 1 || !second.Value.IsUnknown() {
		t.Errorf("second event = %+v", second)
	}
}

func TestDecodeEventsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		result any
		field  string
	}{
		{"not an object", mustJSON(`[1,2]`), "not an object"},
		{"events missing", mustJSON(`{}`), "events"},
		{"properties missing", mustJSON(`{"events":[{"name":"callScene"}]}`), "properties"},
		{"zone missing", mustJSON(`{"events":[{"properties":{"groupID":"1","sceneID":"5"}}]}`), "zoneID"},
		{"scene missing", mustJSON(`{"events":[{"properties":{"zoneID":"1","groupID":"1"}}]}`), "sceneID"},
		{"zone not numeric", mustJSON(`{"events":[{"properties":{"zoneID":"kitchen","groupID":"1","sceneID":"5"}}]}`), "zoneID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvents(tt.result)
			if !errors.Is(err, ErrProtocol) {
				t.Fatalf("error = %v, want ErrProtocol", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %q", err, tt.field)
			}
		})
	}
}

func TestRawAPIOffsetMismatch(t *testing.T) {
	f := newFakeRequester()
	f.onJSON("device/getOutputValue", `{"offset":4,"value":100}`)
	api := NewRawAPI(f)

	_, err := api.ShadowOpen(context.Background(), "dev1")
	if !errors.Is(err, ErrOffsetMismatch) || !errors.Is(err, ErrProtocol) {
		t.Fatalf("error = %v, want ErrOffsetMismatch and ErrProtocol", err)
	}
	for _, want := range []string{"dev1", "offset 2", "got 4"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestRawAPIShadowValue(t *testing.T) {
	f := newFakeRequester()
	f.on("device/getOutputValue", func(p url.Values) (any, error) {
		raw := 0.0
		if p.Get("offset") == "4" {
			raw = 65535
		}
		return map[string]any{"offset": p.Get("offset"), "value": raw}, nil
	})

	v, err := NewRawAPI(f).ShadowValue(context.Background(), "dev1")
	if err != nil {
		t.Fatalf("ShadowValue() error = %v", err)
	}
	if v != Shadow(1, 1) {
		t.Errorf("ShadowValue() = %v, want Shadow(1.00, 1.00)", v)
	}
}

func TestRawAPIZonesAndDevices(t *testing.T) {
	f := newFakeRequester()
	f.onJSON("apartment/getReachableGroups", `{"zones":[{"zoneID":0,"name":"","groups":[]},{"zoneID":12,"name":"Office","groups":[1,2,77]}]}`)
	f.onJSON("apartment/getDevices", `[{"id":"abc","name":"Spot","zoneID":12,"isPresent":true,"outputMode":22,"groups":[1],"buttonActiveGroup":1}]`)
	api := NewRawAPI(f)
	ctx := context.Background()

	zones, err := api.Zones(ctx)
	if err != nil {
		t.Fatalf("Zones() error = %v", err)
	}
	if len(zones) != 2 {
		t.Fatalf("len(zones) = %d, want 2 (sentinels are kept at this layer)", len(zones))
	}
	office := zones[1]
	if office.ID != 12 || office.Name != "Office" || len(office.Types) != 3 || office.Types[2] != TypeUnknown {
		t.Errorf("office zone = %+v", office)
	}

	devices, err := api.Devices(ctx)
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	want := Device{ID: "abc", Name: "Spot", ZoneID: 12, Present: true, DeviceType: DeviceLight, ButtonType: TypeLight}
	got := devices[0]
	if got.ID != want.ID || got.Name != want.Name || got.ZoneID != want.ZoneID ||
		got.Present != want.Present || got.DeviceType != want.DeviceType || got.ButtonType != want.ButtonType {
		t.Errorf("device = %+v, want %+v", got, want)
	}
}

func TestRawAPIMissingFields(t *testing.T) {
	f := newFakeRequester()
	f.onJSON("device/getSceneMode", `{"sceneID":1}`)
	f.onJSON("zone/getLastCalledScene", `{}`)
	api := NewRawAPI(f)
	ctx := context.Background()

	if _, err := api.SceneMode(ctx, "dev", 1); !errors.Is(err, ErrProtocol) || !strings.Contains(err.Error(), "dontCare") {
		t.Errorf("SceneMode() error = %v, want missing dontCare", err)
	}
	if _, err := api.LastCalledScene(ctx, 1, TypeLight); !errors.Is(err, ErrProtocol) || !strings.Contains(err.Error(), "scene") {
		t.Errorf("LastCalledScene() error = %v, want missing scene", err)
	}
}

func TestRawAPICallAction(t *testing.T) {
	f := newFakeRequester()
	f.on("zone/callScene", func(url.Values) (any, error) { return nil, nil })
	api := NewRawAPI(f)
	ctx := context.Background()

	if err := api.CallAction(ctx, 5, Action{Kind: ActionShadowStop, Group: 3}); err != nil {
		t.Fatalf("CallAction() error = %v", err)
	}
	calls := f.callsTo("zone/callScene")
	if len(calls) != 1 {
		t.Fatalf("callScene calls = %d, want 1", len(calls))
	}
	p := calls[0]
	if p.Get("id") != "5" || p.Get("groupID") != "2" || p.Get("sceneNumber") != "54" {
		t.Errorf("callScene params = %v", p)
	}

	if err := api.CallAction(ctx, 5, Action{Kind: ActionUnknown}); !errors.Is(err, ErrNoMapping) {
		t.Errorf("CallAction(unknown) error = %v, want ErrNoMapping", err)
	}
}

func TestRawAPIApartmentInfo(t *testing.T) {
	f := newFakeRequester()
	f.onJSON("apartment/getName", `{"name":"Home"}`)
	f.onJSON("apartment/getCircuits", `{"circuits":[{"dsid":"m1","name":"Meter","isPresent":true,"isValid":true}]}`)
	api := NewRawAPI(f)
	ctx := context.Background()

	name, err := api.ApartmentName(ctx)
	if err != nil || name != "Home" {
		t.Errorf("ApartmentName() = %q, %v", name, err)
	}
	circuits, err := api.Circuits(ctx)
	if err != nil {
		t.Fatalf("Circuits() error = %v", err)
	}
	if len(circuits) != 1 || circuits[0] != (Circuit{ID: "m1", Name: "Meter", Present: true, Valid: true}) {
		t.Errorf("Circuits() = %+v", circuits)
	}
}
