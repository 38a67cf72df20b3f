package dss

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
)

// fakeRequester answers requests from per-path handlers and records every
// call.
type fakeRequester struct {
	mu       sync.Mutex
	handlers map[string]func(url.Values) (any, error)
	calls    []fakeCall
}

type fakeCall struct {
	path   string
	params url.Values
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{handlers: make(map[string]func(url.Values) (any, error))}
}

func (f *fakeRequester) on(path string, h func(url.Values) (any, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = h
}

// onJSON answers path with a fixed JSON result.
func (f *fakeRequester) onJSON(path, result string) {
	f.on(path, func(url.Values) (any, error) { return mustJSON(result), nil })
}

func (f *fakeRequester) Request(_ context.Context, path string, params url.Values) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{path: path, params: params})
	h := f.handlers[path]
	f.mu.Unlock()

	if h == nil {
		return nil, fmt.Errorf("%w: %s: no handler", ErrProtocol, path)
	}
	return h(params)
}

// callsTo returns the parameters of every call made to path.
func (f *fakeRequester) callsTo(path string) []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []url.Values
	for _, c := range f.calls {
		if c.path == path {
			out = append(out, c.params)
		}
	}
	return out
}

// mustJSON decodes a JSON literal the same way the HTTP client does.
func mustJSON(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(fmt.Sprintf("bad test JSON %q: %v", s, err))
	}
	return v
}

// memStore is an in-memory Store.
type memStore struct {
	mu    sync.Mutex
	zones []Zone
	saves int
	err   error
}

func (m *memStore) Load(context.Context) ([]Zone, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	return cloneZones(m.zones), m.zones != nil, nil
}

func (m *memStore) Save(_ context.Context, zones []Zone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones = cloneZones(zones)
	m.saves++
	return nil
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// shadowInstallation scripts a zone 3 with shadow groups 1..n. Device
// "d<g>" belongs to group g; "shared" belongs to every group.
func shadowInstallation(f *fakeRequester, groups int) {
	devices := `[`
	for g := 1; g <= groups; g++ {
		devices += fmt.Sprintf(`{"id":"d%d","name":"Blind %d","zoneID":3,"isPresent":true,"outputMode":33,"groups":[2],"buttonActiveGroup":2},`, g, g)
	}
	devices += `{"id":"shared","name":"Awning","zoneID":3,"isPresent":true,"outputMode":33,"groups":[2],"buttonActiveGroup":2}]`
	f.onJSON("apartment/getDevices", devices)

	f.onJSON("apartment/getReachableGroups",
		`{"zones":[{"zoneID":0,"name":"","groups":[1,2]},{"zoneID":3,"name":"Living","groups":[2]},{"zoneID":65534,"name":"","groups":[1]}]}`)

	scenes := `{"reachableScenes":[0`
	for g := 1; g <= groups; g++ {
		scenes += fmt.Sprintf(",%d", g)
	}
	f.onJSON("zone/getReachableScenes", scenes+`]}`)

	f.on("device/getSceneMode", func(p url.Values) (any, error) {
		dsid, scene := p.Get("dsid"), p.Get("sceneID")
		dontCare := dsid != "shared" && dsid != "d"+scene
		return map[string]any{"sceneID": scene, "dontCare": dontCare}, nil
	})

	f.on("device/getOutputValue", func(p url.Values) (any, error) {
		return map[string]any{"offset": p.Get("offset"), "value": float64(0)}, nil
	})
	f.on("device/setOutputValue", func(url.Values) (any, error) { return nil, nil })
	f.on("zone/callScene", func(url.Values) (any, error) { return nil, nil })
}
