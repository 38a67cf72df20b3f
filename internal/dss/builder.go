package dss

import (
	"context"
	"fmt"
)

// builder assembles a full structure snapshot from the bulk endpoints.
// The dSS has no single "describe everything" call, so a build is a few
// hundred requests on a typical installation.
type builder struct {
	api *RawAPI
	log Logger
}

// build runs the four build steps. Only the device and zone listings are
// fatal; every other failure is logged and the affected unit is skipped.
func (b *builder) build(ctx context.Context) ([]Zone, error) {
	devices, err := b.api.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching devices: %w", err)
	}

	listed, err := b.api.Zones(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching zones: %w", err)
	}

	zones := make([]Zone, 0, len(listed))
	for _, z := range listed {
		if z.ID == ZoneNone || z.ID == ZoneBroadcast {
			continue
		}
		zones = append(zones, z)
	}

	for i := range zones {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: structure build: %w", ErrTransport, err)
		}

		z := &zones[i]
		for _, t := range z.Types {
			z.Groups = append(z.Groups, b.groupsFor(ctx, z.ID, t)...)
		}
		for gi := range z.Groups {
			z.Groups[gi].Devices = b.members(ctx, z.Groups[gi], devices)
		}
	}

	for i := range zones {
		for gi := range zones[i].Groups {
			g := &zones[i].Groups[gi]
			if g.Type != TypeShadow {
				continue
			}
			if v, ok := b.shadowStatus(ctx, *g); ok {
				g.Status = v
			}
		}
	}

	b.log.Info("structure built", "zones", len(zones), "devices", len(devices))
	return zones, nil
}

// groupsFor derives the groups of one (zone, type) pair with their status.
// Shadow status is left unknown: the last-called scene is unreliable for
// shadows and is resolved from the devices instead.
func (b *builder) groupsFor(ctx context.Context, zoneID int, t Type) []Group {
	scenes, err := b.api.ReachableScenes(ctx, zoneID, t)
	if err != nil {
		b.log.Warn("skipping group type: reachable scenes unavailable",
			"zone", zoneID, "type", t.String(), "error", err)
		return nil
	}

	groups := GroupsFromScenes(scenes, zoneID, t)
	if t == TypeShadow || len(groups) == 0 {
		return groups
	}

	scene, err := b.api.LastCalledScene(ctx, zoneID, t)
	if err != nil {
		b.log.Warn("group status unknown: last called scene unavailable",
			"zone", zoneID, "type", t.String(), "error", err)
		return groups
	}

	status := ValueFromAction(ActionFromScene(t, scene))
	for i := range groups {
		groups[i].Status = status
	}
	return groups
}

// members returns the devices belonging to a group. Only light and shadow
// devices of the same zone whose active button group matches are
// considered; sub-groups additionally require the device to care about
// the sub-group's scene.
func (b *builder) members(ctx context.Context, g Group, devices []Device) []Device {
	var out []Device
	for _, d := range devices {
		if d.DeviceType != DeviceLight && d.DeviceType != DeviceShadow {
			continue
		}
		if d.ZoneID != g.ZoneID || d.ButtonType != g.Type {
			continue
		}

		if g.ID == 0 {
			out = append(out, d.clone())
			continue
		}

		mode, err := b.api.SceneMode(ctx, d.ID, g.ID)
		if err != nil {
			b.log.Debug("device excluded: scene mode unavailable",
				"device", d.ID, "zone", g.ZoneID, "group", g.ID, "error", err)
			continue
		}
		if !mode.DontCare {
			out = append(out, d.clone())
		}
	}
	return out
}

// shadowStatus reads the live position of a shadow group's first device.
func (b *builder) shadowStatus(ctx context.Context, g Group) (Value, bool) {
	if len(g.Devices) == 0 {
		return UnknownValue(), false
	}

	v, err := b.api.ShadowValue(ctx, g.Devices[0].ID)
	if err != nil {
		b.log.Warn("shadow status unknown: output value unavailable",
			"zone", g.ZoneID, "group", g.ID, "device", g.Devices[0].ID, "error", err)
		return UnknownValue(), false
	}
	return v, true
}
