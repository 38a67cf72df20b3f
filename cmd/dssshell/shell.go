package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/nerrad567/gray-logic-dss/internal/dss"
	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/logging"
)

// apartment is the part of *dss.Apartment the shell drives.
type apartment interface {
	Zones() ([]dss.Zone, error)
	UpdateAll(ctx context.Context) ([]dss.Zone, error)
	SetValue(ctx context.Context, zone int, group *int, v dss.Value) error
	EventChannel(ctx context.Context) (<-chan dss.Event, error)
}

// commandTimeout bounds a single write or resync.
const commandTimeout = 30 * time.Second

var errQuit = errors.New("quit")

// Shell handles the interactive command loop.
type Shell struct {
	apt apartment
	rl  *readline.Instance
	out io.Writer
	log *logging.Logger
}

// NewShell creates a shell writing through rl. log is the logger whose
// level the "log" command changes.
func NewShell(apt apartment, rl *readline.Instance, log *logging.Logger) *Shell {
	return &Shell{apt: apt, rl: rl, out: rl.Stdout(), log: log}
}

// Run reads commands until quit, EOF or ctx ends.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if err := s.execute(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				fmt.Fprintln(s.out, "Exiting...")
				cancel()
				return
			}
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
}

// execute runs one command line.
func (s *Shell) execute(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
		return nil
	case "zones", "z":
		return s.cmdZones()
	case "zone":
		return s.cmdZone(args)
	case "light", "l":
		return s.cmdLight(ctx, args)
	case "shadow", "s":
		return s.cmdShadow(ctx, args)
	case "events", "e":
		streamCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
		return s.cmdEvents(streamCtx)
	case "resync":
		return s.cmdResync(ctx)
	case "log":
		return s.cmdLog(args)
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
dSS Shell Commands:
  Structure:
    zones                              - List zones with their group types
    zone <id>                          - Show groups, statuses and devices of a zone
    resync                             - Rebuild the structure from the server

  Control:
    light on|off|<level> <zone> [grp]  - Switch or dim lights (level 0..1)
    shadow <open> <angle> <zone> [grp] - Move blinds (open 1 = fully closed)

  Events:
    events                             - Stream scene events until Ctrl-C

  General:
    log [debug|info|warn|error]        - Show or change the log level
    help                               - Show this help
    quit                               - Exit`)
}

func (s *Shell) cmdZones() error {
	zones, err := s.apt.Zones()
	if err != nil {
		return err
	}
	if len(zones) == 0 {
		fmt.Fprintln(s.out, "No zones.")
		return nil
	}
	for _, z := range zones {
		types := make([]string, len(z.Types))
		for i, t := range z.Types {
			types[i] = t.String()
		}
		fmt.Fprintf(s.out, "%5d  %-24s %d groups  [%s]\n", z.ID, z.Name, len(z.Groups), strings.Join(types, ", "))
	}
	return nil
}

func (s *Shell) cmdZone(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: zone <id>")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid zone id %q", args[0])
	}

	zones, err := s.apt.Zones()
	if err != nil {
		return err
	}
	for _, z := range zones {
		if z.ID != id {
			continue
		}
		fmt.Fprintf(s.out, "Zone %d: %s\n", z.ID, z.Name)
		for _, g := range z.Groups {
			fmt.Fprintf(s.out, "  group %d (%s): %s\n", g.ID, g.Type, g.Status)
			for _, d := range g.Devices {
				fmt.Fprintf(s.out, "    %-24s %s  %s\n", d.Name, d.DeviceType, d.ID)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: zone %d", dss.ErrLookup, id)
}

func (s *Shell) cmdLight(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New("usage: light on|off|<level> <zone> [group]")
	}

	var level float64
	switch strings.ToLower(args[0]) {
	case "on":
		level = 1
	case "off":
		level = 0
	default:
		l, err := parseUnit("level", args[0])
		if err != nil {
			return err
		}
		level = l
	}

	zone, group, err := parseTarget(args[1:])
	if err != nil {
		return err
	}
	return s.setValue(ctx, zone, group, dss.Light(level))
}

func (s *Shell) cmdShadow(ctx context.Context, args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return errors.New("usage: shadow <open> <angle> <zone> [group]")
	}
	open, err := parseUnit("open", args[0])
	if err != nil {
		return err
	}
	angle, err := parseUnit("angle", args[1])
	if err != nil {
		return err
	}
	zone, group, err := parseTarget(args[2:])
	if err != nil {
		return err
	}
	return s.setValue(ctx, zone, group, dss.Shadow(open, angle))
}

func (s *Shell) setValue(ctx context.Context, zone int, group *int, v dss.Value) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := s.apt.SetValue(ctx, zone, group, v); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "OK: zone %d set to %s\n", zone, v)
	return nil
}

func (s *Shell) cmdEvents(ctx context.Context) error {
	events, err := s.apt.EventChannel(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Streaming events, press Ctrl-C to stop.")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out, "Stopped.")
			return nil
		case ev, ok := <-events:
			if !ok {
				fmt.Fprintln(s.out, "Event stream closed.")
				return nil
			}
			fmt.Fprintf(s.out, "%s  zone %d group %d (%s) scene %d -> %s\n",
				time.Now().Format("15:04:05"), ev.ZoneID, ev.Group, ev.Type, ev.Scene, ev.Value)
		}
	}
}

func (s *Shell) cmdResync(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	zones, err := s.apt.UpdateAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Resynced %d zones.\n", len(zones))
	return nil
}

func (s *Shell) cmdLog(args []string) error {
	if s.log == nil {
		return errors.New("no logger attached")
	}
	switch len(args) {
	case 0:
	case 1:
		s.log.SetLevel(logging.ParseLevel(args[0]))
	default:
		return errors.New("usage: log [debug|info|warn|error]")
	}
	fmt.Fprintf(s.out, "Log level: %s\n", strings.ToLower(s.log.Level().String()))
	return nil
}

// parseUnit parses a number in 0..1.
func parseUnit(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 1 {
		return 0, fmt.Errorf("%s must be a number between 0 and 1, got %q", name, s)
	}
	return v, nil
}

// parseTarget parses "<zone> [group]".
func parseTarget(args []string) (int, *int, error) {
	zone, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, nil, fmt.Errorf("invalid zone id %q", args[0])
	}
	if len(args) == 1 {
		return zone, nil, nil
	}
	group, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, nil, fmt.Errorf("invalid group id %q", args[1])
	}
	return zone, &group, nil
}
