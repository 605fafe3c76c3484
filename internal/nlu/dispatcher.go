package nlu

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"
)

// Device describes how an actuator container accepts commands. An empty
// command means the action is not supported by the device.
type Device struct {
	Path       string `yaml:"path"`
	Activate   string `yaml:"activate"`
	Deactivate string `yaml:"deactivate"`
	SetSpeed   bool   `yaml:"set_speed"`
}

func DefaultDevices() map[string]Device {
	return map[string]Device{
		"led":      {Path: "/~/in-cse/in-name/led", Activate: "ON", Deactivate: "OFF"},
		"solenoid": {Path: "/~/in-cse/in-name/solenoid", Activate: "ON", Deactivate: "OFF"},
		"fan":      {Path: "/~/in-cse/in-name/fan", Deactivate: "0", SetSpeed: true},
	}
}

// Target is a mapped action: where to write and what.
type Target struct {
	Device string
	Path   string
	Wire   string
	Verb   string
}

type MappingError struct {
	Action Action
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("cannot map %s: %s", e.Action, e.Reason)
}

// Store is the write side of the resource store.
type Store interface {
	Write(ctx context.Context, path, content string) error
}

// Mirror receives a copy of every delivered command, e.g. a websocket hub.
type Mirror interface {
	Transmit(v any) error
}

type Dispatcher struct {
	store   Store
	devices map[string]Device
	mirror  Mirror
	hubTo   string
}

type DispatcherConfig struct {
	Store   Store
	Devices map[string]Device
	Mirror  Mirror
	HubTo   string
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	devices := cfg.Devices
	if devices == nil {
		devices = DefaultDevices()
	}
	to := cfg.HubTo
	if to == "" {
		to = "ALL"
	}
	return &Dispatcher{
		store:   cfg.Store,
		devices: devices,
		mirror:  cfg.Mirror,
		hubTo:   to,
	}
}

func (d *Dispatcher) Map(a Action) (Target, error) {
	dev, ok := d.devices[a.Device]
	if !ok {
		return Target{}, &MappingError{Action: a, Reason: "unknown device"}
	}

	var verb, wire string
	switch a.Action {
	case ActionActivate:
		verb, wire = "ON", dev.Activate
	case ActionDeactivate:
		verb, wire = "OFF", dev.Deactivate
	case ActionSetSpeed:
		if !dev.SetSpeed {
			return Target{}, &MappingError{Action: a, Reason: "device has no speed control"}
		}
		if a.Value == nil {
			return Target{}, &MappingError{Action: a, Reason: "set_speed without a value"}
		}
		verb, wire = "SET", formatValue(a.Value)
	default:
		return Target{}, &MappingError{Action: a, Reason: "unknown action"}
	}

	if wire == "" {
		return Target{}, &MappingError{Action: a, Reason: "action not supported by device"}
	}

	return Target{Device: a.Device, Path: dev.Path, Wire: wire, Verb: verb}, nil
}

// Dispatch maps the action and writes it. Mapping failures never reach the
// store.
func (d *Dispatcher) Dispatch(ctx context.Context, a Action) (Target, error) {
	t, err := d.Map(a)
	if err != nil {
		return Target{}, err
	}
	return t, d.Send(ctx, t)
}

// Send writes an already mapped target. It is also used to retry a
// delivery that failed in an earlier cycle.
func (d *Dispatcher) Send(ctx context.Context, t Target) error {
	if d.store == nil {
		return fmt.Errorf("no store configured")
	}
	if err := d.store.Write(ctx, t.Path, t.Wire); err != nil {
		return fmt.Errorf("write %s: %w", t.Path, err)
	}

	log.Info("Dispatched", "device", t.Device, "path", t.Path, "con", t.Wire)

	if d.mirror != nil {
		msg := []string{d.hubTo, t.Verb, strings.ToUpper(t.Device)}
		if t.Verb == "SET" {
			msg = append(msg, t.Wire)
		}
		if err := d.mirror.Transmit(msg); err != nil {
			log.Warn("Failed to mirror command", "device", t.Device, "err", err)
		}
	}

	return nil
}
