package nlu

import (
	"fmt"
	"slices"
	"strconv"
)

const (
	ActionActivate   = "activate"
	ActionDeactivate = "deactivate"
	ActionSetSpeed   = "set_speed"
)

// Action is the structured meaning of a canonical phrase.
type Action struct {
	Device string `yaml:"device" json:"device"`
	Action string `yaml:"action" json:"action"`
	Value  *int   `yaml:"value,omitempty" json:"value,omitempty"`
}

func (a Action) String() string {
	if a.Value != nil {
		return fmt.Sprintf("%s/%s=%d", a.Device, a.Action, *a.Value)
	}
	return a.Device + "/" + a.Action
}

// Command is an accepted recognition, ready for dispatch.
type Command struct {
	Action
	Phrase string
	Text   string
	Score  float64
}

// Catalog maps canonical phrases to actions.
type Catalog map[string]Action

func (c Catalog) Phrases() []string {
	out := make([]string, 0, len(c))
	for p := range c {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Accept applies the acceptance threshold. A nil recognition, a score below
// threshold or a phrase outside the catalog yields no command.
func (c Catalog) Accept(rec *Recognition, threshold float64) (*Command, bool) {
	if rec == nil || rec.Score < threshold {
		return nil, false
	}
	act, ok := c[rec.Command]
	if !ok {
		return nil, false
	}
	return &Command{
		Action: act,
		Phrase: rec.Command,
		Text:   rec.Text,
		Score:  rec.Score,
	}, true
}

func speed(v int) *int { return &v }

// DefaultCatalog is the phrase set of the reference deployment: a light, a
// solenoid lock and a three speed fan.
func DefaultCatalog() Catalog {
	led := func(a string) Action { return Action{Device: "led", Action: a} }
	lock := func(a string) Action { return Action{Device: "solenoid", Action: a} }
	fan := func(a string) Action { return Action{Device: "fan", Action: a} }
	fanSpeed := func(v int) Action { return Action{Device: "fan", Action: ActionSetSpeed, Value: speed(v)} }

	c := Catalog{
		"activate lights":   led(ActionActivate),
		"deactivate lights": led(ActionDeactivate),
		"lights on":         led(ActionActivate),
		"lights off":        led(ActionDeactivate),
		"turn on lights":    led(ActionActivate),
		"turn off lights":   led(ActionDeactivate),

		"activate lock":   lock(ActionActivate),
		"deactivate lock": lock(ActionDeactivate),
		"turn on lock":    lock(ActionActivate),
		"turn off lock":   lock(ActionDeactivate),

		"fan speed to minimum": fanSpeed(1),
		"fan speed to medium":  fanSpeed(2),
		"fan speed to max":     fanSpeed(3),
		"deactivate fan":       fan(ActionDeactivate),
		"fan off":              fan(ActionDeactivate),
		"switch off fan":       fan(ActionDeactivate),
		"turn off fan":         fan(ActionDeactivate),
		"set fan off":          fan(ActionDeactivate),
	}

	for i, word := range []string{"one", "two", "three"} {
		c["fan speed to "+word] = fanSpeed(i + 1)
		c["set to "+word] = fanSpeed(i + 1)
	}

	return c
}

func formatValue(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
