package main

import (
	"encoding/json"
	"testing"

	"voxm2m/internal/ipc"
	"voxm2m/internal/poller"
	"voxm2m/pkg/protocol"
)

type fakeSource struct {
	name     string
	state    poller.State
	triggers int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Status() poller.Status {
	return poller.Status{Source: f.name, State: f.state}
}

func (f *fakeSource) Trigger() { f.triggers++ }

type sent []string

func (s *sent) Transmit(v any) error {
	m := v.(*protocol.Message)
	m.From = "VOX"
	*s = append(*s, m.String())
	return nil
}

func fixture() (*control, *fakeSource, *fakeSource) {
	a := &fakeSource{name: "voice_command", state: poller.SLEEPING}
	b := &fakeSource{name: "kitchen", state: poller.FETCHING}
	return &control{sources: []source{a, b}}, a, b
}

func TestIPCStatus(t *testing.T) {
	c, _, _ := fixture()

	reply := c.ipcHandler(ipc.ControlMessage{Cmd: ipc.CmdStatus})
	if !reply.OK {
		t.Fatalf("reply = %+v", reply)
	}
	var st []poller.Status
	if err := json.Unmarshal(reply.Data, &st); err != nil {
		t.Fatal(err)
	}
	if len(st) != 2 || st[0].Source != "voice_command" || st[1].Source != "kitchen" {
		t.Errorf("status = %+v", st)
	}

	reply = c.ipcHandler(ipc.ControlMessage{Cmd: ipc.CmdStatus, Source: "kitchen"})
	if err := json.Unmarshal(reply.Data, &st); err != nil {
		t.Fatal(err)
	}
	if len(st) != 1 || st[0].Source != "kitchen" {
		t.Errorf("status = %+v", st)
	}
}

func TestIPCPoll(t *testing.T) {
	c, a, b := fixture()

	if r := c.ipcHandler(ipc.ControlMessage{Cmd: ipc.CmdPoll, Source: "voice_command"}); !r.OK {
		t.Fatalf("reply = %+v", r)
	}
	if a.triggers != 1 || b.triggers != 0 {
		t.Errorf("triggers = %d, %d", a.triggers, b.triggers)
	}

	c.ipcHandler(ipc.ControlMessage{Cmd: ipc.CmdPoll})
	if a.triggers != 2 || b.triggers != 1 {
		t.Errorf("triggers = %d, %d", a.triggers, b.triggers)
	}
}

func TestIPCErrors(t *testing.T) {
	c, _, _ := fixture()

	if r := c.ipcHandler(ipc.ControlMessage{Cmd: "reboot"}); r.OK || r.Error == "" {
		t.Errorf("unknown command reply = %+v", r)
	}
	if r := c.ipcHandler(ipc.ControlMessage{Cmd: ipc.CmdPoll, Source: "garage"}); r.OK {
		t.Errorf("unknown source reply = %+v", r)
	}
}

func TestHubHandler(t *testing.T) {
	tests := []struct {
		in       string
		want     string
		triggers [2]int
	}{
		{in: "VOX:POLL:VOICE_COMMAND:CTL", want: "CTL:OK:POLL:VOICE_COMMAND:VOX", triggers: [2]int{1, 0}},
		{in: "VOX:POLL:ALL:CTL", want: "CTL:OK:POLL:ALL:VOX", triggers: [2]int{1, 1}},
		{in: "VOX:STATUS:ALL:CTL", want: "CTL:OK:STATUS:SLEEPING:FETCHING:VOX"},
		{in: "VOX:POLL:GARAGE:CTL", want: "CTL:ERR:UNKNOWN_SOURCE:GARAGE:VOX"},
		{in: "VOX:JUMP:ALL:CTL", want: "CTL:ERR:UNKNOWN_VERB:JUMP:VOX"},
		{in: "VOX:OK:POLL:CTL"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, a, b := fixture()
			var out sent

			msg, err := protocol.Parse(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			c.hubHandler(&out)(msg)

			if tt.want == "" {
				if len(out) != 0 {
					t.Errorf("unexpected reply %v", out)
				}
				return
			}
			if len(out) != 1 || out[0] != tt.want {
				t.Errorf("reply = %v, want %q", out, tt.want)
			}
			if got := [2]int{a.triggers, b.triggers}; got != tt.triggers {
				t.Errorf("triggers = %v, want %v", got, tt.triggers)
			}
		})
	}
}
