package session

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"voxm2m/pkg/m2m"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func records(contents ...string) []m2m.Record {
	out := make([]m2m.Record, len(contents))
	for i, c := range contents {
		out[i] = m2m.Record{ID: fmt.Sprintf("cin_%d", i), Content: c}
	}
	return out
}

func permutations(in []string) [][]string {
	if len(in) <= 1 {
		return [][]string{append([]string(nil), in...)}
	}
	var out [][]string
	for i := range in {
		rest := make([]string, 0, len(in)-1)
		rest = append(rest, in[:i]...)
		rest = append(rest, in[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]string{in[i]}, p...))
		}
	}
	return out
}

func TestAssembleOrderIndependent(t *testing.T) {
	msgs := []string{
		"AUDIO_START:3:3:" + b64("HDR"),
		"AUDIO_CHUNK:3:0:" + b64("aa"),
		"AUDIO_CHUNK:3:1:" + b64("bb"),
		"AUDIO_CHUNK:3:2:" + b64("cc"),
		"AUDIO_END:3",
	}
	want := []byte("HDRaabbcc")

	for _, order := range permutations(msgs) {
		a := NewAssembler()
		a.Ingest(records(order...))

		s, ok := a.Get("3")
		if !ok || !s.Complete() {
			t.Fatalf("order %v: session not complete: %+v", order, s)
		}
		got, err := Build(s)
		if err != nil {
			t.Fatalf("order %v: Build: %v", order, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("order %v: payload %q, want %q", order, got, want)
		}
	}
}

func TestAssembleAcrossPolls(t *testing.T) {
	a := NewAssembler()

	a.Ingest(records("AUDIO_START:8:2:"+b64("H"), "AUDIO_CHUNK:8:0:"+b64("x")))
	if s, _ := a.Get("8"); s.Complete() {
		t.Fatal("session complete after first poll")
	}

	a.Ingest(records("AUDIO_CHUNK:8:1:"+b64("y"), "AUDIO_END:8"))
	s, _ := a.Get("8")
	if !s.Complete() {
		t.Fatalf("session incomplete after second poll: %+v", s)
	}
}

func TestIngestIdempotent(t *testing.T) {
	start := "AUDIO_START:4:1:" + b64("H")
	chunk := "AUDIO_CHUNK:4:0:" + b64("A")
	end := "AUDIO_END:4"

	once := NewAssembler()
	once.Ingest(records(start, chunk, end))

	twice := NewAssembler()
	twice.Ingest(records(start, chunk, chunk, end))
	twice.Ingest(records(start, chunk, end))

	a, _ := once.Get("4")
	b, _ := twice.Get("4")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("state after duplicates = %+v, want %+v", b, a)
	}
}

func TestIngestOutOfOrderCreatesSession(t *testing.T) {
	a := NewAssembler()
	a.Ingest(records("AUDIO_END:12", "AUDIO_CHUNK:12:0:"+b64("z")))

	s, ok := a.Get("12")
	if !ok {
		t.Fatal("session not created by END/CHUNK")
	}
	if s.HasHeader || s.Total != 0 || !s.Ended || len(s.Chunks) != 1 {
		t.Errorf("session = %+v", s)
	}
	if s.Complete() {
		t.Error("session without START must not be complete")
	}

	a.Ingest(records("AUDIO_START:12:1:" + b64("H")))
	if s, _ := a.Get("12"); !s.Complete() {
		t.Errorf("late START did not complete session: %+v", s)
	}
}

func TestIngestDropsMalformed(t *testing.T) {
	a := NewAssembler()
	st := a.Ingest(records(
		"AUDIO_START:1:x:"+b64("H"),
		"AUDIO_CHUNK:1:y:"+b64("a"),
		"AUDIO_START:1:2",
		"ON",
		"",
		"AUDIO_CHUNK:2:0:"+b64("a"),
	))

	if st.Dropped != 3 || st.Skipped != 2 || st.Applied != 1 {
		t.Errorf("stats = %+v, want 3 dropped, 2 skipped, 1 applied", st)
	}
	if _, ok := a.Get("1"); ok {
		t.Error("malformed messages created a session")
	}
	if _, ok := a.Get("2"); !ok {
		t.Error("valid message after malformed ones was not applied")
	}
}

func TestCompleteness(t *testing.T) {
	full := func() *Session {
		return &Session{
			ID: "1", Header: b64("H"), HasHeader: true, Total: 3, Ended: true,
			Chunks: map[int]string{0: b64("a"), 1: b64("b"), 2: b64("c")},
		}
	}

	tests := []struct {
		name   string
		mutate func(s *Session)
		want   bool
	}{
		{"complete", func(s *Session) {}, true},
		{"no header", func(s *Session) { s.HasHeader = false }, false},
		{"not ended", func(s *Session) { s.Ended = false }, false},
		{"zero total", func(s *Session) { s.Total = 0 }, false},
		{"missing chunk", func(s *Session) { delete(s.Chunks, 1) }, false},
		{"missing index replaced by out of range index", func(s *Session) {
			delete(s.Chunks, 1)
			s.Chunks[3] = b64("d")
		}, false},
		{"extra chunk", func(s *Session) { s.Chunks[3] = b64("d") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := full()
			tt.mutate(s)
			if got := s.Complete(); got != tt.want {
				t.Errorf("Complete() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMissingChunkWithDuplicateNeverCompletes(t *testing.T) {
	a := NewAssembler()
	a.Ingest(records(
		"AUDIO_START:6:3:"+b64("H"),
		"AUDIO_CHUNK:6:0:"+b64("a"),
		"AUDIO_CHUNK:6:0:"+b64("a"),
		"AUDIO_CHUNK:6:2:"+b64("c"),
		"AUDIO_END:6",
	))

	s, _ := a.Get("6")
	if s.Complete() {
		t.Fatal("session missing index 1 reported complete")
	}
	if got := s.Missing(); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("Missing() = %v, want [1]", got)
	}
	if _, _, ok := Select(a.Sessions(), Cursor{}); ok {
		t.Error("incomplete session was selected")
	}
}

func TestSelectNewestComplete(t *testing.T) {
	complete := func(id string) *Session {
		return &Session{ID: id, Header: b64("H"), HasHeader: true, Total: 1, Ended: true, Chunks: map[int]string{0: b64("a")}}
	}
	sessions := map[string]*Session{
		"9":     complete("9"),
		"10":    complete("10"),
		"11":    {ID: "11", Chunks: map[int]string{}},
		"alpha": complete("alpha"),
	}

	id, _, ok := Select(sessions, Cursor{})
	if !ok || id != "10" {
		t.Fatalf("Select = %q, %v; want 10", id, ok)
	}

	if id, _, ok := Select(sessions, Cursor{LastSessionID: "10"}); ok {
		t.Fatalf("Select after 10 = %q; older sessions must stay superseded", id)
	}

	sessions["12"] = complete("12")
	id, _, ok = Select(sessions, Cursor{LastSessionID: "10"})
	if !ok || id != "12" {
		t.Fatalf("Select after 10 with 12 = %q, %v; want 12", id, ok)
	}

	only := map[string]*Session{"alpha": complete("alpha")}
	id, _, ok = Select(only, Cursor{})
	if !ok || id != "alpha" {
		t.Fatalf("Select non-numeric = %q, %v; want alpha", id, ok)
	}
}

func TestSelectNeverReturnsProcessed(t *testing.T) {
	a := NewAssembler()
	a.Ingest(records("AUDIO_START:7:1:"+b64("H"), "AUDIO_CHUNK:7:0:"+b64("a"), "AUDIO_END:7"))

	cur := Cursor{}
	id, s, ok := Select(a.Sessions(), cur)
	if !ok || id != "7" {
		t.Fatalf("first Select = %q, %v", id, ok)
	}
	if _, err := Build(s); err != nil {
		t.Fatalf("Build: %v", err)
	}
	cur.LastSessionID = id

	for i := 0; i < 3; i++ {
		a.Ingest(records("AUDIO_END:7"))
		if id, _, ok := Select(a.Sessions(), cur); ok {
			t.Fatalf("session %q selected again", id)
		}
	}
}

func TestSelectOlderStaysSuperseded(t *testing.T) {
	a := NewAssembler()
	a.Ingest(records("AUDIO_START:7:1:"+b64("H"), "AUDIO_CHUNK:7:0:"+b64("a"), "AUDIO_END:7"))
	a.Ingest(records("AUDIO_START:8:1:"+b64("H"), "AUDIO_CHUNK:8:0:"+b64("b"), "AUDIO_END:8"))

	cur := Cursor{}
	var consumed []string
	for i := 0; i < 4; i++ {
		id, _, ok := Select(a.Sessions(), cur)
		if !ok {
			break
		}
		consumed = append(consumed, id)
		cur.LastSessionID = id
	}
	if !reflect.DeepEqual(consumed, []string{"8"}) {
		t.Errorf("consumed %v, want [8]", consumed)
	}
}

func TestBuildEndToEnd(t *testing.T) {
	header := "RIFF\x24\x00\x00\x00WAVEfmt "
	a := NewAssembler()
	a.Ingest(records(
		"AUDIO_START:5:2:"+b64(header),
		"AUDIO_CHUNK:5:1:"+b64("B"),
		"AUDIO_CHUNK:5:0:"+b64("A"),
		"AUDIO_END:5",
	))

	id, s, ok := Select(a.Sessions(), Cursor{})
	if !ok || id != "5" {
		t.Fatalf("Select = %q, %v", id, ok)
	}
	got, err := Build(s)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if want := header + "AB"; string(got) != want {
		t.Errorf("payload = %q, want %q", got, want)
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		s    *Session
	}{
		{"nil", nil},
		{"no header", &Session{ID: "1", Total: 1, Chunks: map[int]string{0: b64("a")}}},
		{"bad header", &Session{ID: "1", HasHeader: true, Header: "!!!", Total: 1, Chunks: map[int]string{0: b64("a")}}},
		{"bad chunk", &Session{ID: "1", HasHeader: true, Header: b64("H"), Total: 2, Chunks: map[int]string{0: b64("a"), 1: "%%%"}}},
		{"missing chunk", &Session{ID: "1", HasHeader: true, Header: b64("H"), Total: 2, Chunks: map[int]string{0: b64("a")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Build(tt.s)
			if got != nil {
				t.Errorf("Build returned partial payload %q", got)
			}
			var be *BuildError
			if !errors.As(err, &be) {
				t.Fatalf("err = %v, want *BuildError", err)
			}
		})
	}
}

func TestBuildAcceptsUnpaddedBase64(t *testing.T) {
	s := &Session{
		ID: "1", HasHeader: true, Header: base64.RawStdEncoding.EncodeToString([]byte("HD")),
		Total: 1, Ended: true, Chunks: map[int]string{0: base64.RawStdEncoding.EncodeToString([]byte("x"))},
	}
	got, err := Build(s)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if string(got) != "HDx" {
		t.Errorf("payload = %q, want HDx", got)
	}
}
