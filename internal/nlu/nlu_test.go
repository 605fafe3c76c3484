package nlu

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(context.Context, []byte) (string, error) {
	return f.text, f.err
}

// wordEmbedder embeds a text as a bag of words over a fixed vocabulary.
type wordEmbedder struct {
	vocab []string
	calls int
}

func (w *wordEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	w.calls++
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v := make([]float64, len(w.vocab))
		for _, word := range strings.Fields(t) {
			for j, vw := range w.vocab {
				if word == vw {
					v[j]++
				}
			}
		}
		out[i] = v
	}
	return out, nil
}

func lightsCatalog() Catalog {
	return Catalog{
		"lights on":  {Device: "led", Action: ActionActivate},
		"lights off": {Device: "led", Action: ActionDeactivate},
	}
}

func TestAcceptThreshold(t *testing.T) {
	c := lightsCatalog()

	cmd, ok := c.Accept(&Recognition{Text: "turn the lights on", Command: "lights on", Score: 0.35}, 0.2)
	if !ok {
		t.Fatal("score 0.35 rejected at threshold 0.2")
	}
	if cmd.Device != "led" || cmd.Action.Action != ActionActivate {
		t.Errorf("command = %+v, want led/activate", cmd)
	}
	if cmd.Text != "turn the lights on" || cmd.Score != 0.35 {
		t.Errorf("command lost recognition details: %+v", cmd)
	}

	if _, ok := c.Accept(&Recognition{Text: "what time is it", Command: "lights off", Score: 0.1}, 0.2); ok {
		t.Error("score 0.1 accepted at threshold 0.2")
	}
	if _, ok := c.Accept(&Recognition{Command: "lights on", Score: 0.2}, 0.2); !ok {
		t.Error("score equal to threshold rejected")
	}
	if _, ok := c.Accept(&Recognition{Command: "open the door", Score: 0.9}, 0.2); ok {
		t.Error("phrase outside catalog accepted")
	}
	if _, ok := c.Accept(nil, 0); ok {
		t.Error("nil recognition accepted")
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	if len(c) != 24 {
		t.Errorf("len = %d, want 24", len(c))
	}

	d := NewDispatcher(DispatcherConfig{})
	for phrase, act := range c {
		if _, err := d.Map(act); err != nil {
			t.Errorf("phrase %q does not map: %v", phrase, err)
		}
	}

	if v := c["set to two"].Value; v == nil || *v != 2 {
		t.Errorf("set to two value = %v", v)
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		a, b []float64
		want float64
	}{
		{[]float64{1, 0}, []float64{1, 0}, 1},
		{[]float64{1, 0}, []float64{0, 1}, 0},
		{[]float64{1, 1}, []float64{-1, -1}, -1},
		{[]float64{0, 0}, []float64{1, 1}, 0},
		{[]float64{1}, []float64{1, 1}, 0},
	}
	for _, tt := range tests {
		if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Cosine(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestEmbeddingMatcher(t *testing.T) {
	emb := &wordEmbedder{vocab: []string{"lights", "on", "off", "fan"}}
	m := NewEmbeddingMatcher(emb, lightsCatalog())

	if _, _, err := m.Match(context.Background(), "lights on"); err == nil {
		t.Error("Match before Prepare succeeded")
	}

	if err := m.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := m.Prepare(context.Background()); err != nil {
		t.Fatalf("second Prepare: %v", err)
	}
	if emb.calls != 1 {
		t.Errorf("catalog embedded %d times, want 1", emb.calls)
	}

	phrase, score, err := m.Match(context.Background(), "turn the lights off please")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if phrase != "lights off" {
		t.Errorf("phrase = %q, want lights off", phrase)
	}
	if score <= 0 || score > 1 {
		t.Errorf("score = %v, want (0, 1]", score)
	}
}

func TestSpeechRecognizer(t *testing.T) {
	emb := &wordEmbedder{vocab: []string{"lights", "on", "off"}}

	t.Run("match", func(t *testing.T) {
		r := NewSpeechRecognizer(fakeTranscriber{text: " lights on "}, NewEmbeddingMatcher(emb, lightsCatalog()))
		if err := r.Ready(context.Background()); err != nil {
			t.Fatalf("Ready: %v", err)
		}
		rec, err := r.Recognize(context.Background(), []byte("RIFF"))
		if err != nil {
			t.Fatalf("Recognize: %v", err)
		}
		if rec == nil || rec.Command != "lights on" || rec.Text != "lights on" {
			t.Errorf("recognition = %+v", rec)
		}
	})

	t.Run("empty transcript", func(t *testing.T) {
		r := NewSpeechRecognizer(fakeTranscriber{text: "  "}, NewEmbeddingMatcher(emb, lightsCatalog()))
		r.Ready(context.Background())
		rec, err := r.Recognize(context.Background(), []byte("RIFF"))
		if err != nil || rec != nil {
			t.Errorf("Recognize = %+v, %v; want nil, nil", rec, err)
		}
	})

	t.Run("transcriber error", func(t *testing.T) {
		boom := errors.New("boom")
		r := NewSpeechRecognizer(fakeTranscriber{err: boom}, NewEmbeddingMatcher(emb, lightsCatalog()))
		r.Ready(context.Background())
		if _, err := r.Recognize(context.Background(), nil); !errors.Is(err, boom) {
			t.Errorf("err = %v, want wrapped boom", err)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		if err := NewSpeechRecognizer(nil, nil).Ready(context.Background()); err == nil {
			t.Error("Ready succeeded without backends")
		}
	})
}

func TestChatMatcherParse(t *testing.T) {
	m := &ChatMatcher{catalog: lightsCatalog()}

	tests := []struct {
		name      string
		content   string
		wantCmd   string
		wantScore float64
		wantErr   bool
	}{
		{"match", `{"command":"lights on","confidence":0.8}`, "lights on", 0.8, false},
		{"clamped", `{"command":"lights off","confidence":3}`, "lights off", 1, false},
		{"unknown command", `{"command":"open door","confidence":0.9}`, "", 0, false},
		{"empty command", `{"command":"","confidence":0}`, "", 0, false},
		{"not json", "lights on", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, score, err := m.parse(tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if cmd != tt.wantCmd || score != tt.wantScore {
				t.Errorf("parse = %q, %v; want %q, %v", cmd, score, tt.wantCmd, tt.wantScore)
			}
		})
	}
}

func TestSniffExt(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("RIFF...."), ".wav"},
		{[]byte("OggS...."), ".ogg"},
		{[]byte("ID3\x04"), ".mp3"},
		{[]byte{0xFF, 0xFB, 0x90}, ".mp3"},
		{[]byte("????"), ".wav"},
	}
	for _, tt := range tests {
		if got := sniffExt(tt.in); got != tt.want {
			t.Errorf("sniffExt(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
