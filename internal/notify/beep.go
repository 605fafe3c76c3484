package notify

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Beeper plays a short mp3 as acknowledgement of a dispatched command.
type Beeper struct {
	path string

	mu       sync.Mutex
	inited   bool
	initRate beep.SampleRate
}

func NewBeeper(path string) (*Beeper, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("beep sound: %w", err)
	}
	return &Beeper{path: path}, nil
}

// Beep blocks until the sound has played.
func (b *Beeper) Beep() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Open(b.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", b.path, err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode %s: %w", b.path, err)
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if !b.inited {
		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			return fmt.Errorf("speaker init: %w", err)
		}
		b.inited, b.initRate = true, format.SampleRate
	} else if format.SampleRate != b.initRate {
		s = beep.Resample(4, format.SampleRate, b.initRate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}
