// Package clips stores assembled audio payloads for later inspection.
package clips

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"voxm2m/pkg/audioconv"
)

type Sink interface {
	Store(ctx context.Context, source, sessionID string, clip []byte) error
}

// ObjectName is the relative name a clip is stored under:
// <source>/<session>.<ext>, with the extension guessed from the content.
func ObjectName(source, sessionID string, clip []byte) string {
	return path.Join(sanitize(source), sanitize(sessionID)+"."+ext(clip))
}

func ContentType(clip []byte) string {
	switch audioconv.Sniff(clip) {
	case audioconv.FormatWAV:
		return "audio/wav"
	case audioconv.FormatOgg:
		return "audio/ogg"
	case audioconv.FormatMP3:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

func ext(clip []byte) string {
	if f := audioconv.Sniff(clip); f != audioconv.FormatUnknown {
		return f.String()
	}
	return "bin"
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// FileSink writes clips below a local directory.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, errors.New("clips: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("clips: create %s: %w", dir, err)
	}
	return &FileSink{dir: dir}, nil
}

func (f *FileSink) Store(_ context.Context, source, sessionID string, clip []byte) error {
	p := filepath.Join(f.dir, filepath.FromSlash(ObjectName(source, sessionID, clip)))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("clips: %w", err)
	}
	if err := os.WriteFile(p, clip, 0o644); err != nil {
		return fmt.Errorf("clips: write %s: %w", p, err)
	}
	log.Debug("Clip saved", "path", p, "bytes", len(clip))
	return nil
}

type tee []Sink

// Tee stores every clip in all sinks and joins their errors.
func Tee(sinks ...Sink) Sink {
	var out tee
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (t tee) Store(ctx context.Context, source, sessionID string, clip []byte) error {
	var errs []error
	for _, s := range t {
		if err := s.Store(ctx, source, sessionID, clip); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
