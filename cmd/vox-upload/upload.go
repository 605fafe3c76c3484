package main

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"voxm2m/pkg/framing"
)

const (
	wavHeaderLen     = 44
	defaultChunkSize = 1024
)

type writer interface {
	Write(ctx context.Context, path, content string) error
}

type uploadOpts struct {
	Path      string
	Session   string
	ChunkSize int
	// Gap is the pause between records so each gets a distinct creation
	// time on stores with coarse timestamps.
	Gap time.Duration
}

// upload frames clip and writes every control record to path in order.
func upload(ctx context.Context, w writer, clip []byte, opts uploadOpts) (int, error) {
	if opts.Session == "" {
		opts.Session = fmt.Sprint(time.Now().UnixMilli())
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}

	msgs, err := framing.Split(opts.Session, clip, min(wavHeaderLen, len(clip)-1), opts.ChunkSize)
	if err != nil {
		return 0, err
	}

	for i, m := range msgs {
		if i > 0 && opts.Gap > 0 {
			select {
			case <-ctx.Done():
				return i, ctx.Err()
			case <-time.After(opts.Gap):
			}
		}
		if err := w.Write(ctx, opts.Path, m.String()); err != nil {
			return i, fmt.Errorf("write %s record %d: %w", m.Kind, i, err)
		}
		log.Debug("Uploaded record", "kind", m.Kind, "session", m.Session, "index", i)
	}

	return len(msgs), nil
}
