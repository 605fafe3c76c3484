package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"voxm2m/internal/audio"
	"voxm2m/internal/config"
	"voxm2m/pkg/audioconv"
	"voxm2m/pkg/m2m"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	file := cli.StringP("file", "f", "", "Audio file to upload; records from the microphone when empty")
	dur := cli.DurationP("duration", "d", 0, "Fixed recording length; 0 stops on silence")
	baseURL := cli.StringP("url", "u", config.DefaultStoreURL, "Resource store base url")
	origin := cli.StringP("origin", "o", config.DefaultStoreOrigin, "X-M2M-Origin")
	path := cli.StringP("path", "P", strings.TrimSuffix(config.DefaultSourcePath, "?rcn=4"), "Container to write control records to")
	chunk := cli.IntP("chunk", "c", defaultChunkSize, "Payload bytes per chunk record")
	gap := cli.DurationP("gap", "g", 0, "Pause between records")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	godotenv.Load(*envFile)
	if v := os.Getenv("VOX_STORE_URL"); v != "" && !cli.CommandLine.Changed("url") {
		*baseURL = v
	}
	if v := os.Getenv("VOX_STORE_ORIGIN"); v != "" && !cli.CommandLine.Changed("origin") {
		*origin = v
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var clip []byte
	var err error
	if *file != "" {
		clip, err = loadClip(ctx, *file)
	} else {
		clip, err = recordClip(ctx, *dur)
	}
	if err != nil {
		log.Error("Failed to get audio", "err", err)
		os.Exit(1)
	}

	store, err := m2m.NewClient(m2m.Config{BaseURL: *baseURL, Origin: *origin})
	if err != nil {
		log.Error("Failed to init store client", "err", err)
		os.Exit(1)
	}

	session := fmt.Sprint(time.Now().UnixMilli())
	n, err := upload(ctx, store, clip, uploadOpts{
		Path:      *path,
		Session:   session,
		ChunkSize: *chunk,
		Gap:       *gap,
	})
	if err != nil {
		log.Error("Upload failed", "session", session, "written", n, "err", err)
		os.Exit(1)
	}

	log.Info("Uploaded", "session", session, "records", n, "bytes", len(clip))
}

// loadClip returns WAV bytes as is and transcodes anything else.
func loadClip(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if audioconv.Sniff(data) == audioconv.FormatWAV {
		return data, nil
	}

	pcm, err := audioconv.DecodeToPCM16k(ctx, data, audioconv.Options{})
	if err != nil {
		return nil, err
	}
	log.Debug("Transcoded to wav", "from", audioconv.Sniff(data), "samples", len(pcm))
	return audioconv.EncodeWAV16k(pcm)
}

func recordClip(ctx context.Context, dur time.Duration) ([]byte, error) {
	rec := audio.NewRecorder()
	if err := rec.Init(); err != nil {
		return nil, fmt.Errorf("init audio: %w", err)
	}
	defer rec.Close()

	log.Info("Listening...")

	var pcm []float32
	var err error
	if dur > 0 {
		pcm, err = rec.RecordFor(ctx, dur)
	} else {
		pcm, err = rec.RecordAuto(ctx, audio.DefaultVAD())
	}
	if err != nil {
		return nil, err
	}

	log.Info("Recorded", "samples", len(pcm))
	return audioconv.EncodeWAV16k(pcm)
}
