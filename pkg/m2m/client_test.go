package m2m

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClientValidation(t *testing.T) {
	for _, base := range []string{"", "in-cse/in-name", "://bad"} {
		if _, err := NewClient(Config{BaseURL: base}); err == nil {
			t.Errorf("NewClient(%q) succeeded, want error", base)
		}
	}

	c, err := NewClient(Config{BaseURL: "http://127.0.0.1:8080"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", c.timeout, DefaultTimeout)
	}
}

func TestResolve(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://10.0.0.2:8080"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		in, want string
	}{
		{"/~/in-cse/in-name/led", "http://10.0.0.2:8080/~/in-cse/in-name/led"},
		{"/~/in-cse/in-name/voice_command/audio_upload?rcn=4", "http://10.0.0.2:8080/~/in-cse/in-name/voice_command/audio_upload?rcn=4"},
		{"https://other:9443/~/x", "https://other:9443/~/x"},
	}
	for _, tt := range tests {
		if got := c.Resolve(tt.in); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if got := r.Header.Get("X-M2M-Origin"); got != "admin:admin" {
			t.Errorf("origin = %q, want admin:admin", got)
		}
		if got := r.URL.Query().Get("rcn"); got != "4" {
			t.Errorf("rcn = %q, want 4", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"m2m:cnt":{"cs":12,"m2m:cin":[{"ri":"a","con":"AUDIO_END:1"}]}}`)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Origin: "admin:admin"})
	if err != nil {
		t.Fatal(err)
	}

	raw, err := c.Fetch(context.Background(), "/~/in-cse/in-name/voice_command/audio_upload?rcn=4")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	cnt := raw.(map[string]any)["m2m:cnt"].(map[string]any)
	if _, ok := cnt["cs"].(json.Number); !ok {
		t.Errorf("cs decoded as %T, want json.Number", cnt["cs"])
	}
	if recs := Extract(raw); len(recs) != 1 || recs[0].Content != "AUDIO_END:1" {
		t.Errorf("Extract = %+v", recs)
	}
}

func TestFetchEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL})
	raw, err := c.Fetch(context.Background(), "/x")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if raw != nil {
		t.Errorf("raw = %v, want nil", raw)
	}
}

func TestFetchUndecodableBody(t *testing.T) {
	for _, body := range []string{"<html>", `{"m2m:cin":`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, body)
		}))

		c, _ := NewClient(Config{BaseURL: srv.URL})
		raw, err := c.Fetch(context.Background(), "/x")
		srv.Close()

		if err != nil {
			t.Errorf("Fetch(%q) error = %v, want nil", body, err)
		}
		if raw != nil {
			t.Errorf("Fetch(%q) = %v, want nil", body, raw)
		}
		if fp := Fingerprint(raw); fp != EmptyFingerprint {
			t.Errorf("Fingerprint = %q, want %q", fp, EmptyFingerprint)
		}
	}
}

func TestFetchErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "not found", http.StatusNotFound)
		}))
		defer srv.Close()

		c, _ := NewClient(Config{BaseURL: srv.URL})
		_, err := c.Fetch(context.Background(), "/missing")

		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("err = %v, want *StatusError", err)
		}
		if se.Code != http.StatusNotFound {
			t.Errorf("code = %d, want 404", se.Code)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		c, _ := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
		start := time.Now()
		if _, err := c.Fetch(context.Background(), "/slow"); err == nil {
			t.Fatal("expected timeout error")
		}
		if time.Since(start) > 5*time.Second {
			t.Error("fetch was not bounded by the timeout")
		}
	})
}

func TestWrite(t *testing.T) {
	var gotBody map[string]map[string]string
	var gotType, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL, Origin: "admin:admin"})
	if err := c.Write(context.Background(), "/~/in-cse/in-name/fan", "2"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if gotType != "application/json;ty=4" {
		t.Errorf("content type = %q", gotType)
	}
	if gotPath != "/~/in-cse/in-name/fan" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["m2m:cin"]["con"] != "2" {
		t.Errorf("body = %v, want con=2", gotBody)
	}
}

func TestWriteRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL})
	err := c.Write(context.Background(), "/~/in-cse/in-name/led", "ON")

	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Fatalf("err = %v, want 403 StatusError", err)
	}
}
