package audio

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

var clip = []byte("RIFF\x00\x00\x00\x00WAVEfmt ")

func TestInline_Save(t *testing.T) {
	t.Parallel()

	got, err := Inline{}.Save(context.Background(), clip)
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "" {
		t.Errorf("URL = %q, want empty", got.URL)
	}
	dec, err := base64.StdEncoding.DecodeString(got.Base64)
	if err != nil || string(dec) != string(clip) {
		t.Errorf("base64 round trip failed: %v", err)
	}
}

func TestLocal_SaveAndServe(t *testing.T) {
	t.Parallel()

	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.Save(context.Background(), clip)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got.URL, URLPrefix) || !strings.HasSuffix(got.URL, ".wav") {
		t.Fatalf("URL = %q", got.URL)
	}

	mux := http.NewServeMux()
	mux.Handle(URLPrefix, l.Handler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + got.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != string(clip) {
		t.Errorf("status %d, body %q", resp.StatusCode, body)
	}

	second, err := l.Save(context.Background(), clip)
	if err != nil {
		t.Fatal(err)
	}
	if second.URL == got.URL {
		t.Error("each clip should get a unique name")
	}
}

func TestMinio_PresignOffline(t *testing.T) {
	t.Parallel()

	m, err := NewMinio(MinioConfig{
		Endpoint:  "minio.example.com:9000",
		AccessKey: "id",
		SecretKey: "secret",
		Bucket:    "junu-audio",
		Region:    "us-east-1",
		URLExpiry: 15 * time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}

	raw, err := m.presign(context.Background(), "2026/01/02/x.wav")
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "minio.example.com:9000" || !strings.HasSuffix(u.Path, "/junu-audio/2026/01/02/x.wav") {
		t.Errorf("unexpected URL %s", raw)
	}
	if got := u.Query().Get("X-Amz-Expires"); got != "900" {
		t.Errorf("X-Amz-Expires = %q, want 900", got)
	}
}

func TestNew_Backends(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := New(ctx, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(Inline); !ok {
		t.Errorf("default store: got %T, want Inline", s)
	}

	s, err = New(ctx, Config{Backend: BackendLocal, Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*Local); !ok {
		t.Errorf("local store: got %T", s)
	}

	if _, err := New(ctx, Config{Backend: "s3"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := New(ctx, Config{Backend: BackendMinio}); err == nil {
		t.Error("expected error for missing minio settings")
	}
}
