package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	body := "api:\n  base_url: " + baseURL + "\n" +
		"auth:\n  source: static\n  token: secret\n" +
		"cache:\n  grace_period: 1s\n" +
		"log:\n  backend: slog\n  level: error\n"
	path := filepath.Join(t.TempDir(), "console.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func backend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/admin/ads":
			_, _ = io.WriteString(w, `{"data":[{"id":1,"image":"a.png","type":"user","extensions":"png"}]}`)
		case r.Method == http.MethodPost && r.URL.Path == "/admin/ads/delete/1":
			_, _ = io.WriteString(w, `{"message":"deleted"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message":"not found"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	if code := run(testContext(t), []string{"-version"}, &out, io.Discard); code != 0 {
		t.Fatalf("exit %d", code)
	}
	if got := out.String(); got != "consolecache dev\n" {
		t.Fatalf("version output %q", got)
	}
}

func TestValidate(t *testing.T) {
	var out bytes.Buffer
	path := writeConfig(t, "http://127.0.0.1:1/api")
	if code := run(testContext(t), []string{"-config", path, "-validate"}, &out, io.Discard); code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(out.String(), "valid") {
		t.Fatalf("output %q", out.String())
	}
}

func TestMissingConfigFails(t *testing.T) {
	var errOut bytes.Buffer
	code := run(testContext(t), []string{"-config", filepath.Join(t.TempDir(), "nope.yaml")}, io.Discard, &errOut)
	if code != 1 {
		t.Fatalf("exit %d, want 1", code)
	}
	if !strings.Contains(errOut.String(), "Failed to load configuration") {
		t.Fatalf("stderr %q", errOut.String())
	}
}

func TestRoutes(t *testing.T) {
	var out bytes.Buffer
	path := writeConfig(t, "http://127.0.0.1:1/api")
	if code := run(testContext(t), []string{"-config", path, "routes"}, &out, io.Discard); code != 0 {
		t.Fatalf("exit %d", code)
	}
	for _, want := range []string{"/admin/ads/delete/{id}", "/admin/vendor/list"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("routes output lacks %q:\n%s", want, out.String())
		}
	}
}

func TestWatchOnce(t *testing.T) {
	srv := backend(t)
	var out bytes.Buffer
	path := writeConfig(t, srv.URL)
	if code := run(testContext(t), []string{"-config", path, "-once", "watch", "ads"}, &out, io.Discard); code != 0 {
		t.Fatalf("exit %d", code)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	last := lines[len(lines)-1]
	if !strings.Contains(last, `"status":"success"`) || !strings.Contains(last, `"image":"a.png"`) {
		t.Fatalf("last snapshot %s", last)
	}
}

func TestMutateDelete(t *testing.T) {
	srv := backend(t)
	var out bytes.Buffer
	path := writeConfig(t, srv.URL)
	if code := run(testContext(t), []string{"-config", path, "mutate", "ads", "delete", "id=1"}, &out, io.Discard); code != 0 {
		t.Fatalf("exit %d", code)
	}
	if got := out.String(); got != "200 deleted\n" {
		t.Fatalf("output %q", got)
	}
}

func TestMutateServerErrorExitsNonZero(t *testing.T) {
	srv := backend(t)
	var errOut bytes.Buffer
	path := writeConfig(t, srv.URL)
	code := run(testContext(t), []string{"-config", path, "mutate", "ads", "delete", "id=9"}, io.Discard, &errOut)
	if code != 1 {
		t.Fatalf("exit %d, want 1", code)
	}
}

func TestParseArgs(t *testing.T) {
	args := parseArgs([]string{"id=7", "q=abc", "flag"})
	if args["id"] != int64(7) || args["q"] != "abc" || args["flag"] != "" {
		t.Fatalf("args %v", args)
	}
	if parseArgs(nil) != nil {
		t.Fatal("empty pairs should give nil args")
	}
}
