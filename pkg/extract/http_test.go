package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

const export2021 = "CAUSABAS,DTOBITO,SEXO\nI219,15012021,1\nC509,20012021,2\ni10 ,03022021,1\n"
const export2022 = "CAUSABAS,DTOBITO,SEXO\nI500,01032022,2\n"

func mirror(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/DOSP2021.csv":
			fmt.Fprint(w, export2021)
		case "/DOSP2022.csv":
			fmt.Fprint(w, export2022)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPChannel_Extract(t *testing.T) {
	var hits atomic.Int32
	server := mirror(t, &hits)

	ch := NewHTTPChannel(server.URL+"/", 0, 5*time.Second, "", nil)
	f, err := ch.Extract(context.Background(), Request{Source: "SIM", UF: "sp", Years: []int{2021, 2022}})
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if f.Len() != 4 {
		t.Fatalf("expected 4 rows, got %d", f.Len())
	}
	if f.Rows[3]["CAUSABAS"] != "I500" {
		t.Errorf("last row = %v", f.Rows[3])
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", hits.Load())
	}
}

func TestHTTPChannel_Cache(t *testing.T) {
	var hits atomic.Int32
	server := mirror(t, &hits)
	dir := t.TempDir()

	ch := NewHTTPChannel(server.URL, 100, 5*time.Second, dir, nil)
	req := Request{Source: "SIM", UF: "SP", Years: []int{2021}}
	for range 2 {
		if _, err := ch.Extract(context.Background(), req); err != nil {
			t.Fatalf("Extract error: %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("expected cached second call, got %d requests", hits.Load())
	}
	if _, err := os.Stat(filepath.Join(dir, "DOSP2021.csv")); err != nil {
		t.Errorf("cache file missing: %v", err)
	}
}

func TestHTTPChannel_StatusClassification(t *testing.T) {
	tests := []struct {
		code      int
		transient bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusBadGateway, true},
		{http.StatusTooManyRequests, true},
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer server.Close()

			ch := NewHTTPChannel(server.URL, 0, 5*time.Second, "", nil)
			_, err := ch.Extract(context.Background(), Request{Source: "SIM", UF: "SP", Years: []int{2021}})
			var se *StatusError
			if !errors.As(err, &se) || se.Code != tt.code {
				t.Fatalf("expected StatusError %d, got %v", tt.code, err)
			}
			if IsTransient(err) != tt.transient {
				t.Errorf("IsTransient = %v, want %v", IsTransient(err), tt.transient)
			}
		})
	}
}

func TestHTTPChannel_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, export2022)
	}))
	defer server.Close()

	ch := NewHTTPChannel(server.URL, 0, 20*time.Millisecond, "", nil)
	_, err := ch.Extract(context.Background(), Request{Source: "SIM", UF: "SP", Years: []int{2022}})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTransient(err) {
		t.Errorf("timeout should be transient, got %v", err)
	}
}

func TestHTTPChannel_CanceledContext(t *testing.T) {
	var hits atomic.Int32
	server := mirror(t, &hits)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := NewHTTPChannel(server.URL, 0, 5*time.Second, "", nil)
	_, err := ch.Extract(ctx, Request{Source: "SIM", UF: "SP", Years: []int{2021}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if IsTransient(err) {
		t.Error("cancellation must not be transient")
	}
}

func TestHTTPChannel_InvalidRequest(t *testing.T) {
	ch := NewHTTPChannel("http://127.0.0.1:1", 0, time.Second, "", nil)
	if _, err := ch.Extract(context.Background(), Request{Source: "SIM", UF: "SAO", Years: []int{2021}}); err == nil {
		t.Error("expected error for invalid uf")
	}
	if _, err := (&HTTPChannel{}).Extract(context.Background(), Request{}); err == nil {
		t.Error("expected error for missing BaseURL")
	}
}

func TestFileChannel(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{"DOSP2021.csv": export2021, "DOSP2022.csv": export2022} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ch := &FileChannel{Path: filepath.Join(dir, "DO{uf}{year}.csv")}
	f, err := ch.Extract(context.Background(), Request{Source: "SIM", UF: "sp", Years: []int{2021, 2022}})
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if f.Len() != 4 {
		t.Errorf("expected 4 rows, got %d", f.Len())
	}

	single := &FileChannel{Path: filepath.Join(dir, "DOSP2022.csv")}
	f, err = single.Extract(context.Background(), Request{Years: []int{2019, 2020}})
	if err != nil || f.Len() != 1 {
		t.Errorf("single file Extract = %v rows, err %v", f.Len(), err)
	}

	_, err = (&FileChannel{Path: filepath.Join(dir, "missing.csv")}).Extract(context.Background(), Request{})
	if err == nil || IsTransient(err) {
		t.Errorf("missing file error = %v, want permanent error", err)
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(Transient(errors.New("reset"))) {
		t.Error("wrapped transient not detected")
	}
	if !IsTransient(fmt.Errorf("tier 1: %w", context.DeadlineExceeded)) {
		t.Error("deadline exceeded not detected")
	}
	if IsTransient(errors.New("bad data")) || IsTransient(nil) {
		t.Error("plain errors must be permanent")
	}
	if Transient(nil) != nil {
		t.Error("Transient(nil) should be nil")
	}
}

func TestParseYears(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"2022", []int{2022}},
		{"2019,2020, 2022", []int{2019, 2020, 2022}},
		{"2019-2021", []int{2019, 2020, 2021}},
	}
	for _, tt := range tests {
		got, err := ParseYears(tt.in)
		if err != nil {
			t.Fatalf("ParseYears(%q) error: %v", tt.in, err)
		}
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("ParseYears(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	for _, bad := range []string{"", "20x1", "2023-2019"} {
		if _, err := ParseYears(bad); err == nil {
			t.Errorf("ParseYears(%q) expected error", bad)
		}
	}
}
