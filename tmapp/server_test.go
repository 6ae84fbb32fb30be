/*
	Timelinize
	Copyright (c) 2013 Matthew Holt

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package tmapp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/timelinize/trackmap/trackmap"
	"go.uber.org/zap"
)

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.Host = DefaultListen
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestServerReport(t *testing.T) {
	app := testApp(t)
	h := app.Handler()

	rr := serve(t, h, http.MethodGet, "/api/report")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any run, got %d", rr.Code)
	}
	var errResp Error
	if err := json.Unmarshal(rr.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("error response is not JSON: %v", err)
	}
	if errResp.HTTPStatus != http.StatusNotFound || errResp.ID == "" || errResp.ErrString == "" {
		t.Errorf("unexpected error response: %+v", errResp)
	}

	if err := saveReport(filepath.Join(app.Config().WorkDir, ReportFile), trackmap.Report{RunID: "abc", FinalPoints: 12}); err != nil {
		t.Fatal(err)
	}
	rr = serve(t, h, http.MethodGet, "/api/report")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var rep trackmap.Report
	if err := json.Unmarshal(rr.Body.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.RunID != "abc" || rep.FinalPoints != 12 {
		t.Errorf("unexpected report: %+v", rep)
	}
}

func TestServerFormats(t *testing.T) {
	rr := serve(t, testApp(t).Handler(), http.MethodGet, "/api/formats")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var formats []formatInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &formats); err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, f := range formats {
		if f.Name == "runkeeper" {
			found = true
		}
	}
	if !found {
		t.Errorf("runkeeper not among formats: %+v", formats)
	}
}

func TestServerFiles(t *testing.T) {
	app := testApp(t)
	workDir := app.Config().WorkDir
	if err := os.MkdirAll(workDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(workDir, "heatmap.kml"), []byte("<kml/>"), 0600); err != nil {
		t.Fatal(err)
	}

	rr := serve(t, app.Handler(), http.MethodGet, "/heatmap.kml")
	if rr.Code != http.StatusOK || rr.Body.String() != "<kml/>" {
		t.Errorf("unexpected response %d: %s", rr.Code, rr.Body)
	}
	if server := rr.Header().Get("Server"); server != "trackmap" {
		t.Errorf("Server header = %q", server)
	}
}

func TestServerRejects(t *testing.T) {
	h := testApp(t).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/formats", nil)
	req.Host = "evil.example.com:12003"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403 for foreign Host, got %d", rr.Code)
	}

	rr = serve(t, h, http.MethodPost, "/api/report")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for POST, got %d", rr.Code)
	}

	rr = serve(t, h, http.MethodHead, "/api/formats")
	if rr.Code != http.StatusOK {
		t.Errorf("expected HEAD to be allowed, got %d", rr.Code)
	}
}

func TestIsLoopback(t *testing.T) {
	for i, tc := range []struct {
		addr   string
		expect bool
	}{
		{"127.0.0.1:12003", true},
		{"localhost:80", true},
		{"[::1]:12003", true},
		{"127.0.0.1", true},
		{"0.0.0.0:12003", false},
		{"192.168.1.5:12003", false},
		{"example.com:80", false},
	} {
		if actual := isLoopback(tc.addr); actual != tc.expect {
			t.Errorf("Test %d: isLoopback(%q) = %t, want %t", i, tc.addr, actual, tc.expect)
		}
	}
}

func TestServerLogStream(t *testing.T) {
	srv := httptest.NewUnstartedServer(nil)
	app := testApp(t)
	app.cfg.Listen = srv.Listener.Addr().String()
	srv.Config.Handler = app.Handler()
	srv.Start()
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+app.cfg.Listen+"/api/logs", nil)
	if err != nil {
		t.Fatalf("dialing log stream: %v", err)
	}
	defer conn.Close()

	// the subscription is added after the handshake completes, so keep
	// logging until something arrives
	done := make(chan struct{})
	defer close(done)
	go func() {
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			case <-time.After(20 * time.Millisecond):
				trackmap.Log.Named("test").Info(fmt.Sprintf("log stream test %d", i), zap.Int("n", i))
			}
		}
	}()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading log message: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(msg, &entry); err != nil {
		t.Fatalf("log message is not JSON: %v: %s", err, msg)
	}
	if m, _ := entry["msg"].(string); m == "" {
		t.Errorf("log entry has no message: %s", msg)
	}
}
