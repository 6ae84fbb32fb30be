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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"github.com/gorilla/websocket"
	"github.com/timelinize/trackmap/trackmap"
	"go.uber.org/zap"
)

const (
	apiBasePath       = "/api/"
	lowestErrorStatus = 400
)

type server struct {
	app *App
	log *zap.Logger
	mux *http.ServeMux

	// prevent DNS rebinding against the unauthenticated listener
	allowedHosts []string
}

// Handler returns the HTTP handler of the app's server: the work
// directory's files (maps, point files, report) at /, plus the API.
func (a *App) Handler() http.Handler {
	s := &server{
		app: a,
		log: trackmap.Log.Named("http"),
		mux: http.NewServeMux(),
	}
	s.fillAllowedHosts(a.cfg.Listen)

	addRoute := func(uriPath, method string, h handlerFunc) {
		var next handler = h
		next = s.enforceMethod(method, next)
		next = s.enforceHost(next)
		s.mux.Handle(uriPath, wrapErrorHandler(next))
	}

	files := http.FileServer(http.Dir(a.cfg.WorkDir))
	addRoute("/", http.MethodGet, func(w http.ResponseWriter, r *http.Request) error {
		files.ServeHTTP(w, r)
		return nil
	})
	addRoute(apiBasePath+"report", http.MethodGet, s.handleReport)
	addRoute(apiBasePath+"formats", http.MethodGet, s.handleFormats)
	addRoute(apiBasePath+"logs", http.MethodGet, s.handleLogs)

	return s
}

// Serve listens on the configured address and serves until ctx is
// canceled, then shuts the server down gracefully.
func (a *App) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Listen)
	if err != nil {
		return fmt.Errorf("opening listener: %w", err)
	}

	httpServer := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1024 * 512,
	}

	a.log.Info("started server",
		zap.String("listener", ln.Addr().String()),
		zap.String("work_dir", a.cfg.WorkDir))

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	const shutdownTimeout = 5 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		return err
	}
	a.log.Info("stopped server", zap.String("listener", ln.Addr().String()))
	return nil
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	rec := caddyhttp.NewResponseRecorder(w, nil, nil)

	w.Header().Set("Server", "trackmap")

	defer func() {
		logFn := s.log.Info
		if rec.Status() >= lowestErrorStatus {
			logFn = s.log.Error
		}

		// the log message is intentionally specific to bust log sampling here
		logFn(r.Method+" "+r.RequestURI,
			zap.String("method", r.Method),
			zap.String("uri", r.RequestURI),
			zap.Int("status", rec.Status()),
			zap.Int("size", rec.Size()),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	s.mux.ServeHTTP(rec, r)
}

func (s *server) fillAllowedHosts(listenAddr string) {
	_, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		s.allowedHosts = []string{listenAddr}
		return
	}
	s.allowedHosts = []string{
		net.JoinHostPort("localhost", port),
		net.JoinHostPort("127.0.0.1", port),
		net.JoinHostPort("::1", port),
	}
	if !isLoopback(listenAddr) {
		s.allowedHosts = append(s.allowedHosts, listenAddr)
	}
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr // assume no port
	}
	if host == "localhost" {
		return true
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return ip.IsLoopback()
	}
	return false
}

// enforceHost only calls next if the request's Host header is one we
// listen on. This mitigates DNS rebinding attacks.
func (s *server) enforceHost(next handler) handler {
	return handlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		if !slices.Contains(s.allowedHosts, r.Host) {
			return Error{
				Err:        fmt.Errorf("unrecognized Host header value '%s'", r.Host),
				HTTPStatus: http.StatusForbidden,
				Log:        "Host not allowed",
				Message:    "This endpoint can only be accessed via a trusted host.",
			}
		}
		return next.ServeHTTP(w, r)
	})
}

// enforceMethod rejects requests whose method is not method; HEAD is
// allowed where GET is.
func (s *server) enforceMethod(method string, next handler) handler {
	return handlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		if r.Method != method && !(method == http.MethodGet && r.Method == http.MethodHead) {
			return Error{
				Err:        fmt.Errorf("method '%s' not allowed", r.Method),
				HTTPStatus: http.StatusMethodNotAllowed,
			}
		}
		return next.ServeHTTP(w, r)
	})
}

func (s *server) handleReport(w http.ResponseWriter, _ *http.Request) error {
	rep, err := s.app.LastReport()
	if errors.Is(err, os.ErrNotExist) {
		return Error{
			Err:        err,
			HTTPStatus: http.StatusNotFound,
			Log:        "no run report",
			Message:    "Nothing has been run yet.",
		}
	}
	return jsonResponse(w, rep, err)
}

type formatInfo struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

func (s *server) handleFormats(w http.ResponseWriter, _ *http.Request) error {
	all := trackmap.AllFormats()
	infos := make([]formatInfo, len(all))
	for i, f := range all {
		infos[i] = formatInfo{Name: f.Name, Title: f.Title, Description: f.Description}
	}
	return jsonResponse(w, infos, nil)
}

func (s *server) handleLogs(w http.ResponseWriter, r *http.Request) error {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return Error{
			Err:        err,
			HTTPStatus: http.StatusBadRequest,
			Log:        "upgrading request to websocket",
			Message:    "This endpoint expects a WebSocket client.",
		}
	}
	defer conn.Close()

	// while the client is connected, broadcast the logs to it
	trackmap.AddLogConn(conn)
	defer trackmap.RemoveLogConn(conn)

	// simply keep the connection open until the client closes it
	for {
		_, _, err = conn.ReadMessage()
		if err != nil {
			break
		}
	}

	return nil
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || strings.HasSuffix(origin, "://"+r.Host)
	},
}

type handler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request) error
}

// handlerFunc is like http.HandlerFunc, except these handlers return an error.
type handlerFunc func(http.ResponseWriter, *http.Request) error

func (h handlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) error {
	return h(w, r)
}

// wrapErrorHandler turns a handler that returns an error into a
// standard http.Handler by handling any returned error.
func wrapErrorHandler(h handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.ServeHTTP(w, r); err != nil {
			handleError(w, r, err)
		}
	})
}

func jsonResponse(w http.ResponseWriter, v any, err error) error {
	if err != nil {
		return err
	}
	respBytes, err := json.Marshal(v)
	if err != nil {
		return Error{
			Err:        err,
			HTTPStatus: http.StatusInternalServerError,
			Log:        "Encoding JSON response",
			Message:    "Our program has a bug. It wasn't able to respond with data in JSON format.",
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(respBytes)))
	_, _ = w.Write(respBytes)
	return nil
}
