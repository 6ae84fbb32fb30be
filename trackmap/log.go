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

package trackmap

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the main process log. All named logs should be derivatives of
// this logger.
var Log = newLogger(zap.DebugLevel)

// SetConsoleLevel replaces Log with a logger whose console output is
// filtered at lvl. Loggers derived from the old Log are not affected,
// so call this before deriving any.
func SetConsoleLevel(lvl zapcore.Level) {
	Log = newLogger(lvl)
}

// newLogger returns a logger that writes to websocketLogOutputs and the
// console, with JSON and console encoders, respectively.
func newLogger(consoleLevel zapcore.Level) *zap.Logger {
	websocketsOut := zapcore.Lock(zapcore.AddSync(websocketLogOutputs))
	consoleOut := zapcore.Lock(os.Stderr)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format("2006/01/02 15:04:05.000"))
	}
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(encCfg)
	jsonEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, consoleOut, consoleLevel),
		zapcore.NewCore(jsonEncoder, websocketsOut, zap.InfoLevel), // sent to /api/logs subscribers
	)

	return newSampledLogger(core)
}

// newSampledLogger samples entries written to core, except those of
// progress loggers.
func newSampledLogger(core zapcore.Core) *zap.Logger {
	// a few thousand tracks can fail the same way; avoid a firehose
	const firstNMsgs, everyNthMsg = 10, 100
	sampled := zapcore.NewSamplerWithOptions(core, time.Second, firstNMsgs, everyNthMsg)

	return zap.New(&unsampledProgressCore{Core: sampled, unsampled: core})
}

// ProgressLoggerName is the name of the loggers that report filter and
// ingest progress, e.g. Log.Named("run").Named(ProgressLoggerName).
// Their entries are never sampled, otherwise watchers of the log
// stream would see progress stall.
const ProgressLoggerName = "progress"

func isProgressLogger(name string) bool {
	return name == ProgressLoggerName || strings.HasSuffix(name, "."+ProgressLoggerName)
}

// unsampledProgressCore is a sampling core that sends entries of
// progress loggers straight to the unsampled core instead.
type unsampledProgressCore struct {
	zapcore.Core // sampled
	unsampled    zapcore.Core
}

func (c *unsampledProgressCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if isProgressLogger(ent.LoggerName) {
		return c.unsampled.Check(ent, ce)
	}
	return c.Core.Check(ent, ce)
}

func (c *unsampledProgressCore) With(fields []zapcore.Field) zapcore.Core {
	return &unsampledProgressCore{
		Core:      c.Core.With(fields),
		unsampled: c.unsampled.With(fields),
	}
}

// multiConnWriter is a best-effort multi-writer over websocket
// connections that can be added and removed at any time. An error
// writing to one conn does not stop writes to the others; conns found
// to be closed are removed from the pool.
type multiConnWriter struct {
	conns   []*websocket.Conn
	connsMu sync.RWMutex
}

func (mw *multiConnWriter) Write(p []byte) (n int, err error) {
	var closed []*websocket.Conn
	mw.connsMu.RLock()
	for _, w := range mw.conns {
		err = w.WriteMessage(websocket.TextMessage, p)
		// the handler that added this conn should remove it when it
		// closes, but we may find out first
		if errors.Is(err, websocket.ErrCloseSent) {
			closed = append(closed, w)
		}
	}
	mw.connsMu.RUnlock()
	for _, w := range closed {
		mw.RemoveConn(w)
	}
	return len(p), err
}

// AddConn subscribes conn to writes.
func (mw *multiConnWriter) AddConn(conn *websocket.Conn) {
	mw.connsMu.Lock()
	mw.conns = append(mw.conns, conn)
	mw.connsMu.Unlock()
}

// RemoveConn unsubscribes conn from writes, if it is subscribed.
func (mw *multiConnWriter) RemoveConn(conn *websocket.Conn) {
	mw.connsMu.Lock()
	for i, mww := range mw.conns {
		if mww == conn {
			mw.conns = append(mw.conns[:i], mw.conns[i+1:]...)
			break
		}
	}
	mw.connsMu.Unlock()
}

// Len returns the number of subscribed conns.
func (mw *multiConnWriter) Len() int {
	mw.connsMu.RLock()
	defer mw.connsMu.RUnlock()
	return len(mw.conns)
}

var websocketLogOutputs = new(multiConnWriter)

// AddLogConn subscribes conn to the log output. When the conn is
// closed, it should be removed with RemoveLogConn.
func AddLogConn(conn *websocket.Conn) {
	websocketLogOutputs.AddConn(conn)
}

// RemoveLogConn removes conn from receiving logs. It is idempotent.
func RemoveLogConn(conn *websocket.Conn) {
	websocketLogOutputs.RemoveConn(conn)
}
