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
	"os"
	"os/signal"

	"github.com/timelinize/trackmap/trackmap"
)

// TrapSignals creates signal handlers for all applicable signals for
// this system. The first interrupt calls cancel so a run can stop
// gracefully and still write its report; a second one exits the
// process immediately.
func TrapSignals(cancel context.CancelFunc) {
	trapSignalsCrossPlatform(cancel)
	trapSignalsPosix(cancel)
}

func trapSignalsCrossPlatform(cancel context.CancelFunc) {
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)

		for i := 0; true; i++ {
			<-sig

			if i > 0 {
				_ = trackmap.Log.Sync()
				trackmap.Log.Fatal("SIGINT: force quit")
			}

			trackmap.Log.Warn("SIGINT: stopping; interrupt again to force quit")
			cancel()
		}
	}()
}
