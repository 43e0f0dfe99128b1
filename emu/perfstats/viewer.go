/*
 * CTREMU - Runtime statistics viewer
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package perfstats

import (
	"log/slog"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
)

const viewerPath = "/debug/statsview"

var manager *statsview.ViewManager

// Launch runtime stats server on addr, empty addr does nothing.
func LaunchViewer(addr string) {
	if addr == "" || manager != nil {
		return
	}
	viewer.SetConfiguration(viewer.WithAddr(addr))
	manager = statsview.New()
	go func(mgr *statsview.ViewManager) {
		if err := mgr.Start(); err != nil {
			slog.Debug("statsview: stopped", "error", err)
		}
	}(manager)
	slog.Info("stats server available at " + addr + viewerPath)
}

// Stop stats server.
func StopViewer() {
	if manager != nil {
		manager.Stop()
		manager = nil
	}
}
