package app

import (
	"context"
	"io"

	"github.com/womat/debug"

	"github.com/oxplot/go-typec-cc/hostif"
)

// serveHost answers host requests on rw, framed or as console lines
// depending on the configured mode, until ctx is done.
func (app *App) serveHost(ctx context.Context, rw io.ReadWriter) {
	// The readers outlive the passes so that a request split by a read
	// timeout is completed by the next pass.
	fr := hostif.NewFrameReader(rw)
	serve := func() error { return hostif.ServeFrames(ctx, fr, rw, app.handle) }
	if app.config.Serial.Mode == "text" {
		lr := hostif.NewLineReader(rw)
		serve = func() error { return hostif.ServeLines(ctx, lr, rw, app.handle) }
	}
	debug.InfoLog.Printf("serving %s host link on %s", app.config.Serial.Mode, app.config.Serial.Device)

	// A read timeout ends a pass with no error, so keep serving.
	for ctx.Err() == nil {
		if err := serve(); err != nil {
			if ctx.Err() == nil {
				debug.ErrorLog.Printf("host link %s: %v", app.config.Serial.Device, err)
			}
			return
		}
	}
}
