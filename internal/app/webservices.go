package app

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"

	"github.com/oxplot/go-typec-cc"
	"github.com/oxplot/go-typec-cc/statelog"
	"github.com/oxplot/go-typec-cc/tcsm"
)

// status is the JSON view of a port snapshot.
type status struct {
	State          string `json:"state"`
	PortType       string `json:"portType"`
	Role           string `json:"role"`
	CCPin          string `json:"ccPin"`
	CC1            string `json:"cc1"`
	CC2            string `json:"cc2"`
	SinkCurrent    string `json:"sinkCurrent"`
	SourceCurrent  string `json:"sourceCurrent"`
	Enabled        bool   `json:"enabled"`
	AlternateModes bool   `json:"alternateModes"`
	Control        string `json:"control"`
}

func newStatus(s tcsm.Snapshot, control uint8) status {
	return status{
		State:          s.State.String(),
		PortType:       s.PortType.String(),
		Role:           s.Role.String(),
		CCPin:          s.CCPin.String(),
		CC1:            s.CC1.String(),
		CC2:            s.CC2.String(),
		SinkCurrent:    s.SinkCurrent.String(),
		SourceCurrent:  s.SourceCurrent.String(),
		Enabled:        s.Enabled,
		AlternateModes: s.AlternateModes,
		Control:        "0x" + strconv.FormatUint(uint64(control), 16),
	}
}

// logEntry is the JSON view of a state log entry.
type logEntry struct {
	State string `json:"state"`
	Time  string `json:"time"`
}

// currentStatus returns the status of the port as seen from its goroutine.
func (app *App) currentStatus() (st status, err error) {
	var snap tcsm.Snapshot
	var control uint8
	err = app.handle.call(func(p *tcsm.Port) {
		snap = p.Snapshot()
		control = p.TypeCSMControl()
	})
	if err != nil {
		return st, err
	}
	return newStatus(snap, control), nil
}

// HandleStatus returns the connection state of the port.
func (app *App) HandleStatus() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request status")

		st, err := app.currentStatus()
		if err != nil {
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		}
		return ctx.JSON(st)
	}
}

// HandleLog returns and removes the state transitions logged since the last
// request.
func (app *App) HandleLog() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request log")

		l := app.port.StateLog()
		buf := make([]statelog.Entry, l.Len())
		n := l.Read(buf)
		out := make([]logEntry, 0, n)
		for _, e := range buf[:n] {
			out = append(out, logEntry{
				State: typec.ConnState(e.State).String(),
				Time:  fmt.Sprintf("%d.%03d", e.S, e.MS),
			})
		}
		return ctx.JSON(fiber.Map{
			"entries": out,
			"dropped": l.Dropped(),
		})
	}
}

// HandleConfig applies the query parameters control (host control byte,
// decimal or 0x prefixed) and alternate (on or off) and returns the
// resulting status.
func (app *App) HandleConfig() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request config")

		if s := ctx.Query("control"); s != "" {
			c, err := strconv.ParseUint(s, 0, 8)
			if err != nil {
				return fiber.NewError(http.StatusBadRequest, "invalid control byte "+strconv.Quote(s))
			}
			if err := app.handle.ConfigurePortType(uint8(c)); err != nil {
				return fiber.NewError(http.StatusInternalServerError, err.Error())
			}
		}

		if s := ctx.Query("alternate"); s != "" {
			var on bool
			switch s {
			case "on", "1", "true":
				on = true
			case "off", "0", "false":
			default:
				return fiber.NewError(http.StatusBadRequest, "invalid alternate "+strconv.Quote(s))
			}
			if err := app.handle.SetAlternateModes(on); err != nil {
				return fiber.NewError(http.StatusInternalServerError, err.Error())
			}
		}

		st, err := app.currentStatus()
		if err != nil {
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		}
		return ctx.JSON(st)
	}
}
