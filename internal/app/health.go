package app

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// HandleHealth returns data about the health of myself and whether the port
// still answers.
// output example:
//
//	{"NumGoroutines":9,"NumCPU":4,"HeapAllocatedBytes":1232256,"HeapAllocatedMB":1,
//	 "SysMemoryBytes":12290312,"SysMemoryMB":11,"Version":"1.0.3+20261015","ProgLang":"go1.24.0",
//	 "HostName":"pi","Time":"2026-10-15T10:00:00Z","PortResponding":true}
func (app *App) HandleHealth() fiber.Handler {
	bToMb := func(b uint64) uint64 {
		return b / 1024 / 1024
	}

	host, _ := os.Hostname()

	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request health")

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		hab := m.Alloc
		smb := m.Sys

		_, err := app.handle.Snapshot()

		healthData := struct {
			NumGoroutines      int
			NumCPU             int
			HeapAllocatedBytes uint64
			HeapAllocatedMB    uint64
			SysMemoryBytes     uint64
			SysMemoryMB        uint64
			Version            string
			ProgLang           string
			HostName           string
			Time               string
			PortResponding     bool
		}{
			NumGoroutines:      runtime.NumGoroutine(),
			NumCPU:             runtime.NumCPU(),
			HeapAllocatedBytes: hab,
			HeapAllocatedMB:    bToMb(hab),
			SysMemoryBytes:     smb,
			SysMemoryMB:        bToMb(smb),
			ProgLang:           runtime.Version(),
			Version:            VERSION,
			HostName:           host,
			Time:               time.Now().Format(time.RFC3339),
			PortResponding:     err == nil,
		}
		ctx.Status(http.StatusOK)
		return ctx.JSON(healthData)
	}
}
