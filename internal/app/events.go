package app

import (
	"encoding/json"
	"time"

	"github.com/womat/debug"

	"github.com/oxplot/go-typec-cc"
	"github.com/oxplot/go-typec-cc/internal/mqtt"
)

// event is the payload published for every port event.
type event struct {
	Event string    `json:"event"`
	Time  time.Time `json:"time"`
	status
}

// publishEvent runs on the port goroutine for every event the port raises
// and publishes it together with the port status below the configured
// topic, e.g. /typec/port0/AttachedSink.
func (app *App) publishEvent(e typec.Event, s typec.ConnState) {
	debug.DebugLog.Printf("port event %s in %s", e, s)
	if !app.mqtt.Connected() {
		return
	}

	payload, err := json.Marshal(event{
		Event:  e.String(),
		Time:   time.Now(),
		status: newStatus(app.port.Snapshot(), app.port.TypeCSMControl()),
	})
	if err != nil {
		debug.ErrorLog.Printf("encoding event %s: %v", e, err)
		return
	}
	app.mqtt.Publish(mqtt.Message{
		Topic:    app.config.MQTT.Topic + "/" + e.String(),
		Payload:  payload,
		Retained: e == typec.EventStateChange,
	})
}
