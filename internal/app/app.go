package app

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/tarm/serial"
	"github.com/womat/debug"
	"periph.io/x/conn/v3/i2c"

	"github.com/oxplot/go-typec-cc/internal/app/config"
	"github.com/oxplot/go-typec-cc/internal/app/platform"
	"github.com/oxplot/go-typec-cc/internal/mqtt"
	"github.com/oxplot/go-typec-cc/tcpcdriver"
	"github.com/oxplot/go-typec-cc/tcpcdriver/fusb302"
	"github.com/oxplot/go-typec-cc/tcsm"
)

// App is where the application is wired up.
type App struct {
	// web is the fiber web framework instance
	web *fiber.App

	// config is the application configuration
	config *config.Config

	// urlParsed contains the parsed Config.Url parameter
	urlParsed *url.URL

	// mqtt is the handler to the mqtt broker
	mqtt *mqtt.Handler

	// bus is the I2C bus the FUSB302 sits on
	bus i2c.BusCloser

	// platform drives the VBUS switches and watches the interrupt line
	platform platform.Platform

	// port is the connection state machine, owned by the goroutine in Run
	port *tcsm.Port
	// irqPort is the port interrupts go to once it exists
	irqPort atomic.Pointer[tcsm.Port]
	// handle is how other goroutines reach port
	handle *portHandle

	// serial is the host link, nil if none is configured
	serial *serial.Port

	cancel context.CancelFunc
	// done is closed when the port goroutine returns
	done chan struct{}
}

// New checks the Web server URL and initialize the main app structure
func New(config *config.Config) (*App, error) {
	u, err := url.Parse(config.Webserver.URL)
	if err != nil {
		debug.ErrorLog.Printf("Error parsing url %q: %s", config.Webserver.URL, err.Error())
		return &App{}, err
	}

	return &App{
		config:    config,
		urlParsed: u,

		web:  fiber.New(fiber.Config{DisableStartupMessage: true}),
		mqtt: mqtt.New(),
		done: make(chan struct{}),
	}, nil
}

// Run opens the hardware and starts the application goroutines.
func (app *App) Run() error {
	if err := app.init(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	go app.mqtt.Service()
	go app.runWebServer()
	go app.runPort(ctx)
	if app.serial != nil {
		go app.serveHost(ctx, app.serial)
	}

	return nil
}

// init initializes the application.
func (app *App) init() (err error) {
	mpn, err := fusb302.ParseMPN(app.config.I2C.MPN)
	if err != nil {
		return err
	}

	if app.bus, err = openI2C(app.config.I2C.Bus, app.config.I2C.SpeedHz); err != nil {
		debug.ErrorLog.Printf("can't open i2c bus %s: %v", app.config.I2C.Bus, err)
		return err
	}

	dev := fusb302.New(app.bus, mpn)
	id, err := dev.DeviceID()
	if err != nil {
		debug.ErrorLog.Printf("can't read fusb302 device id: %v", err)
		return err
	}
	debug.InfoLog.Printf("found fusb302 device id 0x%02x on bus %s", id, app.bus)

	if app.platform, err = openPlatform(app.config.GPIO, app.interrupt); err != nil {
		debug.ErrorLog.Printf("can't open gpio: %v", err)
		return err
	}

	if err = app.attach(dev, app.platform); err != nil {
		debug.ErrorLog.Printf("can't start port: %v", err)
		return err
	}

	if app.config.Serial.Device != "" {
		app.serial, err = serial.OpenPort(&serial.Config{
			Name:        app.config.Serial.Device,
			Baud:        app.config.Serial.Baud,
			ReadTimeout: app.config.Serial.ReadTimeout,
		})
		if err != nil {
			debug.ErrorLog.Printf("can't open serial port %s: %v", app.config.Serial.Device, err)
			return err
		}
	}

	if err = app.mqtt.Connect(app.config.MQTT.Connection, MODULE); err != nil {
		debug.ErrorLog.Printf("can't open mqtt broker %v", err)
		return err
	}

	return nil
}

// attach creates the port on chip and registers the web routes. The port
// isn't running until runPort is called.
func (app *App) attach(chip tcsm.Chip, p tcpcdriver.Platform) error {
	app.port = tcsm.New(chip, p, tcsm.Config{
		Control:            app.config.Port.Control,
		AlternateModes:     app.config.Port.AlternateModes,
		InterruptTriggered: app.config.Port.InterruptTriggered,
		VBus:               app.config.Port.VBus,
	})
	app.port.SetEventHandler(tcsm.EventHandlerFunc(app.publishEvent))
	if err := app.port.Init(); err != nil {
		return err
	}
	app.handle = &portHandle{port: app.port}
	app.irqPort.Store(app.port)

	// initDefaultRoutes should be always called last because it may access
	// app.handle which must be initialized before
	app.initDefaultRoutes()
	return nil
}

// interrupt is called by the platform on FUSB302 interrupts.
func (app *App) interrupt() {
	if p := app.irqPort.Load(); p != nil {
		p.Interrupt()
	}
}

func (app *App) runPort(ctx context.Context) {
	defer close(app.done)
	if err := app.port.Run(ctx); err != nil && ctx.Err() == nil {
		debug.ErrorLog.Printf("port stopped: %v", err)
	}
}

// Close stops the port and releases the hardware.
func (app *App) Close() error {
	if app.cancel != nil {
		app.cancel()
		<-app.done
	}
	if app.mqtt != nil {
		_ = app.mqtt.Disconnect()
	}
	if app.web != nil {
		_ = app.web.Shutdown()
	}
	if app.serial != nil {
		_ = app.serial.Close()
	}
	if app.platform != nil {
		_ = app.platform.Close()
	}
	if app.bus != nil {
		_ = app.bus.Close()
	}
	return nil
}

func openPlatform(c config.GPIOConfig, irq func()) (platform.Platform, error) {
	l := platform.Lines{Interrupt: c.Interrupt, VBus5V: c.VBus5V, VBusLevel1: c.VBusLevel1}
	switch c.Backend {
	case "gpiod":
		p, err := platform.OpenGPIOD(c.Chip, l, irq)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "gpiomem":
		p, err := platform.OpenGPIOMem(l, irq)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "none":
		return platform.None(), nil
	}
	return nil, fmt.Errorf("unknown gpio backend %q", c.Backend)
}
