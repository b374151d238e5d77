package app

// initDefaultRoutes initializes the applications routes.
func (app *App) initDefaultRoutes() {
	api := app.web.Group("/")
	if app.config.Webserver.Webservices["version"] {
		api.Get("/version", app.HandleVersion())
	}
	if app.config.Webserver.Webservices["health"] {
		api.Get("/health", app.HandleHealth())
	}
	if app.config.Webserver.Webservices["status"] {
		api.Get("/status", app.HandleStatus())
	}
	if app.config.Webserver.Webservices["log"] {
		api.Get("/log", app.HandleLog())
	}
	if app.config.Webserver.Webservices["config"] {
		api.Post("/config", app.HandleConfig())
	}
}
