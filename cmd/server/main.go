package main

import (
	_ "github.com/eleven-am/liveness-backend/docs"
	"github.com/eleven-am/liveness-backend/internal/bootstrap"
)

// @title           Liveness API
// @version         1.0
// @description     Face liveness verification over WebRTC and websockets
// @BasePath        /

// @securityDefinitions.apikey APIKeyAuth
// @in header
// @name X-API-Key

func main() {
	bootstrap.Run()
}
