package main

import (
	"github.com/starius/api2"

	launcher "gitlab.com/scpcorp/candy-launcher"
)

func main() {
	api2.GenerateClient(launcher.GetRoutes)
	api2.GenerateOpenApiSpec(&api2.TypesGenConfig{
		OutDir: "./openapi",
		Routes: []interface{}{launcher.GetRoutes},
	})
}
