package main

import "github.com/giantswarm/mcphub/cmd/mcphubd"

// version can be set during build with -ldflags
var version = "dev"

func main() {
	mcphubd.SetVersion(version)
	mcphubd.Execute()
}
