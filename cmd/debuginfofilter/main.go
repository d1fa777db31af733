// Command debuginfofilter runs the ambient process around the filter:
// configuration, logging, metrics, tracing, and the /healthz and
// /debug/cache HTTP endpoints. The iterator pump itself is driven by
// whatever host graph or scheduler embeds this module (spec.md §1,
// "external collaborators") — this binary supplies everything that
// host needs around it, not the pump itself.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/efficios/go-debuginfofilter/internal/app"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "Path to configuration file")
	flag.Parse()

	if configFile == "" {
		if envConfigFile := os.Getenv("DEBUGINFOFILTER_CONFIG_FILE"); envConfigFile != "" {
			configFile = envConfigFile
		} else {
			configFile = "/etc/debuginfofilter/config.yaml"
		}
	}

	fmt.Printf("Using configuration file: %s\n", configFile)

	application, err := app.New(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create application: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}
