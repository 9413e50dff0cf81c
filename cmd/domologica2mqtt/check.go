package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/daemonp/domologica2mqtt/internal/config"
	"github.com/daemonp/domologica2mqtt/internal/domologica"
	"github.com/daemonp/domologica2mqtt/internal/gateway"
	"github.com/daemonp/domologica2mqtt/internal/homeassistant"
	"github.com/daemonp/domologica2mqtt/internal/types"
)

// runCheck polls once and prints every element with its kind and name.
func runCheck(client *domologica.Client, gw *gateway.Gateway, cfg *config.Config) int {
	defer gw.Stop()

	fmt.Printf("Testing connection to %s\n", client.BaseURL())

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.Domologica.TimeoutDuration())
	defer cancel()

	if err := gw.Refresh(ctx); err != nil {
		fmt.Printf("Connection test failed: %v\n", err)
		return 1
	}

	world := gw.Data()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ELEMENT\tKIND\tNAME\tSTATUSES")
	for _, id := range world.IDs() {
		var meta *types.ElementMetadata
		if m, ok := gw.Metadata(id); ok {
			meta = &m
		}
		name := homeassistant.Name(id, cfg.Domologica.Aliases, meta, world[id])
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", id, gw.Kind(id), name, len(world[id]))
	}
	w.Flush()

	fmt.Printf("Connection test passed: %d elements\n", len(world))
	return 0
}
