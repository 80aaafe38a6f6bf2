// The lua submit filter plugin. Runs the site script named by
// SUBGATE_LUA_SCRIPT (default /etc/subgate/cli_filter.lua) around each
// job submission.
package main

import (
	"fmt"
	"os"

	"subgate.dev/cli/internal/infrastructure/procloader"
	"subgate.dev/cli/plugins/luafilter/filter"
)

const defaultScript = "/etc/subgate/cli_filter.lua"

func main() {
	script := os.Getenv("SUBGATE_LUA_SCRIPT")
	if script == "" {
		script = defaultScript
	}

	f, err := filter.New(script)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	procloader.Serve(f)
}
