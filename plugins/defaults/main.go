// The user_defaults submit filter plugin. Fills unset job options
// from ~/.subgate_defaults before submission.
package main

import (
	"subgate.dev/cli/internal/infrastructure/procloader"
	"subgate.dev/cli/plugins/defaults/filter"
)

func main() {
	procloader.Serve(filter.New())
}
