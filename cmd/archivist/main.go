// Command archivist runs the crawl/archive engine: a worker process that
// consumes crawl jobs off the durable queue, a one-shot schema migrator,
// and a one-shot orphan-reconciliation sweep.
package main

import (
	"fmt"
	"os"

	"github.com/designxdevelop/dxd-webflow-scraper/cmd/archivist/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
