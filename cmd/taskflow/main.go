// Command taskflow runs a synthetic workload through a bounded taskflow
// pipeline and reports what happened.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
