// Command kilnctl controls a running kilnd and manages stored programs.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(newApp(os.Stdout)).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kilnctl:", err)
		os.Exit(1)
	}
}
