package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(&cli{out: os.Stdout}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
