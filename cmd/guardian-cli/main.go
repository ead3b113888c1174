package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const defaultAddr = "http://localhost:7070"

func main() {
	exitFn(run(os.Args[1:], os.Stdout, os.Stderr))
}

var exitFn = os.Exit

// usageError marks failures caused by bad arguments rather than by the gateway.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, err.Error())
		var ue *usageError
		if errors.As(err, &ue) {
			return 2
		}
		return 1
	}
	return 0
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}
