package main

import (
	"flag"
	"os"

	"quicknotes/internal/cli"

	"github.com/golang/glog"
)

func main() {
	// glog's flags are parsed by cobra; mark the Go flag set parsed so glog
	// does not complain about logging before flag.Parse.
	flag.CommandLine.Parse(nil)

	err := cli.NewRootCommand().Execute()
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
