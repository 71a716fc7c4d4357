package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "control":
			controlCmd(os.Args[2:])
			return
		case "matches":
			matchesCmd(os.Args[2:])
			return
		case "-h", "-help", "help":
			usage()
			return
		}
	}
	matchesCmd(os.Args[1:])
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  admin [matches] [-url URL]                      list matches on a running server
  admin control [-url URL] -match ID start|pause|resume|stop
  admin db [-data ./data|-db PATH] [-match ID] [-limit N] results|commands|ticks|catalogs`)
}
