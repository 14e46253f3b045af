// Command-line interface to the voxeld voxel grid server.

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/janelia-flyem/voxeld/server"
	"github.com/janelia-flyem/voxeld/voxeld"

	// Declare the grid formats this voxeld executable will support.
	_ "github.com/janelia-flyem/voxeld/parsers/vasp"
)

// Version of the voxeld software.
const Version = "0.1"

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Address for http communication.
	httpAddress = flag.String("http", "", "")

	// Directory holding the grid files to serve.
	resourceDir = flag.String("resources", "", "")
)

const helpMessage = `
voxeld serves very large voxel grids to visualization clients as binary chunks

Usage: voxeld [options] <command>

      -http       =string   Address for HTTP communication (default %s).
      -resources  =string   Path to the directory of grid files to serve.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Commands:

	version
	serve [/path/to/config.toml]

A TOML configuration file may set the HTTP address and resource directory
plus logging and task retention; flags override the file.
`

var usage = func() {
	fmt.Printf(helpMessage, server.DefaultHTTPAddress)
}

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}
	if *runVerbose {
		voxeld.Verbose = true
		voxeld.SetLogMode(voxeld.DebugMode)
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	switch strings.ToLower(flag.Args()[0]) {
	case "version":
		fmt.Printf("voxeld version %s\n", Version)

	case "serve":
		if flag.NArg() > 1 {
			if err := server.LoadConfig(flag.Args()[1]); err != nil {
				fmt.Printf("Couldn't load configuration: %v\n", err)
				os.Exit(1)
			}
		}
		server.SetHTTPAddress(*httpAddress)
		server.SetResourceDir(*resourceDir)

		go handleSignals()
		if err := server.Serve(); err != nil {
			voxeld.Criticalf("Couldn't serve: %v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Printf("Unknown command: %s\n", flag.Args()[0])
		flag.Usage()
		os.Exit(1)
	}
}

func handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("Received interrupt; shutting down...")
	server.Shutdown()
	os.Exit(0)
}
