// Package cmd is responsible for the program's command-line interface.
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"duoproxy/internal/proxy"

	"github.com/AdguardTeam/golibs/log"
	goFlags "github.com/jessevdk/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"
)

// VersionString is the version that we'll print to the output.  It is set
// externally at build time.
var VersionString = "undefined"

// Main is the entry point of the program.
func Main() {
	for _, arg := range os.Args {
		if arg == "--version" {
			fmt.Printf("duoproxy version: %s\n", VersionString)
			os.Exit(0)
		}
	}

	options := &Options{}
	parser := goFlags.NewParser(options, goFlags.Default)
	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*goFlags.Error); ok && flagsErr.Type == goFlags.ErrHelp {
			os.Exit(0)
		} else {
			os.Exit(1)
		}
	}

	run(options)
}

// run reads the configuration, sets up logging, and starts the proxy.
func run(options *Options) {
	fc, err := readConfig(options.ConfigPath)
	check(err)

	setupLogging(options, &fc.Logging)

	log.Info("cmd: run duoproxy with the following options:\n%s", options)

	srv, err := proxy.New(toProxyConfig(fc))
	check(err)

	err = srv.Start()
	check(err)

	// Subscribe to the OS events.
	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)
	<-signalChannel

	log.Info("cmd: stopping duoproxy")
	log.OnCloserError(srv, log.INFO)
}

// setupLogging applies the logging configuration.  Console options override
// the configuration file.
func setupLogging(options *Options, lc *loggingConfig) {
	switch {
	case options.Verbose || lc.Level == "debug":
		log.SetLevel(log.DEBUG)
	case lc.Level == "" || lc.Level == "info":
		log.SetLevel(log.INFO)
	case lc.Level == "error":
		log.SetLevel(log.ERROR)
	default:
		log.Fatalf("cmd: unknown log level %q", lc.Level)
	}

	file := lc.File
	if options.LogOutput != "" {
		file = options.LogOutput
	}

	if file != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    lc.MaxSize,
			MaxBackups: lc.MaxBackups,
			MaxAge:     lc.MaxAge,
			Compress:   lc.Compress,
		})
	}
}

// check panics if err is not nil.
func check(err error) {
	if err != nil {
		panic(err)
	}
}
