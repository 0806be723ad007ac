package main

import (
	"fmt"
	"log"
	"os"

	"swiftkyc-client/internal/cli"
	"swiftkyc-client/internal/daemon"

	"github.com/kardianos/service"
)

func main() {
	cfgPath := cli.ConfigPathFromArgs(os.Args[1:])

	prg := &daemon.Daemon{}
	svcConfig := &service.Config{
		Name:        "swiftkyc-sandbox",
		DisplayName: "SwiftKYC Sandbox",
		Description: "Local stand-in for the SwiftKYC verification service.",
		Arguments:   []string{"sandbox", "run", "--config", cfgPath},
		Option: service.KeyValue{
			"UserService": true,
		},
	}

	s, err := service.New(prg, svcConfig)
	if err != nil {
		log.Fatal(err)
	}

	errs := make(chan error, 5)
	sysLogger, err := s.Logger(errs)
	if err != nil {
		log.Fatal(err)
	}
	go func() {
		for err := range errs {
			if err != nil {
				log.Print(err)
			}
		}
	}()

	rootCmd := cli.NewRootCmd(s, prg, sysLogger, cfgPath)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
