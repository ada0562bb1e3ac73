package main

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/medienhaus/ldapauth/cmd"
	"github.com/medienhaus/ldapauth/pkg/env"
)

func main() {
	err := sentry.Init(sentry.ClientOptions{
		SampleRate:       0.1,
		EnableTracing:    true,
		TracesSampleRate: 0.1,
		Release:          "ldapauth@" + cmd.Version,
		Environment:      env.Current(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentry.Init: %v", err)
	}

	if err := cmd.Execute(); err != nil {
		sentry.CaptureException(err)
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}
	// Flush buffered events before the program terminates.
	sentry.Flush(2 * time.Second)
}
