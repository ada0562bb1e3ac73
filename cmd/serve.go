// Copyright 2025 ldapauth Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/medienhaus/ldapauth/pkg/api"
	"github.com/medienhaus/ldapauth/pkg/auth"
	"github.com/medienhaus/ldapauth/pkg/debug"
	"github.com/medienhaus/ldapauth/pkg/env"
	"github.com/medienhaus/ldapauth/pkg/identity"
	"github.com/medienhaus/ldapauth/pkg/logger"
	"github.com/medienhaus/ldapauth/pkg/throttle"
	"github.com/medienhaus/ldapauth/pkg/utils"
)

// ServeOpts holds configuration for the HTTP server.
type ServeOpts struct {
	IP        string
	Port      int
	DebugPort int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the login HTTP server",
	Long: `Start an HTTP server exposing:
- POST /api/auth/login (resolve identity, then verify password)
- GET /api/users/{email}/ldap (fresh directory attributes)

Metrics, pprof and readiness are served on the debug port.
`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.String("ip", "0.0.0.0", "IP address to bind to")
	f.Int("port", 8080, "HTTP port for the login API")
	f.Int("debug_port", 8085, "Debug HTTP port (metrics, pprof)")
	f.String("store_type", "", "Identity store: memory, sqlite or postgres")
	f.Bool("throttle_enabled", false, "Throttle password attempts per mail")
	f.String("throttle_redis_addr", "", "Redis address for a shared throttle")

	viper.BindPFlags(f)
}

func loadServeOpts(cmd *cobra.Command) ServeOpts {
	f := NewFlagLoader(cmd)
	return ServeOpts{
		IP:        f.String("ip"),
		Port:      f.Int("port"),
		DebugPort: f.Int("debug_port"),
	}
}

func runServe(cmd *cobra.Command, args []string) {
	opts := loadServeOpts(cmd)

	debug.SetNotReady()

	client, dirCfg, err := newDirectoryClient()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid ldap configuration")
	}
	defer client.Close()

	store, err := openIdentityStore()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open identity store")
	}
	defer store.Close()

	throttleCfg, err := loadThrottleConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid throttle configuration")
	}
	if !throttleCfg.Enabled && env.IsProduction() {
		logger.Warn().Msg("password attempts are not throttled in production")
	}
	limiter, stopLimiter, err := throttle.New(throttleCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create login throttle")
	}
	defer stopLimiter()

	collection := identity.NewCollection()
	authenticator := auth.NewAuthenticator(client, store,
		auth.WithLimiter(limiter),
		auth.WithElevation(getLDAPBool("is_admin")),
		auth.WithCollection(collection),
	)

	// Ready once the service account can bind.
	debug.SetReadyCheck(func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := client.Connect(ctx)
		return err == nil
	})

	debugMux := debug.GetMux()
	debugMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(VersionInfo())
	})
	debugServer := startHTTPServer("debug", debugMux, opts.IP, opts.DebugPort)
	apiServer := startHTTPServer("api", api.NewRouter(authenticator, store), opts.IP, opts.Port)

	logger.Info().
		Str("host", dirCfg.Host).
		Str("base_dn", dirCfg.BaseDN).
		Bool("start_tls", dirCfg.UseStartTLS()).
		Bool("throttle", throttleCfg.Enabled).
		Msg("ldapauth server started")

	debug.SetReady()
	waitForShutdown()
	debug.SetNotReady()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	apiServer.Shutdown(ctx)
	debugServer.Shutdown(ctx)

	logger.Info().Int("identities", collection.Len()).Msg("ldapauth server stopped")
}

func startHTTPServer(name string, handler http.Handler, ip string, port int) *http.Server {
	addr := utils.JoinHostPort(ip, port)
	listener, err := utils.NewListener(addr, connTimeout)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", addr).Msgf("failed to listen for %s server", name)
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msgf("%s HTTP server listening", name)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msgf("%s server failed", name)
		}
	}()

	return server
}

func waitForShutdown() {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	<-stopChan
}
