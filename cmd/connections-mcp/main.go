// Copyright 2025 Microsoft Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Azure/connections-mcp/internal/arm"
	"github.com/Azure/connections-mcp/internal/binder"
	"github.com/Azure/connections-mcp/internal/credential"
	"github.com/Azure/connections-mcp/internal/mcp"
	"github.com/Azure/connections-mcp/internal/metrics"
	"github.com/Azure/connections-mcp/internal/server"
	"github.com/Azure/connections-mcp/internal/version"
)

var (
	argSubscriptionID       string
	argResourceGroup        string
	argLocation             string
	argAuthMode             string
	argTenantID             string
	argMetricsListenAddress string
	argSkipStartupScan      bool

	processName = filepath.Base(os.Args[0])

	rootCmd = &cobra.Command{
		Use:   processName,
		Args:  cobra.NoArgs,
		Short: "Azure API Connections MCP server",
		Long: fmt.Sprintf(`Azure API Connections MCP server

	The command runs an MCP (Model Context Protocol) server over stdio that lets
	an AI assistant manage Azure API connections and invoke the connected
	services (Office 365, Teams, SQL, ...) as dynamically generated tools.

	# Run against a resource group using credentials cached by a prior az login
	%s --subscription ${SUBSCRIPTION_ID} --resource-group ${RESOURCE_GROUP} --auth cli
`, processName),
		Version:       "unknown", // overridden by build info below
		RunE:          Run,
		SilenceErrors: true, // errors are printed after Execute
	}
)

func init() {
	rootCmd.SetErrPrefix(rootCmd.Short + " error:")

	rootCmd.Flags().StringVar(&argSubscriptionID, "subscription", os.Getenv("AZURE_SUBSCRIPTION_ID"), "Azure subscription id")
	rootCmd.Flags().StringVar(&argResourceGroup, "resource-group", os.Getenv("AZURE_RESOURCE_GROUP"), "Resource group holding the API connections")
	rootCmd.Flags().StringVar(&argLocation, "location", envOr("AZURE_LOCATION", "eastus"), "Azure region for managed APIs and new connections")
	rootCmd.Flags().StringVar(&argAuthMode, "auth", envOr("ARM_MCP_AUTH_MODE", "auto"), "Authentication mode: auto, browser, cli, env or default")
	rootCmd.Flags().StringVar(&argTenantID, "tenant", envOr("AZURE_TENANT_ID", "common"), "Entra tenant for interactive logins")
	rootCmd.Flags().StringVar(&argMetricsListenAddress, "metrics-listen-address", "", "Address on which to expose metrics; empty disables the listener")
	rootCmd.Flags().BoolVar(&argSkipStartupScan, "skip-startup-scan", false, "Skip binding connector tools at startup")

	rootCmd.Version = version.CommitSHA()
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// elide keeps the last four characters of an identifier for logging.
func elide(id string) string {
	if len(id) <= 4 {
		return id
	}
	return "..." + id[len(id)-4:]
}

func Run(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol stream, so every log line goes to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if len(argSubscriptionID) == 0 {
		return errors.New("subscription is required (--subscription or AZURE_SUBSCRIPTION_ID)")
	}
	if len(argResourceGroup) == 0 {
		return errors.New("resource group is required (--resource-group or AZURE_RESOURCE_GROUP)")
	}
	authMode, err := credential.ParseMode(argAuthMode)
	if err != nil {
		return err
	}

	logger.Info(fmt.Sprintf("%s (%s) started", cmd.Short, version.CommitSHA()),
		"subscription", elide(argSubscriptionID),
		"resource_group", argResourceGroup,
		"location", argLocation,
		"auth_mode", string(authMode))

	tokens, err := credential.NewProvider(authMode, argTenantID, logger)
	if err != nil {
		return fmt.Errorf("configuring credentials: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	var emitter metrics.Emitter = metrics.Noop{}
	var metricsServer *http.Server
	if argMetricsListenAddress != "" {
		emitter = metrics.NewPrometheusEmitter(prometheus.DefaultRegisterer)

		http.Handle("/metrics", promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer,
			promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{},
			),
		))

		metricsServer = &http.Server{Addr: argMetricsListenAddress}

		group.Go(func() error {
			logger.Info(fmt.Sprintf("metrics server listening on %s", argMetricsListenAddress))
			err := metricsServer.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}

	go func() {
		<-ctx.Done()
		logger.Info("caught interrupt signal")
		if metricsServer != nil {
			_ = metricsServer.Close()
		}
		// Unblock the stdio read loop.
		_ = os.Stdin.Close()
	}()

	scope := arm.Scope{
		SubscriptionID: argSubscriptionID,
		ResourceGroup:  argResourceGroup,
		Location:       argLocation,
	}
	armClient := arm.NewClient(tokens, logger, arm.ClientOptions{
		UserAgent: version.UserAgent(processName),
		Emitter:   emitter,
	})

	mcpServer := mcp.NewServer("connections-mcp", version.CommitSHA(), logger, emitter)
	registry := binder.NewRegistry()
	toolBinder := binder.New(scope, armClient, registry, mcpServer, logger, emitter)

	if err := server.New(scope, armClient, toolBinder, registry, logger).Register(mcpServer); err != nil {
		return err
	}

	if !argSkipStartupScan {
		tally, err := toolBinder.ScanAll(ctx)
		if err != nil {
			logger.Error("startup scan failed, serving static tools only", "error", err.Error())
		} else {
			logger.Info("startup scan complete", "summary", tally.String())
		}
	}

	group.Go(func() error {
		defer stop()
		err := mcpServer.Serve(ctx, os.Stdin, os.Stdout)
		if ctx.Err() != nil {
			// The read loop was unblocked by shutdown, not a client fault.
			return nil
		}
		return err
	})

	if err := group.Wait(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	logger.Info(fmt.Sprintf("%s (%s) stopped", cmd.Short, cmd.Version))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrln(rootCmd.ErrPrefix(), err.Error())
		os.Exit(1)
	}
}
