/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	amoura "github.com/tejzpr/amoura-go-sdk"
	"github.com/tejzpr/amoura-go-sdk/activecall"
	"github.com/tejzpr/amoura-go-sdk/amourasdk"
)

// app is built once per invocation by the root command
type app struct {
	cfg    *config
	log    *zap.SugaredLogger
	client *amoura.AmouraClient
}

var current *app

var rootCmd = &cobra.Command{
	Use:           "callctl",
	Short:         "Place and answer Amoura calls from a terminal",
	Long:          `Headless call client. Commands: call, listen, transactions, active.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		current = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if current != nil {
			_ = current.log.Sync()
		}
	},
}

func init() {
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(transactionsCmd)
	rootCmd.AddCommand(activeCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	log := logger.Sugar()

	core := amourasdk.DefaultConfig()
	if cfg.APIURL != "" {
		core.BaseURL = cfg.APIURL
	}
	if cfg.SocketURL != "" {
		core.SocketURL = cfg.SocketURL
	}
	core.UserID = cfg.UserID
	core.Logger = sdkLogger{log: log}

	client, err := amoura.NewClient(cfg.Token, core)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, client: client}, nil
}

// openStore opens the configured active call store. The returned func
// releases it.
func (a *app) openStore(ctx context.Context) (activecall.Store, func(), error) {
	switch a.cfg.Store {
	case storeRedis:
		rdb, err := activecall.OpenRedis(ctx, activecall.RedisConfig{Addr: a.cfg.RedisAddr})
		if err != nil {
			return nil, nil, err
		}
		return activecall.NewRedisStore(rdb, activecall.RedisConfig{}), func() { _ = rdb.Close() }, nil
	case storeSQLite:
		store, err := activecall.OpenSQLite(a.cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return activecall.NewMemoryStore(), func() {}, nil
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
