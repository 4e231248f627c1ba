/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Store backends for the active call marker
const (
	storeMemory = "memory"
	storeRedis  = "redis"
	storeSQLite = "sqlite"
)

// config is read from the environment, and from .env when present
type config struct {
	Token      string        // AMOURA_TOKEN
	UserID     string        // AMOURA_USER_ID, for opaque tokens
	APIURL     string        // AMOURA_API_URL
	SocketURL  string        // AMOURA_SOCKET_URL
	Store      string        // AMOURA_STORE: memory, redis or sqlite
	RedisAddr  string        // REDIS_ADDR
	SQLitePath string        // SQLITE_PATH
	LogLevel   string        // LOG_LEVEL
	RingTimeout time.Duration // RING_TIMEOUT
}

func loadConfig() (*config, error) {
	_ = godotenv.Load()

	ring, err := time.ParseDuration(getEnv("RING_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("config: RING_TIMEOUT: %w", err)
	}
	cfg := &config{
		Token:      os.Getenv("AMOURA_TOKEN"),
		UserID:     os.Getenv("AMOURA_USER_ID"),
		APIURL:     os.Getenv("AMOURA_API_URL"),
		SocketURL:  os.Getenv("AMOURA_SOCKET_URL"),
		Store:      getEnv("AMOURA_STORE", storeMemory),
		RedisAddr:  getEnv("REDIS_ADDR", "localhost:6379"),
		SQLitePath: getEnv("SQLITE_PATH", "callctl.db"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		RingTimeout: ring,
	}
	return cfg, cfg.validate()
}

func (c *config) validate() error {
	if c.Token == "" {
		return errors.New("config: AMOURA_TOKEN is required")
	}
	switch c.Store {
	case storeMemory, storeRedis, storeSQLite:
	default:
		return fmt.Errorf("config: AMOURA_STORE must be memory, redis or sqlite, got %q", c.Store)
	}
	if c.RingTimeout <= 0 {
		return errors.New("config: RING_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
