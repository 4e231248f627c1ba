/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package main

import (
	"go.uber.org/zap"
)

// sdkLogger routes SDK Printf logging into zap
type sdkLogger struct {
	log *zap.SugaredLogger
}

func (l sdkLogger) Printf(format string, v ...any) {
	l.log.Debugf(format, v...)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	cfg.DisableStacktrace = true
	return cfg.Build()
}
