// Copyright 2025 The packwright Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package engine is the glue layer outside the C1-C10 numbering: it opens
// a capture file, drives it through the demux/protocol/flow pipeline to
// completion, and serves the resulting store.Context through the C10
// query surface, both in-process and over HTTP. Grounded on
// controller.Controller's "build everything in New, Start wires the
// ingestion callback, serve an HTTP admin surface" shape, generalized
// from "ingest from a NIC" to "ingest from a demuxed capture file".
package engine

import (
	"time"

	"github.com/packwright/packwright/confengine"
	"github.com/packwright/packwright/logger"
	"github.com/packwright/packwright/server"
)

// Config is the engine's config-file-unpackable section, mirroring
// controller.Config's shape: a logger section and a server section, both
// unpacked via confengine the same way the teacher unpacks
// "sniffer"/"controller".
type Config struct {
	Logger logger.Options `config:"logger"`
	Server server.Config  `config:"server"`
}

// LoadConfig reads path via confengine/go-ucfg and applies the logger
// section immediately, the same order setupLogger runs in
// controller.New.
func LoadConfig(path string) (*confengine.Config, Config, error) {
	conf, err := confengine.LoadConfigPath(path)
	if err != nil {
		return nil, Config{}, err
	}
	var cfg Config
	if err := conf.Unpack(&cfg); err != nil {
		return nil, Config{}, err
	}
	applyLoggerDefaults(&cfg.Logger)
	logger.SetOptions(cfg.Logger)
	return conf, cfg, nil
}

func applyLoggerDefaults(opt *logger.Options) {
	if opt.Filename == "" && !opt.Stdout {
		opt.Filename = "packwright.log"
	}
	if opt.MaxBackups <= 0 {
		opt.MaxBackups = 10
	}
	if opt.MaxAge <= 0 {
		opt.MaxAge = 7
	}
	if opt.MaxSize <= 0 {
		opt.MaxSize = 100
	}
}

// defaultWatchTimeout bounds how long /watch blocks waiting for the next
// progress event before the connection is let go, mirroring
// controller.routeWatch's default.
const defaultWatchTimeout = 5 * time.Second
