// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/airdrum/internal/app"
	"github.com/relabs-tech/airdrum/internal/config"
)

func main() {
	configPath := flag.String("config", "./airdrum_config.txt", "path to configuration file")
	useMock := flag.Bool("mock", false, "run without hardware (mock sensor, silent audio)")
	flag.Parse()

	log.Println("starting airdrum producer (sensor → audio + MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunDrumProducer(*useMock); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
