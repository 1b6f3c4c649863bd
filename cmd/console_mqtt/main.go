package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/rush_recorder/internal/app"
	"github.com/relabs-tech/rush_recorder/internal/config"
)

func main() {
	configPath := flag.String("config", "./rush_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting rush-recorder console (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsoleMQTT(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
