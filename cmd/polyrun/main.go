package main

import (
	"errors"
	"log"
	"os"

	"github.com/ChamsBouzaiene/polyrun/internal/config"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	// Persisted settings fill in whatever the environment leaves unset.
	if mgr, err := config.NewManager(); err == nil {
		if cfg, err := mgr.Load(); err != nil {
			log.Printf("WARNING: ignoring unreadable config %s: %v", mgr.GetConfigPath(), err)
		} else {
			applyConfigToEnv(cfg, false)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errRunFailed) {
			os.Exit(1)
		}
		log.Fatalf("command failed: %v", err)
	}
}
