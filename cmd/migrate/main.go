package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/config"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/db"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/logging"
)

const usage = `usage: migrate [up | force <version>]`

func main() {
	logger := logging.New("info")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load error", "error", err.Error())
		os.Exit(1)
	}

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "up":
		err = db.Migrate(cfg.PostgresDSN)
	case "force":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		version, convErr := strconv.Atoi(os.Args[2])
		if convErr != nil {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		err = db.Force(cfg.PostgresDSN, version)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("migration failed", "command", cmd, "error", err.Error())
		os.Exit(1)
	}
	logger.Info("migration complete", "command", cmd)
}
