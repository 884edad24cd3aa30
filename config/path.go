package config

import (
	"flag"
	"log"
	"os"
)

// DeterminePath resolves the config file path: the --config flag, then the
// DIALOGUE_CONFIG environment variable, then a short list of candidate
// paths. It logs and exits if none is found, grounded on the Visper
// teacher's DetermineConfigPath.
func DeterminePath() string {
	var configPath string

	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	if configPath == "" {
		configPath = getStringEnv("DIALOGUE_CONFIG", "")
	}

	if configPath == "" {
		candidates := []string{
			"./config.yaml",
			"./config.yml",
			"./tmp/config.yaml",
			"/etc/dialogue/config.yaml",
			"/app/config.yaml",
		}

		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	if configPath == "" {
		log.Fatal("config file not found. Use --config or DIALOGUE_CONFIG env")
	}

	return configPath
}

// TryDeterminePath is DeterminePath without the fatal exit: every Config
// field defaults sensibly, so a missing file is not itself an error. It
// returns ok=false when no candidate path was found.
func TryDeterminePath() (path string, ok bool) {
	var configPath string

	flag.StringVar(&configPath, "config", "", "path to config file")
	if !flag.Parsed() {
		flag.Parse()
	}

	if configPath == "" {
		configPath = getStringEnv("DIALOGUE_CONFIG", "")
	}

	if configPath == "" {
		candidates := []string{
			"./config.yaml",
			"./config.yml",
			"./tmp/config.yaml",
			"/etc/dialogue/config.yaml",
			"/app/config.yaml",
		}

		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	return configPath, configPath != ""
}
