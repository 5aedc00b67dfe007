package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"siteforge/internal/orch"
	"siteforge/pkg/config"
	"siteforge/pkg/logx"
)

func main() {
	var configPath string
	var targetURL string
	var workDir string
	var runbookPath string
	var iterations int
	var liveMode bool
	var initSecrets bool
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&targetURL, "url", "", "Target site URL (overrides config)")
	flag.StringVar(&workDir, "workdir", "", "Working directory (default: current directory)")
	flag.StringVar(&runbookPath, "runbook", "", "Path to worker runbook YAML (overrides config)")
	flag.IntVar(&iterations, "iterations", 0, "Maximum improve iterations (overrides config)")
	flag.BoolVar(&liveMode, "live", false, "Use live API calls instead of demo mode")
	flag.BoolVar(&initSecrets, "init", false, "Interactively create the encrypted secrets file and exit")
	flag.Parse()

	logger := logx.NewLogger("main")

	if workDir == "" {
		workDir, _ = os.Getwd()
	}

	if initSecrets {
		if err := runInitSecrets(workDir); err != nil {
			log.Fatalf("Failed to initialize secrets: %v", err)
		}
		return
	}

	cfg, err := loadOrDefaultConfig(configPath, targetURL, workDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if targetURL != "" {
		cfg.TargetURL = targetURL
	}
	if iterations > 0 {
		cfg.MaxIterations = iterations
	}
	if runbookPath != "" {
		cfg.RunbookPath = runbookPath
	}
	if liveMode {
		cfg.Live = true
	}
	if cfg.TargetURL == "" {
		log.Fatalf("No target URL: pass -url or set target_url in the config file")
	}

	if cfg.Live && config.SecretsFileExists(cfg.WorkDir) {
		if err := unlockSecrets(cfg.WorkDir); err != nil {
			log.Fatalf("Failed to unlock secrets: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := orch.NewRunner(cfg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal %v, stopping run", sig)
		runner.Stop()
		cancel()
	}()

	if err := runner.Run(ctx); err != nil {
		logger.Error("Run failed: %v", err)
		os.Exit(1)
	}
}

// loadOrDefaultConfig loads the configured file, falling back to defaults
// when no config exists but a target URL was given on the command line.
func loadOrDefaultConfig(configPath, targetURL, workDir string) (*config.Config, error) {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = filepath.Join(workDir, config.ProjectConfigDir, config.ProjectConfigFilename)
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			if targetURL == "" {
				return nil, fmt.Errorf("no config file at %s and no -url given", configPath)
			}
			return config.DefaultConfig(targetURL, workDir), nil
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.WorkDir == "" || cfg.WorkDir == "." {
		cfg.WorkDir = workDir
	}
	return cfg, nil
}

// runInitSecrets interactively collects provider API keys and writes the
// encrypted secrets file.
func runInitSecrets(workDir string) error {
	fmt.Println("Creating encrypted secrets file. Leave a key blank to skip that provider.")

	password, err := promptPassword("Secrets password: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	secrets := make(map[string]string)
	for _, provider := range []string{config.ProviderAnthropic, config.ProviderOpenAI, config.ProviderGoogle} {
		envName := config.APIKeyEnv[provider]
		key, err := promptPassword(fmt.Sprintf("%s (%s): ", provider, envName))
		if err != nil {
			return err
		}
		if key != "" {
			secrets[envName] = key
		}
	}

	if err := config.EncryptSecretsFile(workDir, password, secrets); err != nil {
		return err
	}
	fmt.Printf("Wrote %d secret(s) to %s\n",
		len(secrets), filepath.Join(workDir, config.ProjectConfigDir, "secrets.json.enc"))
	return nil
}

// unlockSecrets prompts for the secrets password and loads the decrypted
// keys into memory for the run.
func unlockSecrets(workDir string) error {
	password, err := promptPassword("Secrets password: ")
	if err != nil {
		return err
	}
	secrets, err := config.DecryptSecretsFile(workDir, password)
	if err != nil {
		return err
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}

// promptPassword reads a line without echo when stdin is a terminal.
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	// Piped input (tests, scripts): fall back to a plain line read.
	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
