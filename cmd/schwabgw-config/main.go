package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"schwabgw/internal/config"
)

// requiredKeys are read with the SCHWAB_ prefix.
var requiredKeys = []string{"CLIENT_ID", "CLIENT_SECRET", "REDIRECT_URI", "REFRESH_TOKEN", "ACCOUNT_ID"}

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file (optional)")
		envPath    = flag.String("env", ".env", "env file path")
		validate   = flag.Bool("validate", false, "validate the configuration")
		generate   = flag.Bool("generate", false, "write an env template to -env")
		encrypt    = flag.String("encrypt", "", "encrypt a value")
		decrypt    = flag.String("decrypt", "", "decrypt an ENC: value")
		help       = flag.Bool("help", false, "show help")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	switch {
	case *encrypt != "":
		encryptString(*encrypt)
	case *decrypt != "":
		decryptString(*decrypt)
	case *generate:
		generateTemplate(*envPath)
	case *validate:
		validateConfig(*configPath, *envPath)
	default:
		showHelp()
	}
}

func showHelp() {
	fmt.Println("Schwab gateway configuration tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  schwabgw-config [options]")
	fmt.Println()
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  schwabgw-config -validate")
	fmt.Println("  schwabgw-config -generate -env .env.example")
	fmt.Println("  GATEWAY_ENCRYPTION_KEY=... schwabgw-config -encrypt 'client-secret'")
	fmt.Println("  GATEWAY_ENCRYPTION_KEY=... schwabgw-config -decrypt 'ENC:...'")
}

func validateConfig(configPath, envPath string) {
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load %s: %v", envPath, err)
	}

	if missing := config.NewEnv().Missing(requiredKeys); len(missing) > 0 && configPath == "" {
		fmt.Printf("Unset variables: %s\n", strings.Join(missing, ", "))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration is invalid: %v", err)
	}

	fmt.Println("Configuration OK")
	showConfigSummary(cfg)
}

func showConfigSummary(cfg *config.Config) {
	fmt.Println("\nSummary:")
	fmt.Printf("  Environment: %s\n", cfg.App.Env)
	fmt.Printf("  Listen:      %s\n", cfg.Addr())
	fmt.Printf("  Base URL:    %s\n", cfg.Schwab.BaseURL)
	fmt.Printf("  Account:     %s\n", cfg.Schwab.AccountID)
	fmt.Printf("  Token file:  %s\n", cfg.Persistence.TokenFile)
	fmt.Printf("  Env file:    %s\n", cfg.Persistence.EnvFile)
	fmt.Printf("  Redis:       %s\n", valueOr(cfg.Persistence.RedisAddr, "disabled"))
	fmt.Printf("  Metrics:     %t (%s)\n", cfg.Monitoring.PrometheusEnabled, cfg.Monitoring.PrometheusPath)
}

func generateTemplate(envPath string) {
	if _, err := os.Stat(envPath); err == nil {
		log.Fatalf("%s already exists", envPath)
	}

	env := make(map[string]string, len(requiredKeys))
	for _, key := range requiredKeys {
		env[config.SchwabPrefix+key] = ""
	}
	env[config.SchwabPrefix+"BASE_URL"] = config.Default().Schwab.BaseURL

	if err := godotenv.Write(env, envPath); err != nil {
		log.Fatalf("Failed to write %s: %v", envPath, err)
	}
	fmt.Printf("Wrote %s\n", envPath)
}

func encryptString(text string) {
	em := keyedEnv()
	encrypted, err := em.Encrypt(text)
	if err != nil {
		log.Fatalf("Encryption failed: %v", err)
	}
	fmt.Println(encrypted)
}

func decryptString(text string) {
	em := keyedEnv()
	decrypted, err := em.Decrypt(text)
	if err != nil {
		log.Fatalf("Decryption failed: %v", err)
	}
	fmt.Println(decrypted)
}

func keyedEnv() *config.EnvManager {
	key := os.Getenv(config.GatewayPrefix + "ENCRYPTION_KEY")
	if key == "" {
		log.Fatalf("Set %sENCRYPTION_KEY first", config.GatewayPrefix)
	}
	return config.NewEnvManager(key, config.SchwabPrefix)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
