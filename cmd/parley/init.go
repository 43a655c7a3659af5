// ABOUTME: The init command: asks a few questions and writes a starter config file
// ABOUTME: Provider keys are written as environment references, never literal values

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/parley/internal/config"
)

// initAnswers are the values collected by runInit.
type initAnswers struct {
	DBPath       string
	Secret       string
	LogLevel     string
	LogFormat    string
	ProjectID    string
	DefaultModel string
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("parley configuration setup")
	fmt.Println("==========================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var ans initAnswers

	fmt.Println("\n--- Database Configuration ---")
	ans.DBPath = prompt(reader, "SQLite database path", filepath.Join(getDataPath(), "parley.db"))
	if isYes(prompt(reader, "Encrypt stored API keys?", "yes")) {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating secret: %w", err)
		}
		ans.Secret = base64.StdEncoding.EncodeToString(secretBytes)
	}

	fmt.Println("\n--- Logging Configuration ---")
	ans.LogLevel = prompt(reader, "Log level (trace/debug/info/warn/error)", "info")
	ans.LogFormat = prompt(reader, "Log format (text/json)", "text")

	fmt.Println("\n--- Evaluation ---")
	ans.ProjectID = prompt(reader, "Project ID for eval runs", "eval")
	ans.DefaultModel = prompt(reader, "Default eval model", config.DefaultEvalModel)

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(renderConfig(ans)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(ans.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	if ans.Secret != "" {
		fmt.Println("Keep the database secret safe: stored API keys cannot be read without it.")
	}
	fmt.Println("\nProvider keys are read from ANTHROPIC_API_KEY, OPENAI_API_KEY and OPENROUTER_API_KEY,")
	fmt.Println("or per project with: parley configs set --project P --provider openai --api-key ...")
	return nil
}

// renderConfig builds the YAML written by runInit. Provider keys reference
// environment variables so no secret lands in the file.
func renderConfig(ans initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# parley configuration\n")
	cfg.WriteString("# Generated by parley init\n\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", ans.DBPath))
	if ans.Secret != "" {
		cfg.WriteString(fmt.Sprintf("  secret: %q\n", ans.Secret))
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", ans.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", ans.LogFormat))
	cfg.WriteString("\n")

	cfg.WriteString("agent:\n")
	cfg.WriteString(fmt.Sprintf("  max_steps: %d\n", config.DefaultMaxSteps))
	cfg.WriteString(fmt.Sprintf("  max_output_tokens: %d\n", config.DefaultMaxOutputTokens))
	cfg.WriteString(fmt.Sprintf("  persist_timeout: %q\n", config.DefaultPersistTimeout.String()))
	cfg.WriteString("\n")

	cfg.WriteString("providers:\n")
	cfg.WriteString("  anthropic:\n")
	cfg.WriteString("    api_key: \"${ANTHROPIC_API_KEY}\"\n")
	cfg.WriteString("  openai:\n")
	cfg.WriteString("    api_key: \"${OPENAI_API_KEY}\"\n")
	cfg.WriteString("  openrouter:\n")
	cfg.WriteString("    api_key: \"${OPENROUTER_API_KEY}\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("eval:\n")
	cfg.WriteString(fmt.Sprintf("  tests_dir: %q\n", config.DefaultTestsDir))
	cfg.WriteString(fmt.Sprintf("  output_dir: %q\n", config.DefaultOutputDir))
	cfg.WriteString(fmt.Sprintf("  project_id: %q\n", ans.ProjectID))
	cfg.WriteString("  models:\n")
	cfg.WriteString(fmt.Sprintf("    - %q\n", ans.DefaultModel))
	cfg.WriteString("  parallel: 1\n")

	return cfg.String()
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
