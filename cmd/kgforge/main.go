package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "embed"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kgforge/kgforge/internal/app"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

// embeddedConfig embeds the application's YAML configuration file.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// embeddedPrompts embeds the task-to-template prompt library.
//
//go:embed resources/prompts.yaml
var embeddedPrompts []byte

// main parses the command line, installs signal handling, and runs one
// pipeline invocation.
func main() {
	inputPath := flag.String("input", "", "path to the input CSV file")
	idColumn := flag.String("id-column", "id", "CSV column holding stable item ids (optional)")
	textColumn := flag.String("text-column", "text", "CSV column holding document text")
	executionID := flag.String("execution", "", "execution to resume; a new one is created when empty")
	task := flag.String("task", "", "prompt task (defaults to the configured task)")
	batchSize := flag.Int("batch-size", 0, "items per batch (defaults to the configured batch size)")
	wait := flag.Bool("wait", true, "wait for each batch and load its results")
	flag.Parse()

	if *inputPath == "" {
		logger.Fatalf("An input CSV file is required (-input).")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Attempting to stop the pipeline...", sig)
		cancel()
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	params := app.RunParams{
		EnvFilePath: envFilePath,
		InputPath:   *inputPath,
		IDColumn:    *idColumn,
		TextColumn:  *textColumn,
		ExecutionID: *executionID,
		Task:        *task,
		BatchSize:   *batchSize,
		Wait:        *wait,
	}

	if err := app.RunApplication(ctx, params, embeddedConfig, embeddedPrompts); err != nil {
		logger.Fatalf("Application run failed: %v", err)
	}
	os.Exit(0)
}
