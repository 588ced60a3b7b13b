package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	entityextractor "github.com/menta2k/entity-extractor"
	"github.com/menta2k/entity-extractor/internal/config"
	"github.com/menta2k/entity-extractor/internal/monitoring"
	"github.com/menta2k/entity-extractor/internal/utils"
	"github.com/menta2k/entity-extractor/pkg/extraction"
	"github.com/menta2k/entity-extractor/pkg/types"
)

func main() {
	var output, outDir, apiKey, model, backend, baseURL, cfgPath, logLevel string
	var isURL bool
	var sendSize int

	flag.StringVar(&output, "o", "", "write the result as JSON to this file")
	flag.StringVar(&outDir, "out-dir", "out", "output directory when the input is a directory")
	flag.StringVar(&apiKey, "api-key", "", "OpenAI API key (or set OPENAI_API_KEY)")
	flag.BoolVar(&isURL, "url", false, "treat the input as an image URL instead of a file path")
	flag.StringVar(&model, "model", "", "model name (default from LLM_MODEL, gpt-4.1)")
	flag.StringVar(&backend, "backend", "", "backend to use: openai or ollama")
	flag.StringVar(&baseURL, "base-url", "", "backend base URL")
	flag.IntVar(&sendSize, "sendsize", -1, "max long side sent to the model (px), 0=original")
	flag.StringVar(&cfgPath, "config", "", "configuration file (.env, yaml or json)")
	flag.StringVar(&logLevel, "log-level", "warn", "log level: debug|info|warn|error")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-url] [-o result.json] [-api-key KEY] [-backend openai|ollama] image_path|image_url|directory\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}
	input := flag.Arg(0)

	logger, err := monitoring.NewLogger(logLevel, "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	if cfgPath == "" && fileExists(config.GetConfigPath()) {
		cfgPath = config.GetConfigPath()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("could not load config", zap.Error(err))
	}
	if model != "" {
		cfg.Model = model
	}
	if backend != "" {
		cfg.Backend = backend
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if sendSize >= 0 {
		cfg.SendMaxDim = sendSize
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ex, err := entityextractor.New(cfg.ExtractorConfig(apiKey), logger)
	if err != nil {
		logger.Fatal("could not create extractor", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !isURL && utils.DirExists(input) {
		os.Exit(runDirectory(ctx, ex, input, outDir))
	}

	var result types.ExtractionResult
	if isURL {
		result = ex.ExtractFromURL(ctx, input)
	} else {
		result = ex.ExtractFromPath(ctx, input)
	}

	if !printResult(result) {
		os.Exit(1)
	}
	if output != "" {
		if err := extraction.SaveResult(result, output); err != nil {
			logger.Fatal("could not save result", zap.Error(err))
		}
		fmt.Printf("Results saved to %s\n", output)
	}
}

// runDirectory extracts every image under dir and writes one result file per
// image. It returns the process exit code.
func runDirectory(ctx context.Context, ex *extraction.Extractor, dir, outDir string) int {
	files, err := utils.ListImageFiles(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not list %s: %v\n", dir, err)
		return 1
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "no images found in %s\n", dir)
		return 1
	}

	failed := 0
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		result := ex.ExtractFromPath(ctx, f)
		out := utils.ResultFilename(f, outDir, "_entities")
		if err := extraction.SaveResult(result, out); err != nil {
			fmt.Fprintf(os.Stderr, "could not save %s: %v\n", out, err)
			failed++
			continue
		}

		size := ""
		if result.ImageInfo != nil && result.ImageInfo.SizeBytes > 0 {
			size = " (" + utils.FormatFileSize(result.ImageInfo.SizeBytes) + ")"
		}
		if result.Success {
			fmt.Printf("✅ %s%s: %d entities -> %s\n", f, size, result.EntityCount(), out)
		} else {
			fmt.Printf("❌ %s%s: %s\n", f, size, result.Error)
			failed++
		}
	}

	fmt.Printf("\nProcessed %d images, %d failed\n", len(files), failed)
	if failed > 0 {
		return 1
	}
	return 0
}

func printResult(result types.ExtractionResult) bool {
	if !result.Success {
		fmt.Println("❌ Entity extraction failed!")
		fmt.Printf("Error: %s\n", result.Error)
		return false
	}

	fmt.Println("✅ Entity extraction successful!")
	fmt.Printf("Found %d entities\n", result.EntityCount())
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s: %s\n", w.Path, w.Message)
	}
	fmt.Println("\nExtracted entities:")
	data, _ := json.MarshalIndent(result.Entities, "", "  ")
	fmt.Println(string(data))
	return true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
