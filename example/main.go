package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/klippa-app/go-pdfium/webassembly"
	"github.com/urfave/cli/v3"

	"github.com/synapta/tableseg"
)

func main() {
	cmd := &cli.Command{
		Name:  "tableseg",
		Usage: "Extract and link tables from PDF documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "Input PDF file path",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory for per-table Markdown/JSON",
				Value:   "output",
			},
			&cli.StringFlag{
				Name:  "taxonomy",
				Usage: "Concept taxonomy file (YAML or JSON) for linking",
			},
			&cli.IntFlag{
				Name:  "first-page",
				Usage: "First page to process (1-indexed)",
			},
			&cli.IntFlag{
				Name:  "last-page",
				Usage: "Last page to process (1-indexed)",
			},
			&cli.BoolFlag{
				Name:  "ocr",
				Usage: "Enable the Tesseract OCR backend (requires tesseract)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Action: extractTables,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func extractTables(ctx context.Context, cmd *cli.Command) error {
	level := slog.LevelInfo
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Initialise pdfium
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  1,
		MaxTotal: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to initialise pdfium: %w", err)
	}
	defer pool.Close()

	instance, err := pool.GetInstance(time.Second * 30)
	if err != nil {
		return fmt.Errorf("failed to get pdfium instance: %w", err)
	}

	config := tableseg.DefaultConfig()
	config.FirstPage = cmd.Int("first-page")
	config.LastPage = cmd.Int("last-page")
	config.EnableOCR = cmd.Bool("ocr")

	extractor := tableseg.NewExtractorWithConfig(instance, config)
	extractor.SetLogger(logger)

	if taxonomyPath := cmd.String("taxonomy"); taxonomyPath != "" {
		concepts, err := tableseg.LoadTaxonomy(taxonomyPath)
		if err != nil {
			return fmt.Errorf("failed to load taxonomy: %w", err)
		}

		var provider tableseg.SimilarityProvider
		if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
			provider = tableseg.NewEmbeddingSimilarity(tableseg.NewOpenAIEmbedder(apiKey, ""), concepts)
		} else {
			fmt.Fprintln(os.Stderr, "OPENAI_API_KEY not set; linking uses keyword matching only")
		}
		extractor.SetTaxonomy(concepts, provider)
	}

	result, err := extractor.ExtractFile(ctx, cmd.String("input"))
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	outputDir := cmd.String("output")
	if err := tableseg.WriteOutputs(outputDir, *result); err != nil {
		return fmt.Errorf("failed to write outputs: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Extracted %d table(s) from %d page(s) into %s\n",
		result.Summary.TotalTables, result.Summary.TotalPages, outputDir)
	return nil
}
