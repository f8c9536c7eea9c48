// Command runcalc runs the blueprint load calculation pipeline against a
// local PDF and prints the result as JSON. It needs no database or queue,
// which makes it useful for checking a drawing before submitting it.
// Usage: go run ./cmd/runcalc -file plan.pdf -location "Denver, CO"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"loadplan/internal/climate"
	"loadplan/internal/config"
	"loadplan/internal/domain"
	"loadplan/internal/extract"
	"loadplan/internal/extract/claude"
	"loadplan/internal/extract/gemini"
	"loadplan/internal/extract/ocr"
	"loadplan/internal/extract/openai"
	"loadplan/internal/loadcalc"
	"loadplan/internal/pipeline"
	"loadplan/internal/port"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var (
		file     = flag.String("file", "", "path to the blueprint PDF (required)")
		location = flag.String("location", "", "project location for design conditions (required)")
		scale    = flag.Float64("scale", 0, "feet per drawing unit override (optional)")
		timeout  = flag.Duration("timeout", 10*time.Minute, "overall pipeline timeout")
	)
	flag.Parse()

	if *file == "" || *location == "" {
		flag.Usage()
		return fmt.Errorf("both -file and -location are required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	doc, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("reading blueprint: %w", err)
	}

	factors := loadcalc.DefaultFactors()
	if cfg.Calc.IndoorHeatingTemp > 0 {
		factors.IndoorHeatingTemp = cfg.Calc.IndoorHeatingTemp
	}
	if cfg.Calc.IndoorCoolingTemp > 0 {
		factors.IndoorCoolingTemp = cfg.Calc.IndoorCoolingTemp
	}
	if cfg.Calc.InfiltrationDivisorSingle > 0 {
		factors.InfiltrationDivisorSingle = cfg.Calc.InfiltrationDivisorSingle
	}
	if cfg.Calc.InfiltrationDivisorMulti > 0 {
		factors.InfiltrationDivisorMulti = cfg.Calc.InfiltrationDivisorMulti
	}

	p := pipeline.New(
		cfg.Pipeline,
		visionProviderFor(&cfg.Vision),
		ocr.NewEngine("eng"),
		climate.NewSource(cfg.Climate),
		factors,
	)

	opts := pipeline.Options{
		Progress: func(stage domain.PipelineStage) {
			log.Printf("stage: %s", stage)
		},
	}
	if *scale > 0 {
		opts.ForcedScale = &domain.Scale{
			FeetPerUnit: *scale,
			Method:      domain.ScaleMethodOverride,
			Confidence:  1.0,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	calc, err := p.Process(ctx, doc, *location, opts)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	out, err := json.MarshalIndent(calc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(out))

	log.Printf("calculated %s in %s: heating %.0f BTU/hr, cooling %.0f BTU/hr, %d warning(s)",
		*file, time.Since(start).Round(time.Millisecond),
		calc.HeatingBTUH, calc.CoolingBTUH, len(calc.Warnings))
	return nil
}

// visionProviderFor builds the vision provider chain from configuration,
// mirroring the server wiring. No configured provider means vision
// extraction is skipped and the run relies on geometry and text.
func visionProviderFor(cfg *config.VisionConfig) port.VisionProvider {
	primary := providerFromConfig(cfg.PrimaryConfig())
	secondary := providerFromConfig(cfg.SecondaryConfig())

	switch {
	case primary != nil && secondary != nil:
		return extract.NewFallbackProvider([]port.VisionProvider{primary, secondary})
	case primary != nil:
		return primary
	case secondary != nil:
		return secondary
	default:
		return nil
	}
}

func providerFromConfig(pc *config.VisionProviderConfig) port.VisionProvider {
	if pc == nil || pc.APIKey == "" {
		return nil
	}
	switch pc.Provider {
	case "claude":
		return claude.NewProvider(pc)
	case "openai":
		return openai.NewProvider(pc)
	case "gemini":
		return gemini.NewProvider(pc)
	default:
		return nil
	}
}
