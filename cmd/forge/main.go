package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"sceneforge/internal/config"
	"sceneforge/internal/generate"
	"sceneforge/internal/job"
	"sceneforge/internal/jobstore"
	"sceneforge/internal/llm"
	"sceneforge/internal/llmclient"
	"sceneforge/internal/pipeline"
	"sceneforge/internal/repair"
	"sceneforge/internal/vision"
)

func main() {
	prompt := flag.String("prompt", "", "topic to animate")
	category := flag.String("category", "mathematical", "prompt category: mathematical, tech_system, product_startup")
	outDir := flag.String("out", "out", "output directory")
	quality := flag.String("quality", "", "render quality: low, medium, high, ultra")
	maxRepair := flag.Int("max-repair", 0, "repair loop iteration budget (0 = config default)")
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	if *prompt == "" {
		log.Fatal("--prompt is required")
	}

	_ = godotenv.Load()
	cfg, err := config.FromEnv(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *quality != "" {
		cfg.Render.Quality = *quality
	}
	if *maxRepair > 0 {
		cfg.Repair.MaxIterations = *maxRepair
	}
	if cfg.Models.APIKey == "" {
		log.Fatal("GEMINI_API_KEY is not set")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	logger := log.Default()

	codeCli, err := llmclient.NewGeminiClient(ctx, cfg.Models.APIKey, cfg.Models.CodeModel)
	if err != nil {
		log.Fatal(err)
	}
	visionCli, err := llmclient.NewGeminiClient(ctx, cfg.Models.APIKey, cfg.Models.VisionModel)
	if err != nil {
		log.Fatal(err)
	}
	wrap := func(c llmclient.Client) llmclient.Client {
		return llm.Chain(c, llm.Retry(3, 300*time.Millisecond), llm.WithLogging(logger))
	}
	router := llm.NewRouter(wrap(codeCli), wrap(visionCli),
		llm.WithTokenBudgets(cfg.Models.CodeMaxTokens, cfg.Models.VisionMaxTokens))
	defer router.Close()

	store := jobstore.New(filepath.Join(*outDir, "jobs.json"))
	store.EnsureLoaded()
	defer store.Close()

	driver := pipeline.New(store,
		generate.New(router, logger),
		repair.NewFixer(router, logger),
		vision.New(router, logger),
		*outDir, logger)
	driver.Quality = cfg.Render.QualityFlag()
	driver.MaxRepair = cfg.Repair.MaxIterations

	j := job.New(*prompt, *category)
	store.Put(j)
	if err := driver.Run(ctx, j.ID); err != nil {
		log.Fatal(err)
	}

	final, _ := store.Get(j.ID)
	if final.Status != job.StateCompleted {
		log.Fatalf("generation failed: %s", final.Error)
	}
	if final.VisualAnalysis != nil {
		log.Printf("visual quality: %s (%d frames, %d issues)",
			final.VisualAnalysis.OverallQuality,
			final.VisualAnalysis.FramesAnalyzed,
			len(final.VisualAnalysis.Issues))
	}
	fmt.Println(final.VideoPath)
}
