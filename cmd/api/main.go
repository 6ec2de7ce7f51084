package main

import (
	"context"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"sceneforge/internal/artifact"
	"sceneforge/internal/config"
	"sceneforge/internal/generate"
	"sceneforge/internal/jobstore"
	"sceneforge/internal/llm"
	"sceneforge/internal/llmclient"
	"sceneforge/internal/pipeline"
	"sceneforge/internal/repair"
	"sceneforge/internal/server"
	"sceneforge/internal/vision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Models.APIKey == "" {
		log.Fatal("GEMINI_API_KEY is not set")
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

	store := jobstore.NewFromEnv(cfg.Jobs.StorePath)
	store.EnsureLoaded()
	defer store.Close()

	scratch := filepath.Join(cfg.Jobs.Root, "scratch")
	driver := pipeline.New(store,
		generate.New(router, logger),
		repair.NewFixer(router, logger),
		vision.New(router, logger),
		scratch, logger)
	driver.Quality = cfg.Render.QualityFlag()
	driver.MaxRepair = cfg.Repair.MaxIterations

	if cfg.Artifact.Enabled {
		s3, err := artifact.NewS3Store(artifact.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			UseSSL:    cfg.Artifact.UseSSL,
		})
		if err != nil {
			log.Printf("artifact store disabled: %v", err)
		} else {
			driver.Artifacts = s3
		}
	}

	srv, err := server.New(store, driver, scratch, logger)
	if err != nil {
		log.Fatal(err)
	}

	h := withCORS(srv.Routes())
	log.Printf("Starting API server on %s (code=%s vision=%s)", cfg.Port, router.CodeModel(), router.VisionModel())
	log.Fatal(http.ListenAndServe(cfg.Port, h2c.NewHandler(h, &http2.Server{})))
}

// Simple CORS middleware
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
