package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"kbchat/internal/config"
	"kbchat/internal/domain"
	"kbchat/internal/kb"
	"kbchat/internal/provider/openai"
	"kbchat/internal/provider/tfidf"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var dataDir string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional)")
	flag.StringVar(&dataDir, "data", "", "Knowledge base data directory (overrides config data_dir)")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) == 0 {
		fmt.Println("Usage: kbindex [--config=kbchat.yaml] [--data=kb] file1.txt|file1.json [file2 ...]")
		os.Exit(1)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	var cfg *config.Config
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if dataDir == "" {
		dataDir = cfg.DataDir
	}

	docs, err := loadDocuments(inputs)
	if err != nil {
		log.Fatalf("failed to load documents: %v", err)
	}

	embed, err := buildEmbedProvider(cfg, dataDir)
	if err != nil {
		log.Fatalf("failed to build embedding provider: %v", err)
	}

	base, err := kb.Open(cfg, dataDir, embed, nil, logger)
	if err != nil {
		log.Fatalf("failed to open knowledge base: %v", err)
	}

	progress := make(chan domain.ProgressEvent)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range progress {
			fmt.Printf("[%s] %s\n", ev.Phase, ev.Message)
		}
	}()

	summary, err := base.BuildIndex(context.Background(), docs, progress)
	close(progress)
	<-done
	if err != nil {
		log.Fatalf("indexing failed: %v", err)
	}
	fmt.Printf("done: %d chunks, %d new embeddings, %d reused, dimension %d\n",
		summary.TotalChunks, summary.NewEmbeddings, summary.ReusedEmbeddings, summary.Dimension)
}

func buildEmbedProvider(cfg *config.Config, dataDir string) (domain.EmbeddingProvider, error) {
	switch cfg.Provider.Type {
	case "openai", "":
		o := cfg.Provider.OpenAI
		if o == nil {
			o = &config.OpenAIConfig{}
		}
		return openai.New(openai.Config{
			BaseURL:    o.BaseURL,
			APIKeyEnv:  o.APIKeyEnv,
			EmbedModel: o.EmbedModel,
			ChatModel:  o.ChatModel,
			Timeout:    time.Duration(o.TimeoutSecs) * time.Second,
			MaxRetries: o.MaxRetries,
		})
	case "tfidf":
		return tfidf.Open(dataDir)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider.Type)
	}
}
