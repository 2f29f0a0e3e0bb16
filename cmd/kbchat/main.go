package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"kbchat/internal/config"
	"kbchat/internal/domain"
	"kbchat/internal/kb"
	"kbchat/internal/provider/openai"
	"kbchat/internal/provider/tfidf"
	"kbchat/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var dataDir string
	var discover bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/kbchat/config.yaml if not provided)")
	flag.StringVar(&dataDir, "data", "", "Knowledge base data directory (overrides config data_dir)")
	flag.BoolVar(&discover, "discover", false, "Propose intents from the indexed corpus and exit")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	var cfg *config.Config
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg, cfgPath, err = config.LoadDefault()
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Debug("config loaded", zap.String("path", cfgPath))
	if dataDir == "" {
		dataDir = cfg.DataDir
	}

	embed, gen, err := buildProviders(cfg, dataDir)
	if err != nil {
		log.Fatalf("failed to build providers: %v", err)
	}

	base, err := kb.Open(cfg, dataDir, embed, gen, logger)
	if err != nil {
		log.Fatalf("failed to open knowledge base: %v", err)
	}

	if discover {
		intents, err := base.DiscoverIntents(context.Background())
		if err != nil {
			log.Fatalf("intent discovery failed: %v", err)
		}
		if len(intents) == 0 {
			fmt.Println("No new intents proposed.")
			return
		}
		for _, it := range intents {
			fmt.Printf("%s\t%s\n", it.Name, it.Description)
		}
		return
	}

	if _, err := tea.NewProgram(tui.New(base)).Run(); err != nil {
		log.Fatal(err)
	}
}

// buildProviders assembles the embedding and generation providers from
// config. The tfidf provider runs without a generation collaborator
// unless an OpenAI key is also configured.
func buildProviders(cfg *config.Config, dataDir string) (domain.EmbeddingProvider, domain.GenerationProvider, error) {
	switch cfg.Provider.Type {
	case "openai", "":
		o := cfg.Provider.OpenAI
		if o == nil {
			o = &config.OpenAIConfig{}
		}
		client, err := openai.New(openai.Config{
			BaseURL:    o.BaseURL,
			APIKeyEnv:  o.APIKeyEnv,
			EmbedModel: o.EmbedModel,
			ChatModel:  o.ChatModel,
			Timeout:    time.Duration(o.TimeoutSecs) * time.Second,
			MaxRetries: o.MaxRetries,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	case "tfidf":
		p, err := tfidf.Open(dataDir)
		if err != nil {
			return nil, nil, err
		}
		var gen domain.GenerationProvider
		if os.Getenv("OPENAI_API_KEY") != "" {
			if client, err := openai.New(openai.Config{}); err == nil {
				gen = client
			}
		}
		return p, gen, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider: %s", cfg.Provider.Type)
	}
}
