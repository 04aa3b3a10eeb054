package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	chatbot "github.com/shubhamagrawalwork/langgraph-tavily-chatbot"
	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/models/gemini"
	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/models/openai"
	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/server"
	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/tools"
)

const defaultSystemPrompt = "You are a helpful assistant. Use the web_search tool when the user asks about current events or anything you are unsure of."

func buildModel(cfg *chatbot.Config) (chatbot.Model, error) {
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}

	switch cfg.ModelProvider {
	case "openai":
		return &openai.OpenAI_Model{Model: cfg.ModelName, SystemPrompt: prompt}, nil
	case "gemini":
		return &gemini.Gemini_Model{Model: cfg.ModelName, SystemPrompt: prompt}, nil
	default:
		return nil, fmt.Errorf("unknown model provider: %s", cfg.ModelProvider)
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment")
	}

	cfg := chatbot.NewConfig()

	store, err := cfg.BuildStore()
	if err != nil {
		log.Fatalf("Failed to open message store: %v", err)
	}
	defer store.Close()

	model, err := buildModel(cfg)
	if err != nil {
		log.Fatalf("Failed to build model: %v", err)
	}

	agent := chatbot.New_Agent(model, tools.DefaultTools())

	sweeper := server.NewRetentionSweeper(store, cfg.RetentionWindow, cfg.RetentionSchedule)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("Failed to start retention sweeper: %v", err)
	}
	defer sweeper.Stop()

	router := gin.Default()
	srv := server.NewServer(&agent, store)
	srv.RegisterRoutes(router)

	log.Printf("Chat service listening on %s (provider=%s model=%s store=%s)",
		cfg.Addr, cfg.ModelProvider, cfg.ModelName, cfg.StoreType)
	if err := router.Run(cfg.Addr); err != nil {
		log.Fatalf("Server exited: %v", err)
	}
}
