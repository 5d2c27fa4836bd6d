package app

import (
	"imagine-chat/internal/auth"
	"imagine-chat/internal/cache"
	"imagine-chat/internal/config"
	"imagine-chat/internal/repository/db"
	chatService "imagine-chat/internal/service/chat"
	conversationService "imagine-chat/internal/service/conversation"
	galleryService "imagine-chat/internal/service/gallery"
	"imagine-chat/internal/service/llm"
	"imagine-chat/internal/service/mutation"
	"imagine-chat/internal/service/pagination"
	profileService "imagine-chat/internal/service/profile"
	"imagine-chat/internal/service/softdelete"
)

// Config holds all application dependencies and configuration
type Config struct {
	// Database interface for data persistence
	DB db.Database
	// Centralized application configuration
	AppConfig *config.AppConfig
	// Cache shared by every service; owned by Config and closed with it
	Cache *cache.Store

	Coordinator *mutation.Coordinator
	Policy      *softdelete.Policy
	Pages       *pagination.Manager

	Auth          *auth.Service
	Chat          *chatService.ChatService
	Conversations *conversationService.ConversationService
	Gallery       *galleryService.GalleryService
	Profiles      *profileService.ProfileService
}

// NewConfig wires the sync engine and services around one cache
func NewConfig(database db.Database, appConfig *config.AppConfig, completer llm.TextCompleter, images llm.ImageGenerator, opts ...cache.Option) *Config {
	store := cache.New(opts...)
	coordinator := mutation.NewCoordinator(store)
	policy := softdelete.NewPolicy(database, appConfig.Sync.CascadeSweepBatch)
	pages := pagination.NewManager(database, store, appConfig.Sync)
	orchestrator := chatService.NewOrchestrator(database, completer, images)

	return &Config{
		DB:            database,
		AppConfig:     appConfig,
		Cache:         store,
		Coordinator:   coordinator,
		Policy:        policy,
		Pages:         pages,
		Auth:          auth.NewService(database, appConfig.Auth),
		Chat:          chatService.NewChatService(database, coordinator, pages, orchestrator),
		Conversations: conversationService.NewConversationService(database, coordinator, policy, appConfig.Sync),
		Gallery:       galleryService.NewGalleryService(database, store, appConfig.Sync.GalleryLimit),
		Profiles:      profileService.NewProfileService(database, coordinator, policy),
	}
}

// Close stops background cache refetches
func (c *Config) Close() {
	c.Cache.Close()
}

// ModelsConfig returns the models catalogue
func (c *Config) ModelsConfig() *config.ModelsConfig {
	return c.AppConfig.Models
}
