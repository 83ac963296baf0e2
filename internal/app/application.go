package app

import (
	"github.com/mockupforge/mockupforge/internal/app/services/assets"
	"github.com/mockupforge/mockupforge/internal/app/services/generation"
	"github.com/mockupforge/mockupforge/internal/app/services/subscriptions"
	"github.com/mockupforge/mockupforge/internal/app/storage"
	"github.com/mockupforge/mockupforge/internal/app/storage/memory"
	"github.com/mockupforge/mockupforge/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Assets        storage.AssetStore
	Subscriptions storage.SubscriptionStore
}

// Backends are the external capabilities the services depend on. Generator
// and Mirrorer are required for the generation pipeline; Deleter may be nil,
// which turns remote deletes into registry-only deletes.
type Backends struct {
	Generator generation.Generator
	Mirrorer  generation.Mirrorer
	Deleter   assets.StorageDeleter
	// Subfolder names the storage folder generated images land in.
	Subfolder string
}

// Application ties domain services together.
type Application struct {
	log *logger.Logger

	Assets        *assets.Service
	Generation    *generation.Service
	Subscriptions *subscriptions.Service
}

// New builds a fully initialised application with the provided stores and
// backends.
func New(stores Stores, backends Backends, log *logger.Logger) *Application {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Assets == nil {
		stores.Assets = mem
	}
	if stores.Subscriptions == nil {
		stores.Subscriptions = mem
	}

	assetService := assets.New(stores.Assets, backends.Deleter, log)
	generationService := generation.New(backends.Generator, backends.Mirrorer, assetService, backends.Subfolder, log)
	subscriptionService := subscriptions.New(stores.Subscriptions, log)

	return &Application{
		log:           log,
		Assets:        assetService,
		Generation:    generationService,
		Subscriptions: subscriptionService,
	}
}
