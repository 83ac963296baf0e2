// Package generation orchestrates the produce-mirror-record pipeline: ask
// the image provider for URLs, mirror each one into durable storage, and
// record the outcome in the registry.
package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mockupforge/mockupforge/internal/app/domain/asset"
	"github.com/mockupforge/mockupforge/internal/app/metrics"
	"github.com/mockupforge/mockupforge/internal/generator"
	"github.com/mockupforge/mockupforge/internal/mirror"
	"github.com/mockupforge/mockupforge/pkg/logger"
)

const minPromptLength = 5

// Generator produces image URLs for a prompt.
type Generator interface {
	Generate(ctx context.Context, req generator.Request) ([]string, error)
}

// Mirrorer copies a remote image into durable storage, falling back to the
// source URL when the copy fails.
type Mirrorer interface {
	MirrorOrFallback(ctx context.Context, sourceURL string, opts mirror.Options) mirror.Result
}

// Recorder persists asset records.
type Recorder interface {
	Record(ctx context.Context, a asset.Asset) (asset.Asset, error)
}

// Item is the outcome for one generated image.
type Item struct {
	AssetID    string `json:"imageId"`
	DisplayURL string `json:"url"`
	// Mirrored is false when the display URL is the provider's ephemeral
	// source URL rather than a durable storage link.
	Mirrored bool `json:"mirrored"`
}

// Service runs the generation pipeline.
type Service struct {
	generator Generator
	mirrorer  Mirrorer
	recorder  Recorder
	subfolder string
	log       *logger.Logger
}

// New constructs a generation service. subfolder names the storage folder
// generated images are mirrored into.
func New(gen Generator, m Mirrorer, rec Recorder, subfolder string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("generation")
	}
	if subfolder == "" {
		subfolder = "generated"
	}
	return &Service{generator: gen, mirrorer: m, recorder: rec, subfolder: subfolder, log: log}
}

// Generate produces Count images for the prompt, mirrors each into storage,
// and records every one in the registry. Items are returned in provider
// order. Mirroring is lenient: a failed copy records the source URL and the
// item is still returned. A registry write failure fails the whole call,
// since callers would otherwise hold URLs the system has no record of.
func (s *Service) Generate(ctx context.Context, req generator.Request) ([]Item, error) {
	if len(strings.TrimSpace(req.Prompt)) < minPromptLength {
		return nil, fmt.Errorf("prompt must be at least %d characters", minPromptLength)
	}

	start := time.Now()
	urls, err := s.generator.Generate(ctx, req)
	if err != nil {
		metrics.RecordGeneration("error", time.Since(start))
		return nil, fmt.Errorf("generate images: %w", err)
	}
	metrics.RecordGeneration("ok", time.Since(start))

	items := make([]Item, 0, len(urls))
	for _, sourceURL := range urls {
		res := s.mirrorer.MirrorOrFallback(ctx, sourceURL, mirror.Options{
			Subfolder:  s.subfolder,
			FilePrefix: "artwork",
		})
		metrics.RecordMirrorOutcome(res.StorageURL != "")

		recorded, err := s.recorder.Record(ctx, asset.Asset{
			Prompt:      req.Prompt,
			SourceURL:   sourceURL,
			StoragePath: res.StoragePath,
			StorageURL:  res.StorageURL,
		})
		if err != nil {
			return nil, fmt.Errorf("record asset: %w", err)
		}

		items = append(items, Item{
			AssetID:    recorded.ID,
			DisplayURL: recorded.DisplayURL,
			Mirrored:   res.StorageURL != "",
		})
	}

	s.log.WithFields(map[string]interface{}{
		"requested": len(urls),
		"mirrored":  countMirrored(items),
	}).Info("generation pipeline complete")
	return items, nil
}

func countMirrored(items []Item) int {
	n := 0
	for _, it := range items {
		if it.Mirrored {
			n++
		}
	}
	return n
}
