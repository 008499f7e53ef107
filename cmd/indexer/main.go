// cmd/indexer/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ericyu4real/mscac-chatbot/internal/config"
	"github.com/ericyu4real/mscac-chatbot/internal/database"
	"github.com/ericyu4real/mscac-chatbot/internal/index"
	"github.com/ericyu4real/mscac-chatbot/internal/llm"
	"github.com/ericyu4real/mscac-chatbot/internal/seeder"
	"github.com/ericyu4real/mscac-chatbot/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Program pages, in the order they are crawled
var ProgramPages = []seeder.Page{
	{Title: "MScAC Program", URL: "https://mscac.utoronto.ca/", Selector: "main"},
	{Title: "Program Overview", URL: "https://mscac.utoronto.ca/program", Selector: "main"},
	{Title: "Admissions", URL: "https://mscac.utoronto.ca/admissions", Selector: "main"},
	{Title: "How to Apply", URL: "https://mscac.utoronto.ca/admissions/how-to-apply", Selector: "main"},
	{Title: "Tuition and Funding", URL: "https://mscac.utoronto.ca/admissions/tuition-funding", Selector: "main"},
	{Title: "Applied Research Internship", URL: "https://mscac.utoronto.ca/internships", Selector: "main"},
	{Title: "Industry Partners", URL: "https://mscac.utoronto.ca/partners", Selector: "main"},
	{Title: "Current Students", URL: "https://mscac.utoronto.ca/current-students", Selector: "main"},
	{Title: "FAQ", URL: "https://mscac.utoronto.ca/faq", Selector: "main"},
	{Title: "CS Course Timetable", URL: "https://web.cs.toronto.edu/graduate/timetable", Selector: "main"},
	{Title: "Statistics Course Timetable", URL: "https://www.statistics.utoronto.ca/graduate-timetable/current-upcoming-timetable", Selector: "main"},
	{Title: "Mental Health Services", URL: "https://studentlife.utoronto.ca/service/mental-health-clinical-services/", Selector: "main"},
}

var (
	dryRun       = flag.Bool("dry-run", false, "Crawl and chunk only; no embeddings or writes")
	verbose      = flag.Bool("verbose", false, "Enable verbose logging")
	output       = flag.String("output", "", "Local index file (default index.path from config)")
	toQdrant     = flag.Bool("qdrant", false, "Also upload to the configured Qdrant collection")
	pageLimit    = flag.Int("limit", 0, "Limit number of pages to process (0 = all)")
	delay        = flag.Duration("delay", 2*time.Second, "Delay between requests")
	chunkSize    = flag.Int("chunk-size", 1000, "Maximum chunk size in bytes")
	chunkOverlap = flag.Int("chunk-overlap", 200, "Bytes of overlap between consecutive chunks")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	logger := utils.GetLogger()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	if *chunkSize < seeder.MinChunkSize {
		logger.WithField("chunk_size", *chunkSize).Warnf("Chunk size raised to %d", seeder.MinChunkSize)
		*chunkSize = seeder.MinChunkSize
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if !*dryRun && cfg.OpenAI.APIKey == "" {
		logger.WithError(config.ErrMissingAPIKey).Fatal("Cannot embed without a provider key")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pages := ProgramPages
	if *pageLimit > 0 && *pageLimit < len(pages) {
		pages = pages[:*pageLimit]
		logger.WithField("limit", *pageLimit).Info("Limited pages to process")
	}

	processor := seeder.NewContentProcessor()
	crawler := seeder.NewCrawler(seeder.CrawlerConfig{Delay: *delay}, processor, logger)

	docs, err := crawler.Crawl(ctx, pages)
	if err != nil {
		logger.WithError(err).Fatal("Crawl failed")
	}

	if *dryRun {
		for _, doc := range docs {
			chunks := processor.SplitIntoChunks(doc.Content, *chunkSize, *chunkOverlap)
			logger.WithFields(logrus.Fields{
				"page":           doc.Page.Title,
				"content_length": len(doc.Content),
				"words":          processor.CountWords(doc.Content),
				"chunks":         len(chunks),
				"hash":           utils.MD5Hash(doc.Content)[:8],
			}).Info("DRY RUN: Would index page")
		}
		return
	}

	provider := llm.NewOpenAI(llm.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		Retry:          llm.RetryConfig{MaxRetries: cfg.OpenAI.MaxRetries},
	}, logger)

	builder := seeder.NewBuilder(provider, processor, seeder.BuilderConfig{
		ChunkSize:    *chunkSize,
		ChunkOverlap: *chunkOverlap,
	}, logger)

	items, err := builder.Build(ctx, docs)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build index entries")
	}
	if len(items) == 0 {
		logger.Fatal("No index entries were produced")
	}

	path := *output
	if path == "" {
		path = cfg.Index.Path
	}
	if err := index.WriteLocal(path, index.File{
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		Dimension:      len(items[0].Embedding),
		Entries:        items,
	}); err != nil {
		logger.WithError(err).Fatal("Failed to write local index")
	}
	logger.WithFields(logrus.Fields{
		"path":    path,
		"entries": len(items),
	}).Info("Local index written")

	if *toQdrant {
		if err := uploadQdrant(ctx, cfg, items, logger); err != nil {
			logger.WithError(err).Fatal("Qdrant upload failed")
		}
	}

	invalidateCache(ctx, cfg, logger)

	logger.Info("Indexing completed successfully!")
}

func uploadQdrant(ctx context.Context, cfg *config.Config, items []index.StoredItem, logger *logrus.Logger) error {
	q, err := index.NewQdrant(ctx, index.QdrantConfig{
		Host:       cfg.Index.Qdrant.Host,
		Port:       cfg.Index.Qdrant.Port,
		APIKey:     cfg.Index.Qdrant.APIKey,
		UseTLS:     cfg.Index.Qdrant.UseTLS,
		Collection: cfg.Index.Qdrant.Collection,
	}, logger)
	if err != nil {
		return err
	}
	defer q.Close()

	if err := q.Reset(ctx); err != nil {
		return err
	}

	const batchSize = 100
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		if err := q.Upsert(ctx, items[start:end], uint64(start)); err != nil {
			return err
		}
		logger.WithField("progress", end).Debug("Qdrant batch uploaded")
	}

	logger.WithFields(logrus.Fields{
		"collection": cfg.Index.Qdrant.Collection,
		"points":     q.Len(),
	}).Info("Qdrant collection rebuilt")
	return nil
}

// invalidateCache drops cached retrievals that point at the old index
func invalidateCache(ctx context.Context, cfg *config.Config, logger *logrus.Logger) {
	if cfg.Redis.URL == "" {
		return
	}

	manager, err := database.NewManager(&database.Config{
		RedisURL: cfg.Redis.URL,
		LogLevel: cfg.LogLevel,
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("Could not connect to Redis; cached retrievals may be stale")
		return
	}
	defer manager.Close()

	if _, err := database.NewCache(manager.Redis, logger).InvalidateRetrieval(ctx); err != nil {
		logger.WithError(err).Warn("Failed to invalidate retrieval cache")
	}
}
