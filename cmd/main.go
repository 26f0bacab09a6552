package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"filing-rag/internal/chromemdb"
	"filing-rag/internal/config"
	"filing-rag/internal/db"
	"filing-rag/internal/embedding"
	"filing-rag/internal/handlers"
	"filing-rag/internal/helper"
	"filing-rag/internal/ingest"
	"filing-rag/internal/llmservice"
	"filing-rag/internal/metrics"
	"filing-rag/internal/models"
	"filing-rag/internal/parser"
	"filing-rag/internal/rag"
	"filing-rag/internal/sentiment"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to the YAML config")
	entity := flag.String("entity", "", "Ticker the command applies to, e.g. AAPL")
	filingsDir := flag.String("filings", "", "Directory of filings to index for -entity")
	newsDir := flag.String("news", "", "Directory of news files to index for -entity")
	metricsFile := flag.String("metrics", "", "Metric workbook (.xlsx) to import")
	reset := flag.Bool("reset", false, "Rebuild indexes / metric table from scratch")
	query := flag.String("query", "", "Question to answer")
	dryRun := flag.Bool("dry-run", false, "Parse and chunk only, do not embed or store")
	initDB := flag.Bool("init-db", false, "Create the metric table")
	summarizeFile := flag.String("summarize", "", "Filing or news file to summarize")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	helper.SetupLogger(cfg.Log, os.Stderr)
	log.Debug().Interface("rag", cfg.RAG).Msg("Loaded config")

	ctx := context.Background()
	switch {
	case *initDB:
		initMetricDB(ctx, cfg, *reset)
	case *summarizeFile != "":
		summarize(ctx, cfg, *entity, *summarizeFile)
	case (*filingsDir != "" || *newsDir != "") && *query == "":
		indexEntity(ctx, cfg, *entity, *filingsDir, *newsDir, *reset, *dryRun)
	case *metricsFile != "" && *query == "":
		importMetrics(ctx, cfg, *metricsFile, *reset)
	case *query != "":
		ask(ctx, cfg, *entity, *query, *metricsFile)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func openMetricDB(ctx context.Context, cfg *config.Config) *bun.DB {
	dbInstance, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	if err := db.InitDB(ctx, dbInstance); err != nil {
		log.Fatal().Err(err).Msg("Error initializing database")
	}
	return dbInstance
}

func initMetricDB(ctx context.Context, cfg *config.Config, reset bool) {
	dbInstance, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	defer dbInstance.Close()

	if reset {
		if err := db.DropMetrics(ctx, dbInstance); err != nil {
			log.Fatal().Err(err).Msg("Error clearing metrics")
		}
	}
	if err := db.InitDB(ctx, dbInstance); err != nil {
		log.Fatal().Err(err).Msg("Error initializing database")
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("Metric table ready")
}

func importMetrics(ctx context.Context, cfg *config.Config, path string, reset bool) {
	records, err := metrics.LoadWorkbook(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading metric workbook")
	}
	if reset {
		initMetricDB(ctx, cfg, true)
	}
	dbInstance := openMetricDB(ctx, cfg)
	defer dbInstance.Close()

	if err := db.NewMetricStore(dbInstance).StoreMetrics(ctx, records...); err != nil {
		log.Fatal().Err(err).Msg("Error storing metrics")
	}
	log.Info().Int("records", len(records)).Str("file", path).Msg("Imported metrics")
}

func newIndexStores(cfg *config.Config) (*chromemdb.IndexStore, *chromemdb.IndexStore, *embedding.Retrying) {
	base, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	embedder := embedding.NewRetrying(base, cfg.Retry)

	open := func(source models.SourceType) *chromemdb.IndexStore {
		dir := filepath.Join(cfg.RAG.IndexDir, string(source))
		if err := helper.CreateFolder(dir); err != nil {
			log.Fatal().Err(err).Msg("Error creating folder")
		}
		store, err := chromemdb.NewIndexStore(chromemdb.Options{
			Dir:           dir,
			Source:        source,
			Dimension:     cfg.RAG.Dimension,
			EncryptionKey: cfg.RAG.EncryptionKey,
			Compress:      cfg.RAG.Compress,
		}, embedder)
		if err != nil {
			log.Fatal().Err(err).Msg("Error creating index store")
		}
		return store
	}
	return open(models.SourceFiling), open(models.SourceNews), embedder
}

func indexEntity(ctx context.Context, cfg *config.Config, entity, filingsDir, newsDir string, reset, dryRun bool) {
	if entity == "" {
		log.Fatal().Msg("Please provide the ticker with -entity")
	}
	chunker, err := parser.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating chunker")
	}

	sources := map[models.SourceType]string{models.SourceFiling: filingsDir, models.SourceNews: newsDir}
	if dryRun {
		summary := map[string]any{}
		for source, dir := range sources {
			if dir == "" {
				continue
			}
			docs, err := parser.LoadDir(dir, entity, source)
			if err != nil {
				log.Fatal().Err(err).Str("dir", dir).Msg("Error parsing documents")
			}
			var chunks int
			for _, doc := range docs {
				chunks += len(chunker.Chunk(doc))
			}
			summary[string(source)] = map[string]int{"documents": len(docs), "chunks": chunks}
		}
		helper.PrettyPrint(summary)
		return
	}

	filings, news, _ := newIndexStores(cfg)
	pipeline := ingest.NewPipeline(chunker, sentiment.NewLexicon(), cfg.RAG.BuildParallelism, filings, news)

	var jobs []ingest.Job
	for source, dir := range sources {
		if dir == "" {
			continue
		}
		docs, err := parser.LoadDir(dir, entity, source)
		if err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("Error parsing documents")
		}
		jobs = append(jobs, ingest.Job{Entity: entity, Source: source, Docs: docs, Reset: reset})
	}
	if err := pipeline.IndexAll(ctx, jobs); err != nil {
		log.Fatal().Err(err).Msg("Error building index")
	}

	for _, store := range []*chromemdb.IndexStore{filings, news} {
		if st, ok := store.Stats(entity); ok {
			log.Info().Str("source", string(store.Source())).Int("vectors", st.Vectors).Msg("Index ready")
		}
	}
}

func newGenerator(cfg *config.Config) *llmservice.Client {
	model, err := llmservice.NewModel(&cfg.InferenceLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing LLM")
	}
	return llmservice.NewClient(model, &cfg.InferenceLLM, cfg.Retry.GenerationAttempts)
}

func summarize(ctx context.Context, cfg *config.Config, entity, path string) {
	docs, err := parser.LoadFile(path, entity, models.SourceFiling)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Error parsing document")
	}
	texts := make([]string, 0, len(docs))
	for _, doc := range docs {
		texts = append(texts, doc.Text)
	}

	summary, err := rag.NewSummarizer(newGenerator(cfg), 0).Summarize(ctx, strings.Join(texts, "\n\n"))
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Error summarizing document")
	}
	helper.PrettyPrint(summary)
}

func ask(ctx context.Context, cfg *config.Config, entity, question, metricsFile string) {
	var store metrics.Store
	if metricsFile != "" {
		records, err := metrics.LoadWorkbook(metricsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Error reading metric workbook")
		}
		store = metrics.NewMemoryStore(records...)
	} else {
		dbInstance := openMetricDB(ctx, cfg)
		defer dbInstance.Close()
		store = db.NewMetricStore(dbInstance)
	}

	filings, news, embedder := newIndexStores(cfg)
	generator := newGenerator(cfg)

	retriever := rag.NewRetriever(embedder, filings, news, cfg.RAG.NewsWeight, cfg.RAG.TopK)
	chain, err := handlers.NewDefaultChain(handlers.Deps{Metrics: store, Retriever: retriever, Generator: generator})
	if err != nil {
		log.Fatal().Err(err).Msg("Error building handler chain")
	}

	answer, err := handlers.NewService(chain, cfg.RAG.RequestTimeout).Ask(ctx, entity, question)
	if err != nil {
		log.Fatal().Err(err).Msg("Error answering question")
	}
	helper.PrettyPrint(answer)
}
