package main

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/reghealth/navigator/internal/models"
	cfgPkg "github.com/reghealth/navigator/pkg/config"
	"github.com/reghealth/navigator/pkg/contextpack"
	"github.com/reghealth/navigator/pkg/index"
	"github.com/reghealth/navigator/pkg/llm"
	"github.com/reghealth/navigator/pkg/retriever"
	"github.com/reghealth/navigator/pkg/segmenter"
	"github.com/reghealth/navigator/pkg/service"
	"github.com/reghealth/navigator/pkg/store"
	"github.com/reghealth/navigator/pkg/tokenizer"
	"github.com/reghealth/navigator/server"
)

func main() {
	var configPath, ingestDir string
	var serve, usePostgres bool
	var topK int

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&ingestDir, "ingest", "", "Directory of rule XML documents to ingest")
	flag.BoolVar(&serve, "serve", false, "Start the HTTP API server")
	flag.BoolVar(&usePostgres, "pg", false, "Also store chunks and embeddings in Postgres")
	flag.IntVar(&topK, "k", 0, "Number of chunks to retrieve per question")
	flag.Parse()

	config, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if errs := config.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config error: %v", e)
		}
		os.Exit(1)
	}

	if ingestDir != "" {
		if err := runIngest(config, ingestDir, usePostgres); err != nil {
			log.Fatal(err)
		}
		return
	}

	svc, err := buildService(config)
	if err != nil {
		log.Fatal(err)
	}

	if serve {
		srv := server.New(server.Config{Port: config.Server.Port}, svc)
		log.Fatal(srv.ListenAndServe())
	}

	if err := runChat(config, svc, topK); err != nil {
		log.Fatal(err)
	}
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func runIngest(config *cfgPkg.Config, dir string, usePostgres bool) error {
	color.Blue("\nIngesting rule documents from %s\n", dir)

	tok, err := tokenizer.NewWithConfig(tokenizer.TokenizerConfig{
		Model:        config.Embedder.Model,
		MaxTokens:    config.Embedder.BatchTokenLimit,
		SafetyMargin: config.Embedder.SafetyMargin,
	})
	if err != nil {
		return err
	}

	seg := segmenter.NewWithConfig(segmenter.SegmenterConfig{
		ChunkWords:       config.Segmenter.ChunkWords,
		OverlapSentences: config.Segmenter.OverlapSentences,
		OnDocument: func(path string, chunks int) {
			color.Green("✓ %s: %d chunks", path, chunks)
		},
	})

	batch, err := seg.ProcessDir(dir)
	if err != nil {
		return fmt.Errorf("failed to walk %s: %v", dir, err)
	}
	color.Green("\n✓ Segmented %d documents into %d chunks\n", len(batch.Processed), len(batch.Chunks))
	if len(batch.Failed) > 0 {
		color.Yellow("⚠ Skipped %d malformed documents:", len(batch.Failed))
		for _, f := range batch.Failed {
			color.Yellow("  - %s: %v", f.Path, f.Err)
		}
	}
	if len(batch.Chunks) == 0 {
		return fmt.Errorf("no chunks produced from %s", dir)
	}

	// Length-enforcement stage: split any chunk whose token count exceeds
	// the embedding API's per-request ceiling.
	var records []models.Chunk
	for _, chunk := range batch.Chunks {
		for _, part := range tok.Split(chunk.Text) {
			record := chunk
			record.Text = part
			sum := sha256.Sum256([]byte(part))
			record.Hash = hex.EncodeToString(sum[:])
			record.Metadata = chunk.Metadata.Clone()
			records = append(records, record)
		}
	}
	if len(records) > len(batch.Chunks) {
		color.Blue("Split oversized chunks: %d records to embed", len(records))
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		APIKey:            config.LLM.APIKey,
		BaseURL:           config.LLM.BaseURL,
		Model:             config.Embedder.Model,
		BatchTokenLimit:   config.Embedder.BatchTokenLimit,
		SafetyMargin:      config.Embedder.SafetyMargin,
		RequestsPerSecond: config.Embedder.RateLimit,
	}, tok)
	if err != nil {
		return err
	}

	embeddingBar := getProgressBar(len(records), "🔄 Generating embeddings...")
	ctx := context.Background()
	var embeddings [][]float32
	const step = 100
	for i := 0; i < len(records); i += step {
		end := i + step
		if end > len(records) {
			end = len(records)
		}
		texts := make([]string, 0, end-i)
		for _, record := range records[i:end] {
			texts = append(texts, record.Text)
		}
		vectors, err := embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %v", err)
		}
		embeddings = append(embeddings, vectors...)
		embeddingBar.Add(end - i)
	}
	embeddingBar.Finish()

	idx, err := index.Build(embeddings)
	if err != nil {
		return fmt.Errorf("failed to build index: %v", err)
	}
	if err := idx.Save(config.Data.IndexPath); err != nil {
		return err
	}
	chunkStore := store.NewChunkStore(records)
	if err := chunkStore.Save(config.Data.ChunksPath); err != nil {
		return err
	}
	color.Green("\n✓ Saved %d vectors to %s and %d records to %s\n",
		idx.NTotal(), config.Data.IndexPath, chunkStore.Len(), config.Data.ChunksPath)

	if usePostgres {
		pg, err := store.NewPGVectorWithConfig(store.PGVectorConfig{
			ConnString: config.Database.URL,
			TableName:  config.Database.TableName,
			VectorDim:  config.Database.VectorDim,
			BatchSize:  config.Database.BatchSize,
		})
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Reset(ctx); err != nil {
			return err
		}
		if err := pg.Store(ctx, records, embeddings); err != nil {
			return err
		}
		color.Green("✓ Stored %d rows in Postgres\n", len(records))
	}

	return nil
}

func buildService(config *cfgPkg.Config) (*service.Service, error) {
	tok, err := tokenizer.NewWithConfig(tokenizer.TokenizerConfig{
		Model:        config.Embedder.Model,
		MaxTokens:    config.Embedder.BatchTokenLimit,
		SafetyMargin: config.Embedder.SafetyMargin,
	})
	if err != nil {
		return nil, err
	}

	idx, err := index.Load(config.Data.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load index (run -ingest first): %v", err)
	}
	chunks, err := store.LoadChunks(config.Data.ChunksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk store (run -ingest first): %v", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		APIKey:            config.LLM.APIKey,
		BaseURL:           config.LLM.BaseURL,
		Model:             config.Embedder.Model,
		BatchTokenLimit:   config.Embedder.BatchTokenLimit,
		SafetyMargin:      config.Embedder.SafetyMargin,
		RequestsPerSecond: config.Embedder.RateLimit,
	}, tok)
	if err != nil {
		return nil, err
	}

	chatEngine, err := llm.NewChatWithConfig(llm.ChatConfig{
		APIKey:      config.LLM.APIKey,
		BaseURL:     config.LLM.BaseURL,
		Model:       config.LLM.Model,
		Temperature: config.LLM.Temperature,
		MaxTokens:   config.LLM.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	ret := retriever.NewWithConfig(retriever.RetrieverConfig{
		TopK:       config.Retriever.TopK,
		Oversample: config.Retriever.Oversample,
	}, embedder, idx, chunks)

	assembler := contextpack.NewWithConfig(contextpack.AssemblerConfig{
		MaxTokens: config.Context.MaxTokens,
	}, tok)

	return service.NewWithConfig(service.ServiceConfig{
		TopK: config.Retriever.AskTopK,
	}, ret, assembler, chatEngine, chunks), nil
}

func runChat(config *cfgPkg.Config, svc *service.Service, topK int) error {
	color.Cyan("\nAsk about Medicare rules (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.ToLower(query) == "exit" {
			break
		}

		filters := retriever.InferFilters(query)
		spinner := getSpinner("🔍 Searching rules...")
		answer := svc.Ask(context.Background(), query, filters, topK)
		spinner.Finish()
		fmt.Print("\r")

		if answer.FellBack {
			color.Yellow("⚠ Filters matched nothing, answered from the full corpus")
		}

		assistantPrompt("\nAssistant: %s\n", answer.Answer)
		color.Blue("Confidence: %.2f (%s, %d sources)", answer.Confidence, answer.RetrievalMethod, answer.TotalSources)
		for _, source := range answer.SourcesUsed {
			color.Blue("  - Source %d [%s %s]: %s",
				source.SourceID, source.Metadata.Program, source.Metadata.RuleType, source.TextPreview)
		}
	}

	return nil
}
