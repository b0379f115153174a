// Command sennet-kb manages the pgvector knowledge base from the shell.
//
//	sennet-kb index <dir>      index every .md and .txt file under dir
//	sennet-kb search <query>   print the nearest documents
//	sennet-kb stats            print document counts per collection
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/attercap/sennet/internal/config"
	"github.com/attercap/sennet/pkg/knowledge"
	knowpg "github.com/attercap/sennet/pkg/knowledge/postgres"
	"github.com/attercap/sennet/pkg/provider/embeddings"
	ollamaembed "github.com/attercap/sennet/pkg/provider/embeddings/ollama"
	oaembed "github.com/attercap/sennet/pkg/provider/embeddings/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "sennet.yaml", "path to the YAML configuration file")
	topK := flag.Int("k", 5, "number of search results")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: sennet-kb [flags] index <dir> | search <query> | stats")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sennet-kb: %v\n", err)
		return 1
	}
	if cfg.Knowledge.PostgresDSN == "" {
		fmt.Fprintln(os.Stderr, "sennet-kb: knowledge.postgres_dsn is not configured")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder, err := buildEmbedder(cfg.Providers.Embeddings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sennet-kb: %v\n", err)
		return 1
	}

	store, err := knowpg.NewStore(ctx, cfg.Knowledge.PostgresDSN, embedder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sennet-kb: %v\n", err)
		return 1
	}
	defer store.Close()

	switch args[0] {
	case "index":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: sennet-kb index <dir>")
			return 2
		}
		return indexDir(ctx, store, args[1])
	case "search":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: sennet-kb search <query>")
			return 2
		}
		return search(ctx, store, strings.Join(args[1:], " "), *topK)
	case "stats":
		return stats(ctx, store)
	default:
		fmt.Fprintf(os.Stderr, "sennet-kb: unknown command %q\n", args[0])
		return 2
	}
}

// buildEmbedder constructs the embeddings provider named in the config.
func buildEmbedder(entry config.ProviderEntry) (embeddings.Provider, error) {
	switch entry.Name {
	case "ollama":
		return ollamaembed.New(entry.BaseURL, entry.Model)
	case "openai":
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	case "":
		return nil, fmt.Errorf("no embeddings provider configured")
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", entry.Name)
	}
}

// indexDir walks dir and upserts every markdown and text file into the docs
// collection, keyed by its path relative to dir.
func indexDir(ctx context.Context, store knowledge.Store, dir string) int {
	indexed := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		meta := map[string]any{"source": rel}
		if err := store.Index(ctx, knowledge.CollectionDocs, rel, text, meta); err != nil {
			return fmt.Errorf("index %s: %w", rel, err)
		}
		fmt.Printf("indexed %s (%d bytes)\n", rel, len(text))
		indexed++
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sennet-kb: %v\n", err)
		return 1
	}
	fmt.Printf("%d documents indexed\n", indexed)
	return 0
}

func search(ctx context.Context, store knowledge.Store, query string, k int) int {
	results, err := store.Search(ctx, query, k)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sennet-kb: %v\n", err)
		return 1
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return 0
	}
	for i, r := range results {
		doc := r.Document
		if len(doc) > 200 {
			doc = doc[:200] + "…"
		}
		fmt.Printf("%d. [%s] %s (distance %.3f)\n   %s\n", i+1, r.Collection, r.ID, r.Distance, doc)
	}
	return 0
}

func stats(ctx context.Context, store knowledge.Store) int {
	s, err := store.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sennet-kb: %v\n", err)
		return 1
	}
	for _, c := range knowledge.Collections() {
		fmt.Printf("%-15s %d\n", c, s.ByCollection[c])
	}
	fmt.Printf("%-15s %d\n", "total", s.Total)
	return 0
}
