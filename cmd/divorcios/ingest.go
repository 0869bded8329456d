package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/defensoria-civil/divorcios/memory"
)

// =============================================================================
// 📚 ingest 命令：导入共享知识
// =============================================================================

// knowledgeStore 是 ingest 需要的记忆能力
type knowledgeStore interface {
	AddKnowledge(ctx context.Context, title, content string) (int, error)
}

var _ knowledgeStore = (*memory.Store)(nil)

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	title := fs.String("title", "", "Title for the knowledge entry (defaults to the file name)")
	timeout := fs.Duration("timeout", 5*time.Minute, "Overall timeout")
	_ = fs.Parse(args)

	files := fs.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: divorcios ingest [--config path] [--title T] <file>...")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	app, err := NewApp(ctx, cfg, nil, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	total, err := ingestFiles(ctx, app.memory, files, *title, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Ingested %d chunks from %d file(s)\n", total, len(files))
}

// ingestFiles 逐个文件写入知识库；title 为空时使用文件名（去扩展名）
func ingestFiles(ctx context.Context, store knowledgeStore, files []string, title string, logger *zap.Logger) (int, error) {
	total := 0
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return total, fmt.Errorf("read %s: %w", path, err)
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			logger.Warn("skipping empty file", zap.String("path", path))
			continue
		}
		t := title
		if t == "" || len(files) > 1 {
			t = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		n, err := store.AddKnowledge(ctx, t, content)
		if err != nil {
			return total, fmt.Errorf("ingest %s: %w", path, err)
		}
		total += n
		logger.Info("file ingested", zap.String("path", path), zap.Int("chunks", n))
	}
	return total, nil
}
