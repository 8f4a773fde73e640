package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/garyjia/nfe-ingest/internal/config"
	"github.com/garyjia/nfe-ingest/internal/container"
	"github.com/garyjia/nfe-ingest/internal/domain/entity"
	"github.com/garyjia/nfe-ingest/pkg/utils"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"go.uber.org/zap"
)

// Extensions picked up when a directory is given. Files named explicitly
// are always submitted.
var walkExtensions = map[string]bool{
	".xml":  true,
	".pdf":  true,
	".csv":  true,
	".xlsx": true,
	".zip":  true,
}

func main() {
	flags := ff.NewFlagSet("nfe-import")
	var (
		configPath = flags.StringLong("config", "", "YAML configuration file (defaults and environment only when empty)")
		origin     = flags.StringLong("origin", string(entity.OriginUpload), "origin tag stored on imported invoices: upload or email")
		logLevel   = flags.StringLong("log-level", "warn", "log level written to stderr")
	)

	if err := ff.Parse(flags, os.Args[1:], ff.WithEnvVarPrefix("NFE_IMPORT")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(flags))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flags.GetArgs()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(flags))
		fmt.Fprintln(os.Stderr, "error: no files or directories given")
		os.Exit(1)
	}

	tag := entity.Origin(*origin)
	if tag != entity.OriginUpload && tag != entity.OriginEmail {
		fmt.Fprintf(os.Stderr, "error: unknown origin %q\n", *origin)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      *logLevel,
		OutputPath: "stderr",
		Format:     "console",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	files, err := collect(args)
	if err != nil {
		logger.Error("Failed to read input", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	containerCfg := cfg.ToContainerConfig()
	containerCfg.Mail.Enabled = false

	c, err := container.NewContainer(containerCfg, logger)
	if err != nil {
		logger.Error("Failed to create container", zap.Error(err))
		os.Exit(1)
	}
	if err := c.Start(ctx); err != nil {
		logger.Error("Failed to start container", zap.Error(err))
		os.Exit(1)
	}

	report, importErr := c.Services().Import.ImportFiles(ctx, files, tag)
	if err := c.Close(); err != nil {
		logger.Warn("Container shutdown reported errors", zap.Error(err))
	}

	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logger.Error("Failed to write report", zap.Error(err))
		}
	}

	switch {
	case importErr != nil:
		logger.Error("Import aborted", zap.Error(importErr))
		os.Exit(1)
	case report.Failed > 0:
		os.Exit(2)
	}
}

// collect reads every named file and every supported file below every named
// directory, in lexical order per directory.
func collect(paths []string) ([]entity.SourceFile, error) {
	var files []entity.SourceFile
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			data, err := os.ReadFile(p)
			if err != nil {
				return nil, err
			}
			files = append(files, entity.SourceFile{Name: filepath.Base(p), Data: data})
			continue
		}

		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() && walkExtensions[strings.ToLower(filepath.Ext(path))] {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", p, err)
		}

		sort.Strings(found)
		for _, path := range found {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			files = append(files, entity.SourceFile{Name: filepath.Base(path), Data: data})
		}
	}
	return files, nil
}
