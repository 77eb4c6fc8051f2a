package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/taicho/postgres-to-mongo/internal/config"
	"github.com/taicho/postgres-to-mongo/internal/etl"
	"github.com/taicho/postgres-to-mongo/pkg/database"
	"github.com/taicho/postgres-to-mongo/pkg/logger"
	"github.com/taicho/postgres-to-mongo/pkg/models"
)

type session struct {
	cfg          *config.Config
	provider     *database.Provider
	converter    *etl.TableConverter
	translations []*models.TableTranslation
}

func openSession(opts *Options, extra ...etl.Option) (*session, error) {
	v, err := config.NewViper(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(v)
	if err != nil {
		return nil, err
	}
	if opts.BatchSize > 0 {
		cfg.BatchSize = opts.BatchSize
	}
	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	if err := logger.InitLogger(opts.LogFile, level); err != nil {
		return nil, err
	}

	translations, err := config.LoadMapping(opts.MappingFile)
	if err != nil {
		return nil, err
	}
	logger.Infof("Loaded %d tables from %s", len(translations), opts.MappingFile)

	provider := database.NewProvider(cfg)
	converter := etl.NewTableConverter(converterOptions(cfg, opts), provider, extra...)
	return &session{cfg: cfg, provider: provider, converter: converter, translations: translations}, nil
}

func converterOptions(cfg *config.Config, opts *Options) etl.Options {
	return etl.Options{
		BatchSize:           cfg.BatchSize,
		IncludeNulls:        cfg.IncludeNulls,
		CacheDirectory:      cfg.CacheDirectory,
		UseMetadataCache:    cfg.UseMetadataCache,
		CreateMetadataCache: cfg.CreateMetadataCache,
		DryRun:              opts.DryRun,
	}
}

func (s *session) close(ctx context.Context) {
	if err := s.converter.Close(ctx); err != nil {
		logger.Warnf("closing converter: %v", err)
	}
	if err := s.provider.Close(ctx); err != nil {
		logger.Warnf("closing connections: %v", err)
	}
	logger.Close()
}

func runConvert(ctx context.Context, opts *Options, progressOut io.Writer) error {
	progress := newProgressReporter(progressOut)
	defer progress.close()

	s, err := openSession(opts, etl.WithProgress(progress.update))
	if err != nil {
		return err
	}
	defer s.close(ctx)

	if opts.DryRun {
		logger.Info("Dry run: nothing will be written to MongoDB")
	}
	if err := s.converter.ConvertTables(ctx, s.translations...); err != nil {
		return err
	}
	logger.Info("Conversion finished.")
	return nil
}

func runSchema(ctx context.Context, opts *Options, out io.Writer) error {
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	if err := s.converter.GenerateSchemas(ctx, s.translations...); err != nil {
		return err
	}
	return writeJSON(opts.Output, out, s.converter.Schemas())
}

func runTranslators(ctx context.Context, opts *Options, out io.Writer) error {
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	defs, err := s.converter.CreateTranslatorDefinitions(ctx, s.translations...)
	if err != nil {
		return err
	}
	return writeJSON(opts.Output, out, defs)
}

// writeJSON writes v as indented JSON to path, or to out when path is empty.
func writeJSON(path string, out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err := out.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	logger.Infof("Wrote %s", path)
	return nil
}
