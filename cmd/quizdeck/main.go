package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/quizdeck/internal/assets"
	"github.com/pavelanni/quizdeck/internal/extract"
	"github.com/pavelanni/quizdeck/internal/handler"
	"github.com/pavelanni/quizdeck/internal/ingest"
	"github.com/pavelanni/quizdeck/internal/model"
	"github.com/pavelanni/quizdeck/internal/pdf"
	"github.com/pavelanni/quizdeck/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quizdeck",
		Short: "Quiz ingestion and auto-grading server",
	}

	serve := serveCmd()
	root.AddCommand(serve, ingestCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `quizdeck --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addIngestFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64("default-points", 1, "Points awarded to each extracted question")
	f.Float64("fallback-scale", 2, "Raster scale for the page-image fallback")
	f.Float64("fallback-threshold", 0.5, "Fraction of a page's questions that must fail parsing before the page is rasterized")
	f.String("default-title", "", "Quiz title used when none is supplied")
	f.Duration("import-timeout", 2*time.Minute, "Time budget for one extraction pass")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP quiz server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "quizdeck.db", "SQLite database path")
	f.String("assets-dir", "assets", "Directory for uploaded page images")
	addIngestFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <document.pdf>",
		Short: "Extract questions from a PDF into the database",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}
	f := cmd.Flags()
	f.String("db", "quizdeck.db", "SQLite database path")
	f.String("assets-dir", "assets", "Directory for uploaded page images")
	f.StringP("title", "t", "", "Quiz title (defaults to the file name)")
	f.String("description", "", "Quiz description")
	f.IntP("duration", "d", 0, "Quiz duration in minutes (0 = untimed)")
	f.Bool("force", false, "Re-import even if the file was already ingested")
	addIngestFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a quiz with its questions and rubrics as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "quizdeck.db", "SQLite database path")
	f.Int64("quiz-id", 0, "Quiz to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("quiz-id")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUIZDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("quizdeck")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/quizdeck")
	v.AddConfigPath("/etc/quizdeck")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func ingestConfig(v *viper.Viper) model.IngestConfig {
	return model.IngestConfig{
		DefaultPoints:     v.GetFloat64("default-points"),
		FallbackScale:     v.GetFloat64("fallback-scale"),
		FallbackThreshold: v.GetFloat64("fallback-threshold"),
		DefaultTitle:      v.GetString("default-title"),
		Timeout:           v.GetDuration("import-timeout"),
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	assetStore, err := assets.NewDir(v.GetString("assets-dir"), "/assets")
	if err != nil {
		return fmt.Errorf("open asset store: %w", err)
	}

	h := handler.New(db, assetStore, ingestConfig(v))

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)
	r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.Dir(assetStore.Root()))))

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"assets_dir", assetStore.Root(),
		"default_points", v.GetFloat64("default-points"),
		"fallback_scale", v.GetFloat64("fallback-scale"),
		"fallback_threshold", v.GetFloat64("fallback-threshold"),
		"import_timeout", v.GetDuration("import-timeout"),
	)
	return http.ListenAndServe(addr, r)
}

func runIngest(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	path := args[0]

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	hash := sha256sum(data)
	storedHash, err := db.GetImportedFileHash(path)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash && !v.GetBool("force") {
		slog.Info("document unchanged since last import, skipping", "path", path)
		return nil
	}

	doc, err := pdf.FromBytes(data)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer doc.Close()

	title := v.GetString("title")
	if title == "" {
		title = v.GetString("default-title")
	}
	if title == "" {
		title = path
	}

	cfg := ingestConfig(v)
	ctx := cmd.Context()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	res, err := extract.Run(ctx, doc, extract.Options{
		Title:             title,
		Description:       v.GetString("description"),
		Duration:          v.GetInt("duration"),
		DefaultPoints:     cfg.DefaultPoints,
		FallbackScale:     cfg.FallbackScale,
		FallbackThreshold: cfg.FallbackThreshold,
	})
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("extraction timed out after %s (retryable): %w", cfg.Timeout, err)
	case err != nil:
		return fmt.Errorf("extract %s: %w", path, err)
	}

	assetStore, err := assets.NewDir(v.GetString("assets-dir"), "/assets")
	if err != nil {
		return fmt.Errorf("open asset store: %w", err)
	}

	quizID, questionIDs, err := ingest.Persist(cmd.Context(), db, assetStore, res.Doc)
	if err != nil {
		return fmt.Errorf("persist quiz: %w", err)
	}
	if err := db.SetImportedFileHash(path, hash); err != nil {
		return fmt.Errorf("record import for %s: %w", path, err)
	}

	for _, w := range res.Warnings {
		slog.Warn("extraction warning", "detail", w.String())
	}
	slog.Info("imported quiz",
		"quiz_id", quizID,
		"path", path,
		"pages", doc.PageCount(),
		"questions", len(questionIDs),
		"warnings", len(res.Warnings),
	)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	view, err := db.GetQuizView(v.GetInt64("quiz-id"))
	if err != nil {
		return fmt.Errorf("load quiz %d: %w", v.GetInt64("quiz-id"), err)
	}

	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
