package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
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

	"github.com/pavelanni/gradesheet/internal/eval"
	"github.com/pavelanni/gradesheet/internal/extract"
	"github.com/pavelanni/gradesheet/internal/handler"
	"github.com/pavelanni/gradesheet/internal/keystore"
	"github.com/pavelanni/gradesheet/internal/model"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gradesheet",
		Short: "Automated answer sheet grading",
	}

	serve := serveCmd()
	root.AddCommand(serve, evaluateCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `gradesheet --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP grading server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "gradesheet.db", "SQLite database path")
	f.StringSliceP("tests", "t", nil, "Paths to test-bank JSON files (repeatable)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible vision API base URL")
	f.String("llm-key", "ollama", "API key for extraction provider")
	f.String("llm-model", "llama3.2-vision", "Vision model name")
	f.Duration("extract-timeout", 2*time.Minute, "Per-document extraction timeout")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Grade a single answer sheet from the command line",
		RunE:  runEvaluate,
	}
	f := cmd.Flags()
	f.String("db", "gradesheet.db", "SQLite database path")
	f.Int64("test-id", 0, "Test identifier (required)")
	f.StringP("document", "d", "", "Path to a scanned answer sheet image")
	f.String("answers-file", "", "Path to pre-extracted answers JSON (skips the provider call)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible vision API base URL")
	f.String("llm-key", "ollama", "API key for extraction provider")
	f.String("llm-model", "llama3.2-vision", "Vision model name")
	f.Duration("extract-timeout", 2*time.Minute, "Per-document extraction timeout")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("test-id")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored evaluation reports as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "gradesheet.db", "SQLite database path")
	f.Int64("test-id", 0, "Only export reports for this test (0 = all)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
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

	v.SetEnvPrefix("GRADESHEET")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("gradesheet")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/gradesheet")
	v.AddConfigPath("/etc/gradesheet")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := keystore.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := loadTestBanks(db, v.GetStringSlice("tests")); err != nil {
		return fmt.Errorf("load test banks: %w", err)
	}

	extractor := extract.NewClient(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
	)
	if err := extractor.Ping(context.Background()); err != nil {
		return fmt.Errorf("extraction provider health check: %w", err)
	}
	slog.Info("extraction provider OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	orch := eval.New(extractor, db,
		eval.WithExtractionTimeout(v.GetDuration("extract-timeout")),
	)

	h := handler.New(db, orch)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"extract_timeout", v.GetDuration("extract-timeout"),
	)
	return http.ListenAndServe(addr, r)
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := keystore.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	docPath := v.GetString("document")
	answersPath := v.GetString("answers-file")
	if (docPath == "") == (answersPath == "") {
		return fmt.Errorf("exactly one of --document or --answers-file is required")
	}

	var extractor extract.Extractor
	var doc model.Document
	if answersPath != "" {
		static, err := extract.FromFile(answersPath)
		if err != nil {
			return err
		}
		extractor = static
	} else {
		data, err := os.ReadFile(docPath)
		if err != nil {
			return fmt.Errorf("read document %s: %w", docPath, err)
		}
		doc = model.Document{
			Name: docPath,
			MIME: mimeForPath(docPath),
			Data: data,
		}
		client := extract.NewClient(
			v.GetString("llm-url"),
			v.GetString("llm-key"),
			v.GetString("llm-model"),
		)
		if err := client.Ping(cmd.Context()); err != nil {
			return fmt.Errorf("extraction provider health check: %w", err)
		}
		extractor = client
	}

	orch := eval.New(extractor, db,
		eval.WithExtractionTimeout(v.GetDuration("extract-timeout")),
		eval.WithObserver(func(stage eval.Stage) {
			slog.Info("pipeline stage", "stage", stage)
		}),
	)

	report, err := orch.Evaluate(cmd.Context(), doc, v.GetInt64("test-id"))
	if err != nil {
		return err
	}
	if err := db.SaveReport(*report); err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	return writeOutput(v.GetString("output"), report)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := keystore.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	reports, err := db.ListReports(v.GetInt64("test-id"))
	if err != nil {
		return fmt.Errorf("list reports: %w", err)
	}

	return writeOutput(v.GetString("output"), reports)
}

func writeOutput(outPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

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

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func mimeForPath(path string) string {
	switch strings.ToLower(path[strings.LastIndex(path, ".")+1:]) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

func loadTestBanks(db *keystore.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("test-bank file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("test-bank file changed since last import, skipping to avoid breaking stored evaluations",
				"path", path)
			continue
		}

		var bank model.TestBankImport
		if err := json.Unmarshal(data, &bank); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		specs := make([]model.QuestionSpec, 0, len(bank.Questions))
		refs := make([]model.ReferenceAnswer, 0, len(bank.Questions))
		for _, qi := range bank.Questions {
			qType := qi.Type
			if qType == "" {
				qType = model.QuestionShortAnswer
			}
			specs = append(specs, model.QuestionSpec{
				Index:    qi.Index,
				MaxMarks: qi.MaxMarks,
				Type:     qType,
			})
			refs = append(refs, model.ReferenceAnswer{
				QuestionIndex: qi.Index,
				ModelText:     qi.ModelAnswer,
				Keywords:      qi.Keywords,
				Explanation:   qi.Explanation,
			})
		}

		testID, err := db.CreateTest(model.Test{Title: bank.Title, Subject: bank.Subject}, specs, refs)
		if err != nil {
			return fmt.Errorf("import test from %s: %w", path, err)
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported test bank", "path", path, "test_id", testID, "questions", len(bank.Questions))
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
