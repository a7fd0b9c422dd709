// dtran — structured dataset translation: parse raw red-teaming datasets into
// text units and fan them out to target languages.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minios-linux/dtran/cache"
	"github.com/minios-linux/dtran/config"
	"github.com/minios-linux/dtran/extract"
	"github.com/minios-linux/dtran/i18n"
	"github.com/minios-linux/dtran/langmeta"
	"github.com/minios-linux/dtran/manifest"
	"github.com/minios-linux/dtran/record"
	"github.com/minios-linux/dtran/settings"
	"github.com/minios-linux/dtran/translate"
	"github.com/spf13/cobra"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARNING]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flag
// ---------------------------------------------------------------------------

var rootDir string

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dtran",
		Short: "Structured dataset translation pipeline",
		Long: `dtran — structured dataset translation for red-teaming evaluation sets.

Parses raw datasets (conversation logs, spreadsheets, query lists) into flat
translation units, then fans them out to the configured target languages.
Non-text fields keep their source bytes, list lengths and positions are
preserved, and units the backend fails on keep their source text, so output
artifacts always line up with their inputs.

Commands:
  status      Show project info and translation coverage
  init        Detect datasets and scaffold .dtran.yaml
  preprocess  Parse raw datasets into processed documents
  translate   Translate processed documents into target languages
  run         Preprocess and translate in one go
  auth        Manage provider API keys

Providers:
  nllb     Local NLLB-200 serving endpoint (default, no API key)
  openai   OpenAI-compatible chat completions, API key required
  mock     In-memory test backend`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flag, inherited by all subcommands
	root.PersistentFlags().StringVarP(&rootDir, "root-dir", "C", ".", "Project root directory")

	root.AddCommand(
		newStatusCmd(),
		newInitCmd(),
		newPreprocessCmd(),
		newTranslateCmd(),
		newRunCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dtran version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// status (read-only: project info + translation coverage)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show project info and translation coverage",
		Long: `Show the project configuration, its datasets, and how far translation
has progressed. Does not modify any files.`,
		Run: func(cmd *cobra.Command, args []string) {
			runStatus()
		},
	}

	return cmd
}

func runStatus() {
	proj, hasConfig, err := loadProject()
	if err != nil {
		logError("%v", err)
		os.Exit(1)
	}

	// Project info header
	fmt.Fprintf(os.Stderr, "\n%sProject%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	fmt.Fprintf(os.Stderr, "  Root:        %s\n", proj.Root)
	if hasConfig {
		fmt.Fprintf(os.Stderr, "  Config:      %s\n", config.FileName)
	} else {
		fmt.Fprintf(os.Stderr, "  Config:      auto-detected (run 'dtran init' to write %s)\n", config.FileName)
	}

	srcMeta, _ := langmeta.Lookup(proj.SourceLang)
	fmt.Fprintf(os.Stderr, "  Source:      %s (%s)\n", proj.SourceLang, srcMeta.Name)
	fmt.Fprintf(os.Stderr, "  Targets:     %s\n", strings.Join(proj.Languages, ", "))

	// Datasets
	fmt.Fprintf(os.Stderr, "\n%sDatasets%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	if len(proj.Datasets) == 0 {
		fmt.Fprintf(os.Stderr, "  none detected\n")
	} else {
		fmt.Fprintf(os.Stderr, "\n%-18s %-14s %-8s %s\n", "Name", "Family", "Status", "Path")
		fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
		for _, d := range proj.Datasets {
			status := "ok"
			if !fileExists(proj.DatasetPath(d)) {
				status = "missing"
			}
			fmt.Fprintf(os.Stderr, "%-18s %-14s %-8s %s\n", d.Name, d.Family, status, d.Path)
		}
	}

	// Artifacts
	processed := processedFiles(proj)

	fmt.Fprintf(os.Stderr, "\n%sArtifacts%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "  Processed:   %d document(s)\n", len(processed))

	if len(processed) > 0 {
		for _, lang := range proj.Languages {
			n := translatedCount(proj, lang)
			percent := n * 100 / len(processed)

			statusColor := colorGreen
			if percent == 0 {
				statusColor = colorRed
			} else if percent < 100 {
				statusColor = colorYellow
			}

			fmt.Fprintf(os.Stderr, "  %s%s%s: %d/%d translated (%d%%)\n",
				statusColor, lang, colorReset, n, len(processed), percent)
		}
	}

	if mf, err := manifest.Load(proj.Root); err == nil {
		fmt.Fprintf(os.Stderr, "  Manifest:    %s\n", mf.Summary())
	}

	printSuggestedCommands(proj, hasConfig, len(processed))
}

func printSuggestedCommands(proj *config.Project, hasConfig bool, processed int) {
	fmt.Fprintf(os.Stderr, "\n%sSuggested Commands%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintln(os.Stderr)

	switch {
	case len(proj.Datasets) == 0:
		fmt.Fprintf(os.Stderr, "  # No datasets detected. Add raw files (.jsonl, .xlsx, .csv,\n")
		fmt.Fprintf(os.Stderr, "  # query-list .json) under %s, then:\n", rel(proj.Root, proj.RawDir))
		fmt.Fprintf(os.Stderr, "  dtran init\n\n")

	case !hasConfig:
		fmt.Fprintf(os.Stderr, "  # Write the detected layout to %s\n", config.FileName)
		fmt.Fprintf(os.Stderr, "  dtran init\n\n")
		fmt.Fprintf(os.Stderr, "  # Parse raw datasets into translation units\n")
		fmt.Fprintf(os.Stderr, "  dtran preprocess\n\n")

	case processed == 0:
		fmt.Fprintf(os.Stderr, "  # Parse raw datasets into translation units\n")
		fmt.Fprintf(os.Stderr, "  dtran preprocess\n\n")
		fmt.Fprintf(os.Stderr, "  # Or run both stages in one go\n")
		fmt.Fprintf(os.Stderr, "  dtran run\n\n")

	default:
		fmt.Fprintf(os.Stderr, "  # Translate into every configured language\n")
		fmt.Fprintf(os.Stderr, "  dtran translate\n\n")
		fmt.Fprintf(os.Stderr, "  # Translate one language through the local NLLB serving\n")
		fmt.Fprintf(os.Stderr, "  dtran translate -l zh\n\n")
	}
}

// ---------------------------------------------------------------------------
// init (detect datasets + scaffold config)
// ---------------------------------------------------------------------------

func newInitCmd() *cobra.Command {
	var (
		sourceLang string
		languages  []string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Detect datasets and scaffold .dtran.yaml",
		Long: `Detect raw datasets and scaffold the project.

Scans the project root (preferring raw/, data/, or datasets/ directories)
for conversation logs (.jsonl, line-delimited .json), spreadsheets
(.xlsx, .csv), and query-list .json files, writes the detected layout to
.dtran.yaml, and creates the raw/, processed/, and translated/ directories.
Edit the config afterwards to adjust dataset families, text columns, and
target languages.`,
		Run: func(cmd *cobra.Command, args []string) {
			runInit(sourceLang, languages, force)
		},
	}

	cmd.Flags().StringVar(&sourceLang, "source-lang", "", "Source language code (default: en)")
	cmd.Flags().StringSliceVarP(&languages, "languages", "l", nil, "Default target languages (comma-separated)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func runInit(sourceLang string, languages []string, force bool) {
	cfgPath := filepath.Join(rootDir, config.FileName)
	if fileExists(cfgPath) && !force {
		logInfo("%s already exists (use --force to regenerate)", config.FileName)
		return
	}

	f := config.Detect(rootDir)
	if f == nil {
		f = &config.File{}
	}

	if sourceLang != "" {
		if _, err := langmeta.Lookup(sourceLang); err != nil {
			logError("--source-lang: %v", err)
			os.Exit(1)
		}
		f.SourceLang = sourceLang
		if len(languages) == 0 {
			// Recompute the default target list against the new source.
			f.Languages = nil
		}
	}
	if len(languages) > 0 {
		for _, lang := range languages {
			if _, err := langmeta.Lookup(lang); err != nil {
				logError("--languages: %v", err)
				os.Exit(1)
			}
		}
		f.Languages = languages
	}

	if err := f.Save(rootDir); err != nil {
		logError("%v", err)
		os.Exit(1)
	}

	proj, err := f.Resolve(rootDir)
	if err != nil {
		logError("%v", err)
		os.Exit(1)
	}
	for _, dir := range []string{proj.RawDir, proj.ProcessedDir, proj.TranslatedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logError("Creating %s: %v", dir, err)
			os.Exit(1)
		}
	}

	logInfo(i18n.N("Found %d dataset", "Found %d datasets", len(proj.Datasets)), len(proj.Datasets))
	for _, d := range proj.Datasets {
		logInfo("  %s (%s): %s", d.Name, d.Family, d.Path)
	}
	if len(proj.Datasets) == 0 {
		logWarning("No datasets detected. Add raw files under %s and edit %s.",
			rel(proj.Root, proj.RawDir), config.FileName)
	}

	logSuccess("Project initialized: %s", cfgPath)
}

// ---------------------------------------------------------------------------
// preprocess (raw datasets -> processed documents)
// ---------------------------------------------------------------------------

func newPreprocessCmd() *cobra.Command {
	var (
		dataset string
		clean   bool
	)

	cmd := &cobra.Command{
		Use:   "preprocess",
		Short: "Parse raw datasets into processed documents",
		Long: `Parse raw datasets into the processed documents the translator consumes.

Dataset families:
  conversations  user-role message content, one flat unit list per file
  table          narrative column split into numbered sections, other
                 columns copied verbatim
  querylist      per-object query lists flattened into one unit list

Each raw file yields processed_<stem>.json in the processed directory.
Malformed records are skipped with a warning; unreadable files and missing
narrative columns abort their dataset.`,
		Run: func(cmd *cobra.Command, args []string) {
			runPreprocess(dataset, clean)
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "Process only the named dataset")
	cmd.Flags().BoolVar(&clean, "clean", false, "Clear the processed directory first")

	_ = cmd.RegisterFlagCompletionFunc("dataset", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		f, err := config.Load(rootDir)
		if err != nil || f == nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		completions := make([]string, 0, len(f.Datasets))
		for _, d := range f.Datasets {
			completions = append(completions, fmt.Sprintf("%s\t%s", d.Name, d.Family))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runPreprocess(dataset string, clean bool) {
	proj := mustProject()
	if !preprocessDatasets(proj, dataset, clean) {
		os.Exit(1)
	}
}

// preprocessDatasets runs the preprocessing stage and reports whether every
// dataset succeeded. Shared by 'preprocess' and 'run'.
func preprocessDatasets(proj *config.Project, datasetName string, clean bool) bool {
	datasets := proj.Datasets
	if datasetName != "" {
		d, ok := proj.Dataset(datasetName)
		if !ok {
			names := make([]string, 0, len(proj.Datasets))
			for _, d := range proj.Datasets {
				names = append(names, d.Name)
			}
			logError("Unknown dataset %q (configured: %s)", datasetName, strings.Join(names, ", "))
			return false
		}
		datasets = []config.Dataset{d}
	}
	if len(datasets) == 0 {
		logError("No datasets configured. Run 'dtran init' or edit %s.", config.FileName)
		return false
	}

	if clean {
		if err := clearDir(proj.ProcessedDir); err != nil {
			logError("Cleaning %s: %v", proj.ProcessedDir, err)
			return false
		}
		logInfo("Cleared %s", rel(proj.Root, proj.ProcessedDir))
	}
	if err := os.MkdirAll(proj.ProcessedDir, 0755); err != nil {
		logError("Creating %s: %v", proj.ProcessedDir, err)
		return false
	}

	var files, records, units, skipped, failures int
	for _, d := range datasets {
		logInfo("Processing %s (%s)...", d.Name, d.Family)

		outs, err := extract.Process(proj, d, logWarning)
		if err != nil {
			logError("Dataset %s: %v", d.Name, err)
			failures++
			continue
		}

		for _, out := range outs {
			path := filepath.Join(proj.ProcessedDir, out.Name)
			if err := out.Doc.WriteFile(path); err != nil {
				logError("Writing %s: %v", path, err)
				failures++
				continue
			}

			line := fmt.Sprintf("  %s: %d records, %d units", out.Name, out.Records, out.Units)
			if out.Skipped > 0 {
				line += fmt.Sprintf(" (%d skipped)", out.Skipped)
			}
			logInfo("%s", line)

			files++
			records += out.Records
			units += out.Units
			skipped += out.Skipped
		}
	}

	if files > 0 {
		logInfo("Summary: %d document(s), %d records, %d units", files, records, units)
		if skipped > 0 {
			logWarning("%d malformed record(s) skipped", skipped)
		}
		logSuccess(i18n.T("Preprocessing complete!"))
	}

	return failures == 0
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

// translateArgs carries the flag values shared by 'translate' and 'run'.
type translateArgs struct {
	// Target selection
	langs []string

	// Provider selection
	provider string
	apiKey   string
	model    string
	baseURL  string

	// Translation behavior
	batchSize int
	force     bool
	dryRun    bool
	verbose   bool

	// Caching
	cacheKind string
	redisURL  string
	cacheTTL  time.Duration

	// Parallelization
	parallel      bool
	maxConcurrent int
	requestDelay  time.Duration

	// Network
	timeout    time.Duration
	proxy      string
	maxRetries int
}

// addTranslateFlags registers the shared translation flag set on cmd.
func addTranslateFlags(cmd *cobra.Command, a *translateArgs) {
	// Target selection
	cmd.Flags().StringSliceVarP(&a.langs, "languages", "l", nil, "Target languages (repeatable or comma-separated; 'all' for every supported language)")

	// Provider selection
	cmd.Flags().StringVar(&a.provider, "provider", "nllb", "Translation provider: nllb, openai, mock")
	cmd.Flags().StringVar(&a.model, "model", "", "Model name (default: provider default)")
	cmd.Flags().StringVar(&a.apiKey, "api-key", "", "API key (or DTRAN_API_KEY env var)")
	cmd.Flags().StringVar(&a.baseURL, "base-url", "", "Custom API base URL")

	// Translation behavior
	cmd.Flags().IntVar(&a.batchSize, "batch-size", 8, "Model calls between accelerator release hooks")
	cmd.Flags().BoolVar(&a.force, "force", false, "Retranslate pairs the manifest marks unchanged")
	cmd.Flags().BoolVar(&a.dryRun, "dry-run", false, "List the task plan without opening a backend")
	cmd.Flags().BoolVar(&a.verbose, "verbose", false, "Enable detailed logging")

	// Caching
	cmd.Flags().StringVar(&a.cacheKind, "cache", "memory", "Translation cache: memory, redis, none")
	cmd.Flags().StringVar(&a.redisURL, "redis-url", "redis://localhost:6379", "Redis connection URL (with --cache redis)")
	cmd.Flags().DurationVar(&a.cacheTTL, "cache-ttl", 24*time.Hour, "Cache entry lifetime (0 = no expiry)")

	// Parallelization
	cmd.Flags().BoolVar(&a.parallel, "parallel", false, "Translate document/language pairs concurrently")
	cmd.Flags().IntVar(&a.maxConcurrent, "max-concurrent", 3, "Maximum concurrent tasks (with --parallel)")
	cmd.Flags().DurationVar(&a.requestDelay, "request-delay", 0, "Delay between parallel task starts")

	// Network
	cmd.Flags().DurationVar(&a.timeout, "timeout", 0, "Request timeout (0 = provider default)")
	cmd.Flags().StringVar(&a.proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	cmd.Flags().IntVar(&a.maxRetries, "max-retries", 3, "Maximum retries on rate limit (429)")

	// Provider completion
	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"nllb\tLocal NLLB-200 serving endpoint (default)",
			"openai\tOpenAI-compatible chat completions, API key required",
			"mock\tIn-memory test backend",
		}, cobra.ShellCompDirectiveNoFileComp
	})

	// Model completion (provider-aware)
	_ = cmd.RegisterFlagCompletionFunc("model", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		p, _ := cmd.Flags().GetString("provider")
		switch p {
		case "", translate.ProviderNLLB:
			return []string{"facebook/nllb-200-3.3B", "facebook/nllb-200-distilled-600M"}, cobra.ShellCompDirectiveNoFileComp
		case translate.ProviderOpenAI:
			return []string{"gpt-4o-mini", "gpt-4o", "gpt-4.1-mini"}, cobra.ShellCompDirectiveNoFileComp
		default:
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
	})

	// Language completion
	_ = cmd.RegisterFlagCompletionFunc("languages", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		completions := []string{"all\tevery supported language"}
		for _, m := range langmeta.All() {
			completions = append(completions, fmt.Sprintf("%s\t%s", m.Code, m.Name))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})

	_ = cmd.RegisterFlagCompletionFunc("cache", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"memory\tin-process cache (default)",
			"redis\tshared Redis cache",
			"none\tno caching",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}

func newTranslateCmd() *cobra.Command {
	var a translateArgs

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate processed documents into target languages",
		Long: `Translate processed documents into the configured target languages.

Reads processed_*.json documents, translates every text unit, and writes
one <lang>_translated_<stem>.json artifact per document and language.
Non-text fields keep their source bytes; units the backend fails on keep
their source text. Pairs whose processed content is unchanged since the
last run are skipped via the dtran.lock manifest unless --force is given.

Examples:
  # All configured languages through the local NLLB serving
  dtran translate

  # Two languages, parallel, through OpenAI
  dtran translate -l zh -l ar --provider openai --parallel

  # Show the task plan without touching a backend
  dtran translate --dry-run`,
		Run: func(cmd *cobra.Command, args []string) {
			runTranslate(a)
		},
	}

	addTranslateFlags(cmd, &a)

	return cmd
}

// progressEvery is the unit interval between progress lines; completions
// always print.
const progressEvery = 25

func runTranslate(a translateArgs) {
	proj := mustProject()

	targets, err := resolveTargets(proj, a.langs)
	if err != nil {
		logError("%v", err)
		os.Exit(1)
	}

	processed := processedFiles(proj)
	if len(processed) == 0 {
		logError(i18n.T("No processed documents found in %s. Run 'dtran preprocess' first."),
			rel(proj.Root, proj.ProcessedDir))
		os.Exit(1)
	}

	// Resolve API key from flag, environment, or the settings store
	key := settings.ResolveAPIKey(strings.ToLower(a.provider), a.apiKey)

	prov := resolveProvider(a.provider, a.baseURL, key, a.model, a.proxy, a.timeout, a.maxRetries, a.verbose)
	if err := validateProvider(prov); err != nil {
		logError("%v", err)
		os.Exit(1)
	}

	mf, err := manifest.Load(proj.Root)
	if err != nil {
		logError("Reading %s: %v", manifest.FileName, err)
		os.Exit(1)
	}

	// Build the (document × language) task plan, skipping pairs whose
	// processed content is unchanged since their last translation.
	type taskMeta struct {
		lang, file, content string
	}
	var (
		tasks      []translate.Task
		metas      []taskMeta
		unchanged  int
		totalUnits int
	)
	for _, name := range processed {
		path := filepath.Join(proj.ProcessedDir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			logError("Reading %s: %v", path, err)
			os.Exit(1)
		}
		doc, err := record.ParseDocument(raw)
		if err != nil {
			logError("Parsing %s: %v", path, err)
			os.Exit(1)
		}

		fields := textFieldsFor(proj, name)
		if doc.Kind == record.KindRecords && len(fields) == 0 {
			logWarning("%s: no text column configured; output will be an untranslated copy", name)
		}

		content := string(raw)
		for _, lang := range targets {
			outPath := proj.TranslatedPath(lang, name)
			if !a.force && fileExists(outPath) && !mf.IsChanged(lang, name, content) {
				unchanged++
				if a.verbose {
					logInfo("  %s: %s unchanged, skipping", lang, name)
				}
				continue
			}
			tasks = append(tasks, translate.Task{
				Name:       name,
				Doc:        doc,
				Target:     lang,
				TextFields: fields,
				OutPath:    outPath,
			})
			metas = append(metas, taskMeta{lang: lang, file: name, content: content})
			totalUnits += translate.CountUnits(doc, fields)
		}
	}

	if len(tasks) == 0 {
		logSuccess(i18n.T("All translations are up to date!"))
		if unchanged > 0 {
			logInfo("%d unchanged pair(s); use --force to retranslate", unchanged)
		}
		return
	}

	logInfo("Provider: %s (%s), Model: %s", prov.Name, prov.ID, prov.Model)
	if a.parallel {
		logInfo("Parallel: enabled, max concurrent: %d", a.maxConcurrent)
	} else {
		logInfo("Parallel: disabled (sequential)")
	}
	logInfo("Translating %d document(s) into: %s", len(processed), strings.Join(targets, ", "))
	if unchanged > 0 {
		logInfo("Skipping %d unchanged pair(s) (use --force to retranslate)", unchanged)
	}

	if a.dryRun {
		for _, t := range tasks {
			logInfo("%s: %s (%d units) -> %s",
				t.Target, t.Name, translate.CountUnits(t.Doc, t.TextFields), rel(proj.Root, t.OutPath))
		}
		logInfo("Dry run: %d task(s), %d units total", len(tasks), totalUnits)
		return
	}

	var tcache cache.TranslationCache
	switch strings.ToLower(a.cacheKind) {
	case "", "memory":
		tcache = cache.NewMemoryCache(a.cacheTTL)
	case "redis":
		rc, err := cache.NewRedisCache(cache.RedisConfig{URL: a.redisURL, TTL: a.cacheTTL})
		if err != nil {
			logError("Connecting to Redis at %s: %v", a.redisURL, err)
			os.Exit(1)
		}
		defer rc.Close()
		tcache = rc
	case "none":
		// Every unit goes to the backend.
	default:
		logError("Unknown cache %q (valid: memory, redis, none)", a.cacheKind)
		os.Exit(1)
	}

	backend, err := translate.OpenBackend(prov)
	if err != nil {
		logError("%v", err)
		os.Exit(1)
	}
	defer backend.Close()

	// Setup signal handling for graceful cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logWarning(i18n.T("Interrupted, stopping..."))
		cancel()
	}()

	opts := translate.Options{
		Backend:       backend,
		Cache:         tcache,
		SourceLang:    proj.SourceLang,
		BatchSize:     a.batchSize,
		Parallel:      a.parallel,
		MaxConcurrent: a.maxConcurrent,
		RequestDelay:  a.requestDelay,
		Verbose:       a.verbose,
		OnProgress: func(lang string, done, total int) {
			if done == total || done%progressEvery == 0 {
				logInfo("  %s: %d/%d", lang, done, total)
			}
		},
		OnLog: func(format string, args ...any) {
			logInfo(format, args...)
		},
		OnError: func(format string, args ...any) {
			logError(format, args...)
		},
	}

	results, runErr := translate.Run(ctx, tasks, opts)

	// Record checksums for the pairs that produced artifacts, drop ledger
	// entries for processed files that no longer exist, then persist.
	for i, res := range results {
		if res.Err == nil && res.Doc != nil {
			mf.Update(metas[i].lang, metas[i].file, metas[i].content)
		}
	}
	for _, lang := range targets {
		mf.Clean(lang, processed)
	}
	if err := mf.Save(); err != nil {
		logWarning("Saving %s: %v", manifest.FileName, err)
	}

	if runErr != nil {
		if ctx.Err() != nil {
			logWarning(i18n.T("Translation interrupted; finished artifacts were kept"))
			os.Exit(0)
		}
		logError("Translation failed: %v", runErr)
		os.Exit(1)
	}

	var total translate.Report
	for _, res := range results {
		total.Units += res.Report.Units
		total.Translated += res.Report.Translated
		total.Cached += res.Report.Cached
		total.Skipped += res.Report.Skipped
		total.Fallbacks += res.Report.Fallbacks
	}

	logSuccess(i18n.T("Translation complete!"))
	logInfo("  %d artifact(s), %d units: %d translated, %d cached, %d passed through",
		len(results), total.Units, total.Translated, total.Cached, total.Skipped)
	if total.Fallbacks > 0 {
		logWarning("%d unit(s) kept source text after backend failures", total.Fallbacks)
	}
}

// ---------------------------------------------------------------------------
// run (preprocess + translate)
// ---------------------------------------------------------------------------

func newRunCmd() *cobra.Command {
	var (
		a              translateArgs
		skipPreprocess bool
		skipTranslate  bool
		clean          bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Preprocess and translate in one go",
		Long: `Run the full pipeline: preprocess raw datasets, then translate the
processed documents into the configured target languages.

Examples:
  # Everything, sequentially, through the local NLLB serving
  dtran run

  # Clean rebuild of all derived artifacts
  dtran run --clean

  # Only refresh processed documents
  dtran run --skip-translate`,
		Run: func(cmd *cobra.Command, args []string) {
			runRun(a, skipPreprocess, skipTranslate, clean)
		},
	}

	addTranslateFlags(cmd, &a)
	cmd.Flags().BoolVar(&skipPreprocess, "skip-preprocess", false, "Skip the preprocessing stage")
	cmd.Flags().BoolVar(&skipTranslate, "skip-translate", false, "Skip the translation stage")
	cmd.Flags().BoolVar(&clean, "clean", false, "Clear processed and translated outputs plus the manifest first")

	return cmd
}

func runRun(a translateArgs, skipPreprocess, skipTranslate, clean bool) {
	proj := mustProject()

	if clean {
		for _, dir := range []string{proj.ProcessedDir, proj.TranslatedDir} {
			if err := clearDir(dir); err != nil {
				logError("Cleaning %s: %v", dir, err)
				os.Exit(1)
			}
		}
		if err := os.Remove(filepath.Join(proj.Root, manifest.FileName)); err != nil && !os.IsNotExist(err) {
			logError("Removing %s: %v", manifest.FileName, err)
			os.Exit(1)
		}
		logInfo("Cleared derived outputs and the manifest")
	}

	if skipPreprocess {
		logInfo("Skipping preprocessing")
	} else {
		fmt.Fprintf(os.Stderr, "\n%sStage 1: Preprocess%s\n", colorBlue, colorReset)
		fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
		if !preprocessDatasets(proj, "", false) {
			os.Exit(1)
		}
	}

	if skipTranslate {
		logInfo("Skipping translation")
	} else {
		fmt.Fprintf(os.Stderr, "\n%sStage 2: Translate%s\n", colorBlue, colorReset)
		fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
		runTranslate(a)
	}

	logSuccess(i18n.T("Pipeline complete!"))
}

// ---------------------------------------------------------------------------
// auth (manage provider API keys)
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider API keys",
		Long: `Manage API keys for translation providers.

API key providers (paste your key):
  openai   OpenAI or any OpenAI-compatible endpoint

No auth required:
  nllb     Local NLLB-200 serving endpoint
  mock     In-memory test backend

Keys are stored with 0600 permissions under the XDG data directory
(~/.local/share/dtran/auth.json). The DTRAN_API_KEY and OPENAI_API_KEY
environment variables override stored keys.

Examples:
  dtran auth login                       Interactive provider selection
  dtran auth login --provider openai     Store an OpenAI API key
  dtran auth logout --provider openai    Remove the OpenAI key
  dtran auth list                        Show stored keys`,
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthListCmd(),
	)

	return cmd
}

// allProviders is the ordered list of providers for the interactive menu.
var allProviders = []struct {
	id   string
	name string
	desc string
	auth string // "api-key" or "none"
}{
	{translate.ProviderNLLB, "NLLB-200 serving", "local endpoint, no auth needed", "none"},
	{translate.ProviderOpenAI, "OpenAI", "chat completions, API key required", "api-key"},
	{translate.ProviderMock, "Mock", "in-memory test backend, no auth needed", "none"},
}

func newAuthLoginCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key for a provider",
		Long: `Store an API key for a key-bearing provider.

If --provider is not specified, you will be prompted to choose.`,
		Run: func(cmd *cobra.Command, args []string) {
			// If no provider specified, prompt user
			if provider == "" {
				fmt.Fprintln(os.Stderr, "")
				fmt.Fprintf(os.Stderr, "%sSelect provider to authenticate:%s\n\n", colorBlue, colorReset)
				displayIdx := 0
				for _, p := range allProviders {
					if p.auth == "none" {
						continue
					}
					displayIdx++
					fmt.Fprintf(os.Stderr, "  %d. %s%-8s%s %s\n", displayIdx, colorYellow, p.id, colorReset, p.desc)
				}
				fmt.Fprintln(os.Stderr)
				fmt.Fprintf(os.Stderr, "Enter choice (number or name): ")

				scanner := bufio.NewScanner(os.Stdin)
				if !scanner.Scan() {
					logError("No input received")
					os.Exit(1)
				}
				choice := strings.TrimSpace(scanner.Text())

				found := false
				displayIdx = 0
				for _, p := range allProviders {
					if p.auth == "none" {
						continue
					}
					displayIdx++
					if choice == fmt.Sprintf("%d", displayIdx) || choice == p.id {
						provider = p.id
						found = true
						break
					}
				}
				if !found {
					logError("Invalid choice. Use: dtran auth login --provider PROVIDER")
					os.Exit(1)
				}
			}

			switch provider {
			case translate.ProviderOpenAI:
				authLoginAPIKey(provider)
			case translate.ProviderNLLB, translate.ProviderMock:
				logInfo("Provider '%s' needs no authentication", provider)
			default:
				logError("Unknown provider '%s'. Run 'dtran auth login' for options.", provider)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to authenticate")
	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		completions := make([]string, 0, len(allProviders))
		for _, p := range allProviders {
			if p.auth == "none" {
				continue
			}
			completions = append(completions, fmt.Sprintf("%s\t%s", p.id, p.name))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func authLoginAPIKey(providerID string) {
	fmt.Fprintf(os.Stderr, "\n%sOpenAI: API Key Setup%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "  Get your API key from: %shttps://platform.openai.com/api-keys%s\n\n", colorGreen, colorReset)

	scanner := bufio.NewScanner(os.Stdin)

	// API key
	existing := settings.Get(providerID)
	if existing != nil && existing.Key != "" {
		fmt.Fprintf(os.Stderr, "  Current key: %s%s%s\n", colorYellow, settings.MaskKey(existing.Key), colorReset)
		fmt.Fprintf(os.Stderr, "  Enter new key to replace, or press Enter to keep: ")
	} else {
		fmt.Fprintf(os.Stderr, "  Enter API key: ")
	}

	if !scanner.Scan() {
		logError("No input received")
		os.Exit(1)
	}
	key := strings.TrimSpace(scanner.Text())

	if key == "" {
		if existing == nil || existing.Key == "" {
			logError("No API key provided")
			os.Exit(1)
		}
		key = existing.Key
		logInfo("Keeping existing key")
	}

	// Optional endpoint override for OpenAI-compatible proxies
	if existing != nil && existing.BaseURL != "" {
		fmt.Fprintf(os.Stderr, "  Current endpoint: %s%s%s\n", colorYellow, existing.BaseURL, colorReset)
		fmt.Fprintf(os.Stderr, "  Enter new endpoint URL, or press Enter to keep: ")
	} else {
		fmt.Fprintf(os.Stderr, "  Endpoint URL (press Enter for the OpenAI default): ")
	}

	if !scanner.Scan() {
		logError("No input received")
		os.Exit(1)
	}
	baseURL := strings.TrimSpace(scanner.Text())
	if baseURL == "" && existing != nil {
		baseURL = existing.BaseURL
	}

	if err := settings.SetAPIKeyWithBaseURL(providerID, key, baseURL); err != nil {
		logError("Failed to save API key: %v", err)
		os.Exit(1)
	}

	logSuccess("OpenAI API key saved!")
	fmt.Fprintf(os.Stderr, "\n  You can now use: dtran translate --provider openai\n\n")
}

func newAuthLogoutCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored API keys",
		Long: `Remove stored API keys for one or all providers.

If --provider is not specified, all stored keys are removed.`,
		Run: func(cmd *cobra.Command, args []string) {
			if provider != "" {
				if err := settings.Remove(provider); err != nil {
					logError("Failed to remove %s credentials: %v", provider, err)
					os.Exit(1)
				}
				logSuccess("%s credentials removed", provider)
				return
			}

			if err := settings.RemoveAll(); err != nil {
				logError("Failed to remove credentials: %v", err)
				os.Exit(1)
			}
			logSuccess("All stored credentials removed")
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to logout (default: all)")

	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored API keys and status",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(os.Stderr, "\n%sStored Credentials%s\n", colorBlue, colorReset)
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

			fmt.Fprintf(os.Stderr, "\n  %sAPI Key Providers%s\n", colorYellow, colorReset)
			for _, p := range allProviders {
				if p.auth != "api-key" {
					continue
				}
				entry := settings.Get(p.id)
				if entry != nil && entry.Key != "" {
					status := fmt.Sprintf("%sconfigured%s (key: %s)", colorGreen, colorReset, settings.MaskKey(entry.Key))
					if entry.BaseURL != "" {
						status += fmt.Sprintf("\n  %14s endpoint: %s", "", entry.BaseURL)
					}
					fmt.Fprintf(os.Stderr, "  %-14s %s\n", p.id, status)
				} else {
					fmt.Fprintf(os.Stderr, "  %-14s %snot configured%s\n", p.id, colorRed, colorReset)
				}
			}

			fmt.Fprintf(os.Stderr, "\n  %sEnvironment Variables%s\n", colorYellow, colorReset)
			for _, env := range []string{"DTRAN_API_KEY", "OPENAI_API_KEY"} {
				if v := os.Getenv(env); v != "" {
					fmt.Fprintf(os.Stderr, "  %s: %s%s%s (overrides stored keys)\n", env, colorGreen, settings.MaskKey(v), colorReset)
				} else {
					fmt.Fprintf(os.Stderr, "  %s: %snot set%s\n", env, colorRed, colorReset)
				}
			}

			if p := settings.FilePath(); p != "" {
				fmt.Fprintf(os.Stderr, "\n  Store: %s\n", p)
			}
			fmt.Fprintln(os.Stderr)
		},
	}
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// loadProject resolves the project from .dtran.yaml, falling back to dataset
// auto-detection when no config file exists. The bool reports whether a
// config file was found.
func loadProject() (*config.Project, bool, error) {
	f, err := config.Load(rootDir)
	if err != nil {
		return nil, false, err
	}
	hasConfig := f != nil
	if f == nil {
		if f = config.Detect(rootDir); f == nil {
			f = &config.File{}
		}
	}
	proj, err := f.Resolve(rootDir)
	return proj, hasConfig, err
}

func mustProject() *config.Project {
	proj, _, err := loadProject()
	if err != nil {
		logError("%v", err)
		os.Exit(1)
	}
	return proj
}

// processedFiles lists the preprocess artifacts in the processed directory,
// sorted by name. A missing directory yields an empty list.
func processedFiles(proj *config.Project) []string {
	entries, err := os.ReadDir(proj.ProcessedDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !config.IsProcessedName(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// translatedCount counts the translated artifacts for one target language.
func translatedCount(proj *config.Project, lang string) int {
	entries, err := os.ReadDir(proj.TranslatedDir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), lang+"_translated_") && strings.HasSuffix(e.Name(), ".json") {
			n++
		}
	}
	return n
}

// textFieldsFor maps a processed artifact back to its dataset to find the
// translatable fields. Only table datasets produce record documents with a
// text column; flat list documents carry no fields.
func textFieldsFor(proj *config.Project, processedName string) []string {
	for _, d := range proj.Datasets {
		if d.Family != config.FamilyTable {
			continue
		}
		if config.ProcessedName(filepath.Base(d.Path)) == processedName {
			return []string{d.TextColumn}
		}
	}
	return nil
}

// resolveTargets turns the -l flag values (or the configured defaults) into a
// deduplicated, validated target list. "all" expands to every supported
// language except the source.
func resolveTargets(proj *config.Project, langs []string) ([]string, error) {
	list := langs
	if len(list) == 0 {
		list = proj.Languages
	}

	var targets []string
	seen := make(map[string]bool)
	add := func(code string) error {
		meta, err := langmeta.Lookup(code)
		if err != nil {
			return err
		}
		if !seen[meta.Code] {
			seen[meta.Code] = true
			targets = append(targets, meta.Code)
		}
		return nil
	}

	for _, l := range list {
		if strings.EqualFold(strings.TrimSpace(l), "all") {
			for _, code := range langmeta.Codes() {
				if code == proj.SourceLang {
					continue
				}
				if err := add(code); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := add(l); err != nil {
			return nil, err
		}
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("no target languages configured; use -l or set languages in %s", config.FileName)
	}
	return targets, nil
}

func resolveProvider(name, baseURL, apiKey, model, proxy string, timeout time.Duration, maxRetries int, verbose bool) translate.Provider {
	defaults := translate.DefaultProviders()

	id := strings.ToLower(strings.TrimSpace(name))
	prov, ok := defaults[id]
	if !ok {
		prov = translate.Provider{ID: id, Name: name}
	}

	if baseURL != "" {
		prov.BaseURL = baseURL
	} else if stored := settings.GetBaseURL(prov.ID); stored != "" {
		prov.BaseURL = stored
	}
	if apiKey != "" {
		prov.APIKey = apiKey
	}
	if model != "" {
		prov.Model = model
	}
	if proxy != "" {
		prov.Proxy = proxy
	}
	if timeout > 0 {
		prov.Timeout = timeout
	}
	if maxRetries > 0 {
		prov.MaxRetries = maxRetries
	}
	prov.Verbose = verbose

	return prov
}

func validateProvider(prov translate.Provider) error {
	switch prov.ID {
	case "", translate.ProviderNLLB, translate.ProviderMock:
		return nil

	case translate.ProviderOpenAI:
		if prov.APIKey == "" {
			return fmt.Errorf("provider 'openai' requires an API key\n\n" +
				"Option 1: Store your API key:\n" +
				"  dtran auth login --provider openai\n\n" +
				"Option 2: Pass the key directly:\n" +
				"  --api-key YOUR_KEY or export DTRAN_API_KEY=YOUR_KEY\n\n" +
				"OPENAI_API_KEY is also honored.")
		}
		return nil

	default:
		return fmt.Errorf("unknown provider %q (valid: mock, nllb, openai)", prov.ID)
	}
}

// clearDir removes a directory's contents and recreates it empty.
func clearDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// rel shortens a path to be relative to base for display.
func rel(base, path string) string {
	r, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(r, "..") {
		return path
	}
	return r
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
