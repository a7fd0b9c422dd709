// Package translate implements structured document translation: it walks the
// text-bearing fields of processed dataset documents, translates each unit
// through a pluggable model backend, and leaves every other byte of the
// document untouched. Failures are isolated per unit, so one bad model call
// degrades one string instead of aborting a run.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minios-linux/dtran/cache"
	"github.com/minios-linux/dtran/langmeta"
	"github.com/minios-linux/dtran/record"
)

// ---------------------------------------------------------------------------
// Translation options
// ---------------------------------------------------------------------------

// Options controls the translation behavior.
type Options struct {
	// Backend is the model handle used for unit translation.
	Backend Backend
	// Cache short-circuits repeated units; nil disables caching.
	Cache cache.TranslationCache
	// SourceLang is the dataset's source language code (default "en").
	SourceLang string
	// TextFields names the translatable fields of record documents. A named
	// field may hold a single string or a list; list elements are translated
	// element-wise, non-string and blank elements pass through in place.
	// Ignored for flat list documents.
	TextFields []string
	// BatchSize is the number of model calls between release hooks
	// (default 8).
	BatchSize int
	// Parallel runs tasks concurrently instead of one at a time.
	Parallel bool
	// MaxConcurrent bounds simultaneous tasks in parallel mode (default 3).
	MaxConcurrent int
	// RequestDelay spaces task starts in parallel mode.
	RequestDelay time.Duration
	// OnProgress is called after every unit with the target language code
	// and done/total unit counts.
	OnProgress func(lang string, done, total int)
	// OnUnit receives each unit outcome as it is produced.
	OnUnit func(UnitOutcome)
	// OnLog receives informational messages. Defaults to log.Printf.
	OnLog func(format string, args ...any)
	// OnError receives non-fatal errors. Defaults to log.Printf.
	OnError func(format string, args ...any)
	// Verbose enables per-unit logging.
	Verbose bool
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	} else {
		log.Printf(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else {
		log.Printf("ERROR: "+format, args...)
	}
}

func (o *Options) effectiveSourceLang() string {
	if o.SourceLang != "" {
		return o.SourceLang
	}
	return "en"
}

func (o *Options) effectiveBatchSize() int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return 8
}

func (o *Options) effectiveMaxConcurrent() int {
	if o.MaxConcurrent > 0 {
		return o.MaxConcurrent
	}
	return 3
}

// ---------------------------------------------------------------------------
// Unit outcomes
// ---------------------------------------------------------------------------

// UnitStatus classifies how one text unit was resolved.
type UnitStatus int

const (
	// UnitSkipped marks blank or non-string units passed through unchanged.
	UnitSkipped UnitStatus = iota
	// UnitTranslated marks units translated by the backend.
	UnitTranslated
	// UnitCached marks units served from the cache.
	UnitCached
	// UnitFallback marks units kept original after a backend failure.
	UnitFallback
)

func (u UnitStatus) String() string {
	switch u {
	case UnitSkipped:
		return "skipped"
	case UnitTranslated:
		return "translated"
	case UnitCached:
		return "cached"
	case UnitFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// UnitOutcome is the result value for one text unit: the resolved text plus
// how it was obtained. Fallbacks carry the error that caused them, so
// degraded output stays observable instead of silent.
type UnitOutcome struct {
	Status UnitStatus
	Text   string
	Err    error
}

// Report aggregates unit outcomes for one document translation.
type Report struct {
	Records    int // records in the document (0 for flat lists)
	Units      int // translatable slots visited
	Translated int // units translated by the backend
	Cached     int // units served from the cache
	Skipped    int // blank or non-string units passed through
	Fallbacks  int // units kept original after a backend failure
}

// ---------------------------------------------------------------------------
// Document translation
// ---------------------------------------------------------------------------

// TranslateDocument returns a translated copy of doc for one target
// language. The target must resolve through the langmeta registry; unknown
// codes fail before any model call. Fields not named in opts.TextFields keep
// their source bytes; list lengths and element positions are always
// preserved. Per-unit backend failures substitute the original text and
// processing continues, so the only hard errors are an unsupported language,
// a missing backend, and context cancellation.
func TranslateDocument(ctx context.Context, doc *record.Document, target string, opts Options) (*record.Document, Report, error) {
	tgt, err := langmeta.Lookup(target)
	if err != nil {
		return nil, Report{}, err
	}
	src, err := langmeta.Lookup(opts.effectiveSourceLang())
	if err != nil {
		return nil, Report{}, fmt.Errorf("source language: %w", err)
	}
	if opts.Backend == nil {
		return nil, Report{}, errors.New("no backend configured")
	}
	if doc == nil {
		return nil, Report{}, errors.New("nil document")
	}

	s := &session{opts: opts, src: src, tgt: tgt}
	s.rep.Units = CountUnits(doc, opts.TextFields)

	out := doc.Clone()
	switch out.Kind {
	case record.KindRecords:
		s.rep.Records = len(out.Records)
		for _, rec := range out.Records {
			if err := s.translateRecord(ctx, rec); err != nil {
				return nil, s.rep, err
			}
		}
	default:
		for i, raw := range out.Units {
			translated, err := s.translateScalar(ctx, raw)
			if err != nil {
				return nil, s.rep, err
			}
			out.Units[i] = translated
		}
	}
	return out, s.rep, nil
}

// CountUnits mirrors the traversal of TranslateDocument so progress totals
// are known before the first model call.
func CountUnits(doc *record.Document, textFields []string) int {
	if doc.Kind != record.KindRecords {
		return len(doc.Units)
	}
	n := 0
	for _, rec := range doc.Records {
		for _, field := range textFields {
			raw, ok := rec.Get(field)
			if !ok {
				continue
			}
			if items, ok := record.DecodeList(raw); ok {
				n += len(items)
			} else {
				n++
			}
		}
	}
	return n
}

// session carries the per-document translation state.
type session struct {
	opts  Options
	src   langmeta.Meta
	tgt   langmeta.Meta
	rep   Report
	done  int
	calls int // model calls since the last release hook
}

func (s *session) translateRecord(ctx context.Context, rec *record.Record) error {
	for _, field := range s.opts.TextFields {
		raw, ok := rec.Get(field)
		if !ok {
			continue
		}
		out, err := s.translateValue(ctx, raw)
		if err != nil {
			return err
		}
		rec.Set(field, out)
	}
	return nil
}

// translateValue handles one text-bearing field value: a list is translated
// element-wise keeping length and positions, anything else is a single unit.
func (s *session) translateValue(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	if items, ok := record.DecodeList(raw); ok {
		for i, item := range items {
			out, err := s.translateScalar(ctx, item)
			if err != nil {
				return nil, err
			}
			items[i] = out
		}
		return record.EncodeList(items), nil
	}
	return s.translateScalar(ctx, raw)
}

// translateScalar resolves one unit slot. Non-string and blank values pass
// through unchanged; dropping them would desynchronize list positions with
// sibling fields.
func (s *session) translateScalar(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, ok := record.DecodeString(raw)
	if !ok || strings.TrimSpace(text) == "" {
		s.advance(UnitOutcome{Status: UnitSkipped})
		return raw, nil
	}

	translated, outcome, err := s.translateText(ctx, text)
	if err != nil {
		return nil, err
	}
	s.advance(outcome)
	if outcome.Status == UnitFallback {
		return raw, nil
	}
	return record.EncodeString(translated), nil
}

// translateText runs the cache/backend/fallback chain for one unit. The
// returned error is non-nil only for context cancellation; backend failures
// come back as a fallback outcome carrying the original text.
func (s *session) translateText(ctx context.Context, text string) (string, UnitOutcome, error) {
	key := cache.Key(text, s.tgt.Code)
	if s.opts.Cache != nil {
		if v, ok := s.opts.Cache.Get(key); ok {
			return v, UnitOutcome{Status: UnitCached, Text: v}, nil
		}
	}

	s.calls++
	translated, err := s.opts.Backend.Translate(ctx, text, s.src.Locale, s.tgt.Locale)
	if err != nil {
		if ctx.Err() != nil {
			return "", UnitOutcome{}, ctx.Err()
		}
		s.opts.logError("translating unit to %s: %v", s.tgt.Code, err)
		s.maybeRelease(ctx)
		return text, UnitOutcome{Status: UnitFallback, Text: text, Err: err}, nil
	}

	if s.opts.Cache != nil {
		if err := s.opts.Cache.Set(key, translated); err != nil && s.opts.Verbose {
			s.opts.log("cache set: %v", err)
		}
	}
	s.maybeRelease(ctx)
	return translated, UnitOutcome{Status: UnitTranslated, Text: translated}, nil
}

// maybeRelease fires the advisory release hook after every batch of model
// calls. Hook failures are logged, never fatal.
func (s *session) maybeRelease(ctx context.Context) {
	if s.calls < s.opts.effectiveBatchSize() {
		return
	}
	s.calls = 0
	r, ok := s.opts.Backend.(Releaser)
	if !ok {
		return
	}
	if err := r.Release(ctx); err != nil && s.opts.Verbose {
		s.opts.log("release hook: %v", err)
	}
}

func (s *session) advance(o UnitOutcome) {
	s.done++
	switch o.Status {
	case UnitTranslated:
		s.rep.Translated++
	case UnitCached:
		s.rep.Cached++
	case UnitFallback:
		s.rep.Fallbacks++
	default:
		s.rep.Skipped++
	}

	if s.opts.OnUnit != nil {
		s.opts.OnUnit(o)
	}
	if s.opts.OnProgress != nil {
		s.opts.OnProgress(s.tgt.Code, s.done, s.rep.Units)
	}
	if s.opts.Verbose {
		s.opts.log("[%s] unit %d/%d: %s", s.tgt.Code, s.done, s.rep.Units, o.Status)
	}
}

// ---------------------------------------------------------------------------
// Task fan-out
// ---------------------------------------------------------------------------

// Task is one document x target translation job.
type Task struct {
	// Name labels the task in logs and failure summaries, typically the
	// processed file name.
	Name string
	// Doc is the source document. It is never mutated; the output is a
	// translated clone.
	Doc *record.Document
	// Target is the language code to translate into.
	Target string
	// TextFields names the translatable fields for record documents.
	TextFields []string
	// OutPath, when set, is where the translated document is written.
	OutPath string
}

func (t Task) label() string {
	if t.Name == "" {
		return t.Target
	}
	return t.Target + ":" + t.Name
}

// TaskResult pairs a task with its outcome. Doc is nil when the task failed.
type TaskResult struct {
	Task   Task
	Doc    *record.Document
	Report Report
	Err    error
}

// Run executes tasks one at a time, or concurrently when opts.Parallel is
// set. Task failures are isolated: the remaining tasks still run and the
// returned error summarizes every failure. Context cancellation stops the
// run immediately.
func Run(ctx context.Context, tasks []Task, opts Options) ([]TaskResult, error) {
	if opts.Parallel {
		return runParallel(ctx, tasks, opts)
	}
	return runSequential(ctx, tasks, opts)
}

func runSequential(ctx context.Context, tasks []Task, opts Options) ([]TaskResult, error) {
	results := make([]TaskResult, 0, len(tasks))
	var failed []string

	for _, task := range tasks {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		taskOpts := opts
		taskOpts.TextFields = task.TextFields

		opts.log("Translating %s: %d units...", task.label(), CountUnits(task.Doc, task.TextFields))

		out, rep, err := TranslateDocument(ctx, task.Doc, task.Target, taskOpts)
		res := TaskResult{Task: task, Doc: out, Report: rep, Err: err}
		if err == nil && task.OutPath != "" {
			if werr := out.WriteFile(task.OutPath); werr != nil {
				res.Err = fmt.Errorf("writing %s: %w", task.OutPath, werr)
			}
		}
		results = append(results, res)

		if res.Err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			opts.logError("Error translating %s: %v", task.label(), res.Err)
			failed = append(failed, task.label())
		}
	}

	if len(failed) > 0 {
		return results, fmt.Errorf("%d task(s) failed: %s", len(failed), strings.Join(failed, ", "))
	}
	return results, nil
}

func runParallel(ctx context.Context, tasks []Task, opts Options) ([]TaskResult, error) {
	results := make([]TaskResult, len(tasks))

	// Serialize writers per output path; distinct tasks normally write
	// distinct files, but nothing upstream enforces that.
	fileMu := make(map[string]*sync.Mutex)
	for _, t := range tasks {
		if t.OutPath != "" {
			if _, ok := fileMu[t.OutPath]; !ok {
				fileMu[t.OutPath] = &sync.Mutex{}
			}
		}
	}

	indexes := make([]int, len(tasks))
	for i := range tasks {
		indexes[i] = i
	}

	var mu sync.Mutex
	var failed []string

	err := runParallelGeneric(ctx, indexes, opts.effectiveMaxConcurrent(), opts.RequestDelay, func(ctx context.Context, i int) error {
		task := tasks[i]
		taskOpts := opts
		taskOpts.TextFields = task.TextFields

		out, rep, terr := TranslateDocument(ctx, task.Doc, task.Target, taskOpts)
		res := TaskResult{Task: task, Doc: out, Report: rep, Err: terr}
		if terr == nil && task.OutPath != "" {
			wmu := fileMu[task.OutPath]
			wmu.Lock()
			werr := out.WriteFile(task.OutPath)
			wmu.Unlock()
			if werr != nil {
				res.Err = fmt.Errorf("writing %s: %w", task.OutPath, werr)
			}
		}
		results[i] = res

		if res.Err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			opts.logError("Error translating %s: %v", task.label(), res.Err)
			mu.Lock()
			failed = append(failed, task.label())
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return results, err
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		return results, fmt.Errorf("%d task(s) failed: %s", len(failed), strings.Join(failed, ", "))
	}
	return results, nil
}

// runParallelGeneric runs typed tasks with a concurrency bound and an
// optional launch delay between starts. The first error wins; remaining
// tasks are not started once the context is done.
func runParallelGeneric[T any](ctx context.Context, tasks []T, maxConcurrent int, delay time.Duration, fn func(context.Context, T) error) error {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for i, task := range tasks {
		if ctx.Err() != nil {
			break
		}

		// Delay between launching tasks (skip first)
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}

		sem <- struct{}{}
		wg.Add(1)

		go func(t T) {
			defer func() {
				<-sem
				wg.Done()
			}()

			if err := fn(ctx, t); err != nil {
				errOnce.Do(func() {
					firstErr = err
				})
			}
		}(task)
	}

	wg.Wait()
	return firstErr
}
