package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"

	"github.com/DrSkyle/idcreport/pkg/engine/aws"
	"github.com/DrSkyle/idcreport/pkg/engine/identity"
	"github.com/DrSkyle/idcreport/pkg/engine/model"
	"github.com/DrSkyle/idcreport/pkg/engine/report"
	"github.com/DrSkyle/idcreport/pkg/engine/transform"
	"github.com/DrSkyle/idcreport/pkg/storage"
	"github.com/DrSkyle/idcreport/pkg/telemetry"
	"github.com/DrSkyle/idcreport/pkg/version"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrMissingRoleARN indicates no crawler role was configured.
var ErrMissingRoleARN = errors.New("crawler role ARN is required")

// ErrPartialResult indicates the run completed but some lookups failed,
// so the report may be missing accounts, assignments, or identity names.
var ErrPartialResult = errors.New("report completed with partial results")

// Config holds engine settings.
type Config struct {
	Region         string
	CrawlerRoleARN string

	// Report destination. Empty ReportBucket skips the upload; OutputDir
	// writes the artifacts to the local filesystem instead.
	ReportBucket string
	ReportPrefix string
	OutputDir    string

	// PermissionSets restricts collection to the named permission sets.
	// Empty means all.
	PermissionSets []string

	// Identity Center coordinates. Discovered from the API when empty.
	InstanceARN     string
	IdentityStoreID string

	// StrictMode forces a non-nil error when any lookup degraded.
	StrictMode bool

	Verbose  bool
	JsonLogs bool

	// Telemetry config.
	OtelEndpoint  string
	SkipTelemetry bool

	// Dependencies.
	Logger *slog.Logger
}

// Engine is the runtime core. It assumes the crawler role, collects
// provisioned permission sets, resolves the referenced principals, and
// publishes the rendered artifacts.
type Engine struct {
	Logger *slog.Logger
	Tracer trace.Tracer

	// Immutable config.
	config Config

	// Store overrides the computed report destination when set.
	store storage.BlobStore

	// now is swappable so artifact names are stable under test.
	now func() time.Time

	// Runtime state.
	partial bool
}

// Option defines a functional configuration override.
type Option func(*Engine)

// New initializes the Engine.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{})
	e := &Engine{
		Logger: slog.New(handler),
		Tracer: otel.Tracer("idcreport/engine"),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	slog.SetDefault(e.Logger)

	if !e.config.SkipTelemetry {
		shutdown, err := telemetry.Init(ctx, version.AppName, version.Current, e.config.OtelEndpoint)
		if err != nil {
			e.Logger.Warn("Telemetry failed", "error", err)
		} else {
			_ = shutdown
		}
	}

	return e, nil
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.Logger = l
	}
}

// WithConfig sets raw config.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.config = cfg
		if cfg.ReportPrefix == "" {
			e.config.ReportPrefix = "idc-reports"
		}
		if cfg.Logger != nil {
			e.Logger = cfg.Logger
		}
	}
}

// WithStore sets the artifact destination, bypassing bucket resolution.
func WithStore(s storage.BlobStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithClock sets the timestamp source used for artifact names.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Run executes one report pass and returns the resolved report.
//
// Upstream failures degrade rather than abort: a lost account directory,
// instance, or identity lookup leaves its slice of the report empty and
// marks the run partial. Only credential and role assumption failures
// are fatal, since nothing can be collected without them.
func (e *Engine) Run(ctx context.Context) (*model.Report, error) {
	ctx, span := e.Tracer.Start(ctx, "Engine.Run")
	defer span.End()

	// Crash safety.
	defer e.recoverPanic(ctx)

	if !e.config.JsonLogs {
		fmt.Printf("%s %s\n", version.AppName, version.Current)
	}

	if e.config.CrawlerRoleARN == "" {
		return nil, ErrMissingRoleARN
	}

	base, err := aws.NewClient(ctx, e.config.Region)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aws session failed")
		return nil, fmt.Errorf("failed to create AWS client: %w", err)
	}

	if caller, err := base.VerifyIdentity(ctx); err != nil {
		e.Logger.Warn("Caller identity check failed", "error", err)
	} else {
		e.Logger.Info("Connected to AWS", "caller", caller, "region", e.config.Region)
	}

	crawlerCfg, err := base.AssumeRole(ctx, e.config.CrawlerRoleARN)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "role assumption failed")
		return nil, fmt.Errorf("failed to assume crawler role: %w", err)
	}

	directory := aws.NewAccountDirectory(crawlerCfg, e.Logger)
	if err := directory.Load(ctx); err != nil {
		e.Logger.Error("Account directory load failed, account names will be missing", "error", err)
		e.partial = true
	}

	collector := aws.NewCollector(crawlerCfg, directory, e.Logger)
	collector.InstanceARN = e.config.InstanceARN
	collector.IdentityStoreID = e.config.IdentityStoreID

	set := model.AssignmentSet{}
	if err := collector.DiscoverInstance(ctx); err != nil {
		e.Logger.Error("Identity Center instance discovery failed", "error", err)
		e.partial = true
	} else {
		set = e.collect(ctx, collector)
	}

	resolver := identity.NewResolver(crawlerCfg, collector.IdentityStoreID, e.Logger)
	if collector.IdentityStoreID != "" {
		e.prime(ctx, resolver)
	}

	rep := transform.New(resolver, e.Logger).Transform(ctx, set)

	e.publish(ctx, base.Config, rep)

	if e.partial {
		span.SetAttributes(attribute.Bool("report.partial", true))
		if e.config.StrictMode {
			e.Logger.Error("Strict Mode: Failing due to partial report results")
			return rep, ErrPartialResult
		}
		e.Logger.Warn("Report finished with partial results (StrictMode=false)")
	}

	return rep, nil
}

func (e *Engine) collect(ctx context.Context, collector *aws.Collector) model.AssignmentSet {
	ctx, span := e.Tracer.Start(ctx, "Engine.Collect")
	defer span.End()

	set := collector.Collect(ctx, e.config.PermissionSets)
	span.SetAttributes(attribute.Int("report.permission_sets", len(set)))
	e.Logger.Info("Collected provisioned permission sets", "count", len(set))
	return set
}

func (e *Engine) prime(ctx context.Context, resolver *identity.Resolver) {
	ctx, span := e.Tracer.Start(ctx, "Engine.PrimeIdentityCache")
	defer span.End()

	resolver.Prime(ctx)
	users, groups := resolver.CacheSizes()
	span.SetAttributes(
		attribute.Int("identity.users", users),
		attribute.Int("identity.groups", groups),
	)
	e.Logger.Info("Identity cache primed", "users", users, "groups", groups)
}

// publish renders the artifacts and writes them to the configured
// destination. Rendering or upload failures mark the run partial; the
// in-memory report is already complete at this point.
func (e *Engine) publish(ctx context.Context, cfg awssdk.Config, rep *model.Report) {
	ctx, span := e.Tracer.Start(ctx, "Engine.Publish")
	defer span.End()

	artifacts, err := report.RenderCSV(rep, e.now())
	if err != nil {
		e.Logger.Error("CSV rendering failed", "error", err)
		e.partial = true
	}

	if excel, err := report.RenderExcel(rep, e.now()); err != nil {
		e.Logger.Error("Excel rendering failed", "error", err)
		e.partial = true
	} else {
		artifacts = append(artifacts, excel)
	}

	store := e.resolveStore(cfg)
	if store == nil {
		e.Logger.Info("No report destination configured, skipping upload")
		return
	}

	for _, artifact := range artifacts {
		if err := store.Put(ctx, artifact.Name, artifact.Content); err != nil {
			e.Logger.Error("Artifact upload failed", "artifact", artifact.Name, "error", err)
			e.partial = true
			continue
		}
		e.Logger.Info("Artifact published", "artifact", artifact.Name, "bytes", len(artifact.Content))
	}
}

func (e *Engine) resolveStore(cfg awssdk.Config) storage.BlobStore {
	if e.store != nil {
		return e.store
	}
	if e.config.ReportBucket != "" {
		return storage.NewS3Store(cfg, e.config.ReportBucket, e.config.ReportPrefix)
	}
	if e.config.OutputDir != "" {
		return storage.NewLocalStore(e.config.OutputDir)
	}
	return nil
}

// recoverPanic handles failures.
func (e *Engine) recoverPanic(ctx context.Context) {
	if r := recover(); r != nil {
		tr := otel.Tracer("idcreport/engine")
		_, span := tr.Start(ctx, "CriticalPanic")

		stack := debug.Stack()

		span.RecordError(fmt.Errorf("%v", r), trace.WithStackTrace(true))
		span.SetStatus(codes.Error, "CRITICAL FAILURE")
		span.SetAttributes(
			attribute.String("crash.stack", string(stack)),
			attribute.String("crash.reason", fmt.Sprintf("%v", r)),
		)
		span.End()

		e.Logger.Error("CRITICAL FAILURE", "error", r, "stack", string(stack))

		// No os.Exit here so library callers can handle the error state.
	}
}
