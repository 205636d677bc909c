package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ruleCacheKeyBase matches the keys the rule cache service writes:
// maskrules:<role>:<reportType>.
const ruleCacheKeyBase = "maskrules:"

type cacheClearOptions struct {
	Role       string
	ReportType string
	All        bool
	DryRun     bool
	Yes        bool
}

func runCacheClear(cmdCtx *commandContext, args []string) error {
	opts, err := parseCacheClearFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(cacheClearConfirmOptions{opts}, "clear cached masking rules"); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	_, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	if redisClient == nil {
		if writeErr := writeln(os.Stderr, "Redis client is not available"); writeErr != nil {
			return fmt.Errorf("print redis availability: %w", writeErr)
		}
		return nil
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	deleted, err := purgeRuleCache(&purgeRuleCacheRequest{
		Ctx:     ctx,
		Client:  redisClient,
		Logger:  cmdCtx.Logger,
		Options: opts,
	})
	if err != nil {
		return err
	}

	if deleted == 0 {
		return writeln(os.Stdout, "No masking-rule cache entries matched")
	}
	if opts.DryRun {
		return writef(os.Stdout, "Dry-run: %d masking-rule cache entries matched\n", deleted)
	}
	if err := writef(os.Stdout, "Deleted %d masking-rule cache entries\n", deleted); err != nil {
		return fmt.Errorf("print cache clear summary: %w", err)
	}
	// Each service instance also keeps an in-process copy that expires on its
	// own TTL; only the shared tier is cleared here.
	return writeln(os.Stdout, "Running services keep their in-process copies until the cache TTL lapses.")
}

type purgeRuleCacheRequest struct {
	Ctx     context.Context
	Client  redis.UniversalClient
	Logger  *slog.Logger
	Options cacheClearOptions
}

func purgeRuleCache(req *purgeRuleCacheRequest) (int, error) {
	if req == nil {
		return 0, errors.New("purge request is required")
	}
	pattern := buildRuleCachePattern(req.Options)

	req.Logger.Info("scanning redis", "pattern", pattern, "dry_run", req.Options.DryRun)

	iter := req.Client.Scan(req.Ctx, 0, pattern, 1000).Iterator()
	keys := make([]string, 0)
	for iter.Next(req.Ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan redis: %w", err)
	}
	if len(keys) == 0 || req.Options.DryRun {
		return len(keys), nil
	}

	for start := 0; start < len(keys); start += 100 {
		end := min(start+100, len(keys))
		if err := req.Client.Del(req.Ctx, keys[start:end]...).Err(); err != nil {
			return 0, fmt.Errorf("delete redis keys: %w", err)
		}
	}
	req.Logger.Info("redis keys deleted", "count", len(keys))
	return len(keys), nil
}

func buildRuleCachePattern(opts cacheClearOptions) string {
	if opts.All {
		return ruleCacheKeyBase + "*"
	}
	pattern := ruleCacheKeyBase + opts.Role + ":"
	if opts.ReportType == "" {
		return pattern + "*"
	}
	return pattern + opts.ReportType
}

type cacheClearConfirmOptions struct {
	opts cacheClearOptions
}

func (c cacheClearConfirmOptions) IsDryRun() bool { return c.opts.DryRun }
func (c cacheClearConfirmOptions) IsYes() bool    { return c.opts.Yes }
func (c cacheClearConfirmOptions) GetWarning() string {
	return "WARNING: this will remove every cached masking rule set; the next report for each role refetches rules from the identity provider."
}

func (c cacheClearConfirmOptions) GetTarget() string {
	if c.opts.All {
		return ""
	}
	target := fmt.Sprintf("role %q", c.opts.Role)
	if c.opts.ReportType != "" {
		target += fmt.Sprintf(", report type %q", c.opts.ReportType)
	}
	return target
}

func parseCacheClearFlags(args []string) (cacheClearOptions, error) {
	fs := flag.NewFlagSet("cache-clear", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts cacheClearOptions
	fs.StringVar(&opts.Role, "role", "", "Role whose cached rules to clear (required unless --all)")
	fs.StringVar(&opts.ReportType, "report-type", "", "Optional report type filter (requires --role)")
	fs.BoolVar(&opts.All, "all", false, "Clear cached rules for all roles")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print actions without executing")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return cacheClearOptions{}, err
	}

	opts.Role = strings.ToUpper(strings.TrimSpace(opts.Role))
	opts.ReportType = strings.ToUpper(strings.TrimSpace(opts.ReportType))

	if !opts.All && opts.Role == "" {
		return cacheClearOptions{}, errors.New("--role is required unless --all")
	}
	if opts.All && opts.Role != "" {
		return cacheClearOptions{}, errors.New("--all cannot be combined with --role")
	}

	return opts, nil
}
