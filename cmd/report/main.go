// Command report runs the weekly batch: fetch all seven sources, generate
// the narrative, and persist the artifact the dashboard serves.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/marketing-pulse/internal/aggregate"
	"github.com/ignite/marketing-pulse/internal/config"
	"github.com/ignite/marketing-pulse/internal/ga4"
	"github.com/ignite/marketing-pulse/internal/kit"
	"github.com/ignite/marketing-pulse/internal/metaads"
	"github.com/ignite/marketing-pulse/internal/narrative"
	"github.com/ignite/marketing-pulse/internal/pkg/logger"
	"github.com/ignite/marketing-pulse/internal/report"
	"github.com/ignite/marketing-pulse/internal/searchconsole"
	"github.com/ignite/marketing-pulse/internal/source"
	"github.com/ignite/marketing-pulse/internal/unbounce"
	"github.com/ignite/marketing-pulse/internal/wistia"
	"github.com/ignite/marketing-pulse/internal/youtube"
)

// runTimeout bounds the whole batch. Vendor calls carry their own shorter
// timeouts; this is the backstop for a wedged narrative backend.
const runTimeout = 15 * time.Minute

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logger.Error("report run failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	runID := uuid.New().String()[:8]
	logger.Info("starting weekly report run", "run", runID)

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	now := time.Now().UTC()
	snapshot := aggregate.Run(ctx, buildAdapters(cfg), now)

	if snapshot.ErrorCount() == len(source.Names) {
		return fmt.Errorf("run %s: all %d sources failed, nothing to report", runID, len(source.Names))
	}

	client, err := narrativeClient(ctx, cfg.Narrative)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}

	weekOf := source.WindowsFor(now, 1).WeekOf()
	doc, err := narrative.NewGenerator(client).Generate(ctx, snapshot, weekOf)
	if err != nil {
		return fmt.Errorf("run %s: generating narrative: %w", runID, err)
	}

	writer := report.NewWriter(cfg.Storage.LocalPath)
	if cfg.Storage.S3Bucket != "" {
		mirror, err := report.NewS3Mirror(ctx, cfg.Storage)
		if err != nil {
			// The local artifact is the contract; a broken mirror is not fatal.
			logger.Warn("s3 mirror unavailable", "run", runID, "error", err)
		} else {
			writer.SetMirror(mirror)
		}
	}

	artifact := &report.Artifact{Narrative: *doc, RawData: snapshot}
	if err := writer.Write(ctx, artifact, weekOf); err != nil {
		return fmt.Errorf("run %s: persisting artifact: %w", runID, err)
	}

	logger.Info("run complete", "run", runID, "weekOf", artifact.WeekOf,
		"sourcesFailed", snapshot.ErrorCount(), "path", cfg.Storage.LocalPath)
	return nil
}

// buildAdapters wires one adapter per source in artifact order.
func buildAdapters(cfg *config.Config) []source.Adapter {
	return []source.Adapter{
		ga4.NewAdapter(ga4.Config{
			PropertyID:      cfg.GA4.PropertyID,
			CredentialsJSON: cfg.GA4.CredentialsJSON,
			Timeout:         cfg.GA4.Timeout(),
		}),
		searchconsole.NewAdapter(searchconsole.Config{
			SiteURL:         cfg.SearchConsole.SiteURL,
			CredentialsJSON: cfg.SearchConsole.CredentialsJSON,
			Timeout:         cfg.SearchConsole.Timeout(),
		}),
		youtube.NewAdapter(youtube.Config{
			ChannelID:    cfg.YouTube.ChannelID,
			ClientID:     cfg.YouTube.ClientID,
			ClientSecret: cfg.YouTube.ClientSecret,
			RefreshToken: cfg.YouTube.RefreshToken,
			Timeout:      cfg.YouTube.Timeout(),
		}),
		wistia.NewAdapter(wistia.Config{
			APIToken: cfg.Wistia.APIToken,
			Timeout:  cfg.Wistia.Timeout(),
		}),
		metaads.NewAdapter(metaads.Config{
			AccountID:   cfg.MetaAds.AccountID,
			AccessToken: cfg.MetaAds.AccessToken,
			Timeout:     cfg.MetaAds.Timeout(),
		}),
		kit.NewAdapter(kit.Config{
			APIKey:  cfg.Kit.APIKey,
			Timeout: cfg.Kit.Timeout(),
		}),
		unbounce.NewAdapter(unbounce.Config{
			SubAccountID: cfg.Unbounce.SubAccountID,
			APIKey:       cfg.Unbounce.APIKey,
			Timeout:      cfg.Unbounce.Timeout(),
		}),
	}
}

// narrativeClient selects the chat backend from configuration.
func narrativeClient(ctx context.Context, cfg config.NarrativeConfig) (narrative.ChatClient, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("narrative provider %q requires OPENAI_API_KEY", cfg.Provider)
		}
		return narrative.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.Timeout()), nil
	case "bedrock":
		return narrative.NewBedrockClient(ctx, cfg.BedrockModelID, cfg.BedrockRegion)
	}
	return nil, fmt.Errorf("unknown narrative provider %q", cfg.Provider)
}
