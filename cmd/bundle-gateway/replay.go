package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/bundle-gateway/internal/pkg/config"
	"github.com/tjfontaine/bundle-gateway/internal/processing"
)

func replayCmd(configPath *string, logger *slog.Logger) *cobra.Command {
	var (
		interactionID string
		strategy      string
		baseURL       string
		provenance    string
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-send the last forwarded payload of a failed interaction",
		Long: `Replay delivers the payload recorded on a failed interaction's last
forward attempt, without re-running validation.

Examples:
  bundle-gateway replay --interaction-id 0192f0c4-...
  bundle-gateway replay --interaction-id 0192f0c4-... --strategy no-auth`,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]string{}
			if strategy != "" {
				params[processing.ParamTransportStrategy] = strategy
			}
			if baseURL != "" {
				params[processing.ParamCustomDataLakeAPI] = baseURL
			}
			if provenance != "" {
				params[processing.ParamProvenance] = provenance
			}
			return runReplay(cmd.Context(), *configPath, interactionID, params, logger)
		},
	}
	cmd.Flags().StringVar(&interactionID, "interaction-id", "", "interaction to replay")
	cmd.Flags().StringVar(&strategy, "strategy", "", "transport strategy override")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "scoring base URL override")
	cmd.Flags().StringVar(&provenance, "provenance", "", "provenance recorded on the replay")
	_ = cmd.MarkFlagRequired("interaction-id")
	return cmd
}

func runReplay(ctx context.Context, configPath, interactionID string, params map[string]string, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.coordinator.ReplaySync(ctx, interactionID, params)
	if err != nil {
		return err
	}

	out := map[string]any{
		"interactionId":       result.InteractionID,
		"tenantId":            result.TenantID,
		"strategy":            result.Strategy,
		"forwardedFromRecord": result.ForwardedFrom,
	}
	if d := result.Delivery; d != nil {
		out["deliveryStatus"] = d.Status
		out["statusCode"] = d.StatusCode
		if d.Err != nil {
			out["error"] = d.Err.Error()
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if result.Delivery != nil && !result.Delivery.Succeeded() {
		return fmt.Errorf("replay of %s ended with %s", interactionID, result.Delivery.Status)
	}
	return nil
}
