package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hotelplan/internal/servicetoken"
	"hotelplan/pkg/compliance"
	"hotelplan/pkg/conversation"
	"hotelplan/pkg/domain"
)

const defaultPipelineURL = "http://localhost:8090"

// triggerOptions are the flags shared by the trigger subcommands.
type triggerOptions struct {
	pipelineURL        string
	privateKeyPath     string
	keyID              string
	brandTier          string
	regionalMultiplier float64
	client             *http.Client
}

func main() {
	if err := newRootCmd(os.Stdout, &triggerOptions{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer, trigger *triggerOptions) *cobra.Command {
	root := &cobra.Command{
		Use:          "planctl",
		Short:        "planctl - hotel planning operator tool",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.AddCommand(newConverseCmd(), newComplianceCmd(), newTriggerCmd(trigger))
	return root
}

func newConverseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "converse <transcript.json>",
		Short: "Run the questionnaire over a saved transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := readTranscript(args[0])
			if err != nil {
				return err
			}
			outcome, err := conversation.NewEngine().Run(history)
			if err != nil {
				return err
			}
			if !outcome.Complete() {
				return printJSON(cmd.OutOrStdout(), map[string]any{"question": outcome.Question})
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"model":   outcome.Model,
				"name":    conversation.ProjectName(*outcome.Model),
				"message": conversation.CompletionMessage,
			})
		},
	}
}

// readTranscript accepts either a bare message array or {"messages": [...]}.
func readTranscript(path string) ([]domain.ChatMessage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	var history []domain.ChatMessage
	if err := json.Unmarshal(raw, &history); err == nil {
		return history, nil
	}
	var wrapped struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	return wrapped.Messages, nil
}

type designFile struct {
	Floors      []domain.Floor      `json:"floors"`
	PublicAreas []domain.PublicArea `json:"publicAreas"`
}

type complianceReport struct {
	TotalRooms      int                      `json:"totalRooms"`
	AccessibleRooms int                      `json:"accessibleRooms"`
	Errors          int                      `json:"errors"`
	Warnings        int                      `json:"warnings"`
	Infos           int                      `json:"infos"`
	Compliant       bool                     `json:"compliant"`
	Issues          []domain.ComplianceIssue `json:"issues"`
}

func newComplianceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compliance <design.json>",
		Short: "Evaluate a design file against the compliance rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read design: %w", err)
			}
			var d designFile
			if err := json.Unmarshal(raw, &d); err != nil {
				return fmt.Errorf("parse design: %w", err)
			}
			issues := compliance.Evaluate(d.Floors, d.PublicAreas)
			errs, warnings, infos := compliance.Counts(issues)
			return printJSON(cmd.OutOrStdout(), complianceReport{
				TotalRooms:      compliance.TotalRooms(d.Floors),
				AccessibleRooms: compliance.AccessibleRooms(d.Floors),
				Errors:          errs,
				Warnings:        warnings,
				Infos:           infos,
				Compliant:       !domain.HasErrors(issues),
				Issues:          issues,
			})
		},
	}
}

func newTriggerCmd(opts *triggerOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Invoke a pipeline stage for a project",
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.pipelineURL, "pipeline-url", envOr("PLANCTL_PIPELINE_URL", defaultPipelineURL), "pipeline service base URL")
	flags.StringVar(&opts.privateKeyPath, "key", os.Getenv("INTERNAL_JWT_PRIVATE_KEY_PATH"), "RSA private key used to sign the internal token")
	flags.StringVar(&opts.keyID, "kid", os.Getenv("INTERNAL_JWT_KEY_ID"), "key id placed in the token header")

	designChange := &cobra.Command{
		Use:   "design-change <projectId>",
		Short: "Mark the project as changed and start a recalculation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"record": map[string]string{"project_id": args[0]}}
			return opts.post(cmd, "/triggers/design-change", body)
		},
	}
	recalc := &cobra.Command{
		Use:   "recalc <projectId>",
		Short: "Re-run compliance for the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.post(cmd, "/triggers/recalc", map[string]any{"projectId": args[0]})
		},
	}
	costCmd := &cobra.Command{
		Use:   "cost <projectId>",
		Short: "Record a cost estimate for the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"projectId": args[0]}
			// Unset flags stay out of the body so the service applies its defaults.
			if cmd.Flags().Changed("brand-tier") {
				body["brandTier"] = opts.brandTier
			}
			if cmd.Flags().Changed("multiplier") {
				body["regionalMultiplier"] = opts.regionalMultiplier
			}
			return opts.post(cmd, "/triggers/cost", body)
		},
	}
	costCmd.Flags().StringVar(&opts.brandTier, "brand-tier", "", "brand tier (standard, upscale, luxury)")
	costCmd.Flags().Float64Var(&opts.regionalMultiplier, "multiplier", 0, "regional cost multiplier")

	cmd.AddCommand(designChange, recalc, costCmd)
	return cmd
}

func (o *triggerOptions) post(cmd *cobra.Command, path string, body any) error {
	signer, err := servicetoken.NewSignerWithOptions(servicetoken.SignerOptions{
		PrivateKeyPath: o.privateKeyPath,
		KeyID:          o.keyID,
		Issuer:         servicetoken.OperatorIssuer,
	})
	if err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := strings.TrimRight(o.pipelineURL, "/") + path
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := signer.Authorize(req, servicetoken.PipelineAudience); err != nil {
		return err
	}

	client := o.client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(respBody)))
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
