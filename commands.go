package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anirudhbiyani/steps-auth/pkg/authstack"
)

func newSynthCmd(a *app) *cobra.Command {
	var format, out string

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Render the stack as a CloudFormation template",
		RunE: func(cmd *cobra.Command, args []string) error {
			stack := a.stack()
			if err := stack.Validate(); err != nil {
				return err
			}
			tpl, err := stack.Synthesize()
			if err != nil {
				return err
			}
			data, err := tpl.Render(format)
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				return fmt.Errorf("failed to write template: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "Template format: json|yaml")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func newDeployCmd(a *app) *cobra.Command {
	var (
		provider string
		dryRun   bool
		tags     map[string]string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Create or update the user pool and its client",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			opts := authstack.DeployOptions{
				Provider: authstack.ProviderName(provider),
				DryRun:   dryRun,
				Tags:     tags,
				Timeout:  a.cfg.Deploy.Timeout,
			}

			if dryRun {
				fmt.Fprintln(w, "Dry-run mode: no changes will be made")
			}

			outputs, err := a.manager.Deploy(cmd.Context(), a.stack(), opts)
			if err != nil {
				return fmt.Errorf("deploy failed: %w", err)
			}

			if outputs.Plan != nil {
				printPlan(w, *outputs.Plan)
				for _, line := range outputs.Instructions {
					fmt.Fprintf(w, "  %s\n", line)
				}
				return nil
			}

			fmt.Fprintf(w, "Deployed stack %s\n", outputs.Ref.StackID)
			fmt.Fprintf(w, "Reference: %s\n", outputs.Ref.ID)
			printMap(w, "Outputs", outputs.Values)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Provisioning engine: cloudformation|cognito (default deploy.provider)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without making changes")
	cmd.Flags().StringToStringVar(&tags, "tag", nil, "Extra resource tags (key=value, repeatable)")
	return cmd
}

func newValidateCmd(a *app) *cobra.Command {
	var (
		refID   string
		checks  []string
		timeout time.Duration
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a deployment against the declared stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.resolveRef(cmd.Context(), refID)
			if err != nil {
				return err
			}

			report, err := a.manager.Validate(cmd.Context(), *ref, authstack.ValidateOptions{
				CheckIDs: checks,
				Stack:    a.stack(),
				Timeout:  timeout,
			})
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			if asJSON {
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				printReport(cmd.OutOrStdout(), report)
			}

			if !report.IsValid() {
				return errInvalid
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&refID, "ref", "", "Deployment reference ID (default latest deployment of stack.id)")
	cmd.Flags().StringSliceVar(&checks, "check", nil, "Limit validation to these check IDs")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Validation timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func newDestroyCmd(a *app) *cobra.Command {
	var (
		refID  string
		force  bool
		yes    bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Remove a deployment, honoring the removal policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			ref, err := a.resolveRef(cmd.Context(), refID)
			if err != nil {
				return err
			}

			opts := authstack.DestroyOptions{
				DryRun:  dryRun,
				Force:   force,
				Timeout: a.cfg.Deploy.Timeout,
			}
			if !yes {
				opts.Confirm = func(plan authstack.Plan) bool {
					return confirm(cmd.InOrStdin(), w, plan)
				}
			}

			if dryRun {
				fmt.Fprintln(w, "Dry-run mode: no changes will be made")
				printPlan(w, authstack.DestroyPlan(*ref))
			}

			if err := a.manager.Destroy(cmd.Context(), *ref, opts); err != nil {
				if errors.Is(err, authstack.ErrCancelled) {
					return err
				}
				return fmt.Errorf("destroy failed: %w", err)
			}

			switch {
			case dryRun:
				fmt.Fprintln(w, "Would destroy deployment and associated resources")
			case ref.RemovalPolicy == authstack.RemovalPolicyRetain:
				fmt.Fprintf(w, "Destroyed deployment %s; user pool retained\n", ref.ID)
			default:
				fmt.Fprintf(w, "Destroyed deployment %s\n", ref.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&refID, "ref", "", "Deployment reference ID (default latest deployment of stack.id)")
	cmd.Flags().BoolVar(&force, "force", false, "Destroy even deployments not owned by steps-auth")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be destroyed without making changes")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var (
		provider string
		stackID  string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded deployments",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			refs, err := a.manager.List(cmd.Context(), authstack.ListFilter{
				StackID:  stackID,
				Provider: authstack.ProviderName(provider),
			})
			if err != nil {
				return fmt.Errorf("failed to list deployments: %w", err)
			}

			if asJSON {
				return printJSON(w, refs)
			}
			if len(refs) == 0 {
				fmt.Fprintln(w, "No deployments found")
				return nil
			}
			printRefTable(w, refs)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Filter by provisioning engine")
	cmd.Flags().StringVar(&stackID, "stack", "", "Filter by stack ID")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newDescribeCmd(a *app) *cobra.Command {
	var refID string

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Show details of a deployment",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.resolveRef(cmd.Context(), refID)
			if err != nil {
				return err
			}
			printRef(cmd.OutOrStdout(), *ref)
			return nil
		},
	}
	cmd.Flags().StringVar(&refID, "ref", "", "Deployment reference ID (default latest deployment of stack.id)")
	return cmd
}

func newOutputsCmd(a *app) *cobra.Command {
	var (
		refID  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "outputs",
		Short: "Print the user pool and client IDs of a deployment",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.resolveRef(cmd.Context(), refID)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), ref.Outputs)
			}
			for _, k := range sortedKeys(ref.Outputs) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, ref.Outputs[k])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&refID, "ref", "", "Deployment reference ID (default latest deployment of stack.id)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newProvidersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List provisioning engines and their capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Available Providers:")
			for _, info := range a.manager.Registry().Describe() {
				marker := ""
				if string(info.Name) == a.cfg.Deploy.Provider {
					marker = " (default)"
				}
				fmt.Fprintf(w, "\n  %s%s\n", info.Name, marker)
				if !info.Instantiated {
					fmt.Fprintln(w, "    Status: registered (instantiated on first use)")
					continue
				}
				caps := make([]string, 0, len(info.Capabilities))
				for _, c := range info.Capabilities {
					caps = append(caps, string(c))
				}
				fmt.Fprintf(w, "    Capabilities: %s\n", strings.Join(caps, ", "))
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// Skip config loading.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "steps-auth version %s\n", version)
			fmt.Fprintln(cmd.OutOrStdout(), "  Providers: cloudformation, cognito")
		},
	}
}

// confirm prints the plan and reads a yes/no answer from r.
func confirm(r io.Reader, w io.Writer, plan authstack.Plan) bool {
	printPlan(w, plan)
	fmt.Fprint(w, "\nAre you sure? [y/N]: ")

	line, _ := bufio.NewReader(r).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func printPlan(w io.Writer, plan authstack.Plan) {
	fmt.Fprintf(w, "\n=== Plan ===\n%s\n", plan.Summary)
	for _, action := range plan.Actions {
		id := action.ResourceID
		if id == "" {
			id = "(new)"
		}
		fmt.Fprintf(w, "  %-7s %-32s %s\n", action.Operation, action.ResourceType, id)
	}
}

func printReport(w io.Writer, report *authstack.ValidationReport) {
	fmt.Fprintln(w, "=== Validation Report ===")
	fmt.Fprintf(w, "Deployment: %s\n", report.Ref.ID)
	fmt.Fprintf(w, "Valid: %t\n", report.IsValid())
	fmt.Fprintf(w, "Checks: %d passed, %d failed, %d skipped\n",
		report.Summary.PassedChecks,
		report.Summary.FailedChecks,
		report.Summary.SkippedChecks)

	for _, check := range report.Checks {
		status := "✓"
		switch check.Status {
		case authstack.CheckStatusFailed:
			status = "✗"
		case authstack.CheckStatusSkipped:
			status = "○"
		}

		fmt.Fprintf(w, "\n%s %s [%s]\n", status, check.Name, check.Severity)
		if check.Status == authstack.CheckStatusFailed && check.Remediation != "" {
			fmt.Fprintf(w, "  Remediation: %s\n", check.Remediation)
		}
	}
}

func printRefTable(w io.Writer, refs []authstack.StackRef) {
	fmt.Fprintf(w, "%-40s %-16s %-14s %-6s %s\n", "ID", "STACK", "PROVIDER", "OWNED", "CREATED")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, ref := range refs {
		owned := "no"
		if ref.Owned {
			owned = "yes"
		}
		fmt.Fprintf(w, "%-40s %-16s %-14s %-6s %s\n",
			truncate(ref.ID, 40),
			truncate(ref.StackID, 16),
			ref.Provider,
			owned,
			ref.CreatedAt.Format("2006-01-02"),
		)
	}
}

func printRef(w io.Writer, ref authstack.StackRef) {
	fmt.Fprintln(w, "=== Deployment Details ===")
	fmt.Fprintf(w, "ID: %s\n", ref.ID)
	fmt.Fprintf(w, "Stack: %s\n", ref.StackID)
	fmt.Fprintf(w, "Provider: %s\n", ref.Provider)
	fmt.Fprintf(w, "Removal Policy: %s\n", ref.RemovalPolicy)
	fmt.Fprintf(w, "Owned: %t\n", ref.Owned)
	fmt.Fprintf(w, "Created: %s\n", ref.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Version: %d\n", ref.Version)

	printMap(w, "Resources", ref.ResourceIDs)
	printMap(w, "Outputs", ref.Outputs)
}

func printMap(w io.Writer, title string, m map[string]string) {
	if len(m) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, k := range sortedKeys(m) {
		fmt.Fprintf(w, "  %s: %s\n", k, m[k])
	}
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
