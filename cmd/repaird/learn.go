package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/emberfix/repaird/internal/config"
	"github.com/emberfix/repaird/internal/knowledge"
	"github.com/emberfix/repaird/internal/learning"
)

var (
	learnOutcomesPath string
	learnOutPath      string
)

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Mine exported session outcomes for new diagnostic patterns",
	Long: `Run one offline mining pass.

Reads session outcomes exported by the daemon (JSON array), joins them
with the feedback store and prints the mining report. Promoted patterns
can be written as a YAML rule snippet for review before merging into
the patterns file.

Examples:
  repaird learn --outcomes outcomes.json
  repaird learn --outcomes outcomes.json --out learned.yaml`,
	RunE: runLearn,
}

func init() {
	learnCmd.Flags().StringVar(&learnOutcomesPath, "outcomes", "", "session outcomes export (JSON)")
	learnCmd.Flags().StringVar(&learnOutPath, "out", "", "write promoted patterns to this YAML file")
	_ = learnCmd.MarkFlagRequired("outcomes")
}

func runLearn(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	data, err := os.ReadFile(learnOutcomesPath)
	if err != nil {
		return fmt.Errorf("reading outcomes export: %w", err)
	}
	var outcomes []learning.Outcome
	if err := json.Unmarshal(data, &outcomes); err != nil {
		return fmt.Errorf("parsing outcomes export: %w", err)
	}

	fb, err := openFeedbackStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("opening feedback store: %w", err)
	}
	defer func() { _ = fb.Close() }()

	records, err := fb.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing feedback: %w", err)
	}

	miner := learning.NewMiner(learning.Config{
		MinSupport:      cfg.Learning.MinSupport,
		MinSuccessRate:  cfg.Learning.MinSuccessRate,
		RequireApproval: cfg.Learning.RequireApproval,
	})
	report := miner.Mine(outcomes, records)

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	fmt.Println(string(out))

	if learnOutPath != "" && len(report.Promoted) > 0 {
		if err := writeLearnedPatterns(learnOutPath, report.Promoted); err != nil {
			return err
		}
		fmt.Printf("wrote %d patterns to %s\n", len(report.Promoted), learnOutPath)
	}
	return nil
}

// writeLearnedPatterns emits promoted patterns in the rule file format
// so they can be reviewed and merged into patterns.yaml.
func writeLearnedPatterns(path string, patterns []*knowledge.Pattern) error {
	doc := struct {
		Patterns []*knowledge.Pattern `yaml:"patterns"`
	}{Patterns: patterns}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding patterns: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing patterns file: %w", err)
	}
	return nil
}
