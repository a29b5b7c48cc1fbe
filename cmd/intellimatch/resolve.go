package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/espin086/IntelliMatch/internal/active"
	"github.com/espin086/IntelliMatch/internal/blocking"
	"github.com/espin086/IntelliMatch/internal/classify"
	"github.com/espin086/IntelliMatch/internal/cluster"
	"github.com/espin086/IntelliMatch/internal/config"
	"github.com/espin086/IntelliMatch/internal/console"
	"github.com/espin086/IntelliMatch/internal/output"
	"github.com/espin086/IntelliMatch/internal/record"
	"github.com/espin086/IntelliMatch/internal/schema"
	"github.com/espin086/IntelliMatch/internal/settings"
	"github.com/espin086/IntelliMatch/internal/source"
	"github.com/espin086/IntelliMatch/internal/types"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Deduplicate a dataset into entity clusters",
	Long: `Resolve reads the configured dataset, learns which records refer to the
same entity, and writes cluster assignments to the output file.

On the first run it opens an interactive labeling session: candidate pairs
are presented one at a time, and your match/distinct answers train the
classifier. Labels and the trained model are saved under the settings
directory, so later runs over the same schema skip straight to clustering.

To retrain from scratch, delete the saved model file.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runResolve(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	resolveCmd.Flags().StringP("output", "o", "", "Write results here instead of the configured path")
	resolveCmd.Flags().Float64("threshold", 0, "Minimum match probability to merge records (overrides config)")
	resolveCmd.Flags().Int("budget", 0, "Max labels to collect this session (overrides config)")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyResolveFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	src, err := source.Open(cfg.SourceConfig())
	if err != nil {
		return err
	}

	log.Printf("Loading records from %s", src.Name())
	store, err := record.Load(ctx, src, cfg.Source.IDColumn)
	if err != nil {
		return err
	}
	log.Printf("Loaded %d records", store.Len())

	sch, err := cfg.Schema()
	if err != nil {
		return err
	}
	if err := sch.Check(store.Records()); err != nil {
		return err
	}

	sampler, err := blocking.NewSampler(store, sch, cfg.BlockingConfig())
	if err != nil {
		return err
	}

	model, err := settings.LoadModel(cfg.ModelPath(), sch)
	if err != nil {
		var mismatch *types.ModelCompatibilityError
		if errors.As(err, &mismatch) {
			return fmt.Errorf("%w\ndelete %s to retrain against the current fields", err, cfg.ModelPath())
		}
		return err
	}

	if model != nil {
		log.Printf("Reusing saved model from %s", cfg.ModelPath())
	} else {
		model, err = labelAndTrain(ctx, cfg, store, sch, sampler)
		if err != nil {
			return err
		}
	}

	log.Printf("Clustering %d records", store.Len())
	engine, err := cluster.NewEngine(store, sampler, model, cfg.ClusterConfig())
	if err != nil {
		return err
	}
	clusters, err := engine.Clusters(ctx)
	if err != nil {
		return err
	}

	if err := output.Write(cfg.Paths.Output, clusters); err != nil {
		return err
	}

	printSummary(store.Len(), clusters, cfg.Paths.Output)
	return nil
}

// applyResolveFlags overlays explicitly set command flags, the last and
// strongest configuration layer
func applyResolveFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Paths.Output, _ = flags.GetString("output")
	}
	if flags.Changed("threshold") {
		cfg.Cluster.Threshold, _ = flags.GetFloat64("threshold")
	}
	if flags.Changed("budget") {
		cfg.Session.LabelBudget, _ = flags.GetInt("budget")
	}
}

// labelAndTrain runs the interactive session and returns a trained model.
// Collected labels are appended to the history file on every exit path,
// the abort included, so no human answer is ever lost.
func labelAndTrain(ctx context.Context, cfg *config.Config, store *record.Store, sch *schema.Schema, sampler *blocking.Sampler) (*classify.Model, error) {
	history, err := settings.LoadHistory(cfg.HistoryPath())
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		log.Printf("Seeding session with %d labels from %s", len(history), cfg.HistoryPath())
	}

	oracle, err := console.New(sch)
	if err != nil {
		return nil, err
	}
	defer oracle.Close()

	sess, err := active.NewSession(store, sch, sampler, oracle, cfg.SessionConfig())
	if err != nil {
		return nil, err
	}

	labels, runErr := sess.Run(ctx, history)
	if len(labels) > 0 {
		if err := settings.AppendHistory(cfg.HistoryPath(), labels); err != nil {
			return nil, err
		}
		log.Printf("Recorded %d labels to %s", len(labels), cfg.HistoryPath())
	}
	if runErr != nil {
		if errors.Is(runErr, active.ErrAborted) {
			return nil, fmt.Errorf("%w; your labels were saved and will seed the next session", runErr)
		}
		return nil, runErr
	}

	model := sess.Model()
	if model == nil {
		// Converged without a trainable label set. Train once more over
		// everything we have so the error reports the actual counts.
		model, err = classify.Train(append(history, labels...), sch, cfg.SessionConfig().Training)
		if err != nil {
			return nil, err
		}
	}

	if err := settings.SaveModel(cfg.ModelPath(), model, sch); err != nil {
		return nil, err
	}
	log.Printf("Saved model to %s", cfg.ModelPath())

	return model, nil
}

func printSummary(records int, clusters []types.Cluster, outPath string) {
	green := color.New(color.FgGreen).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	groups, singletons := 0, 0
	for i := range clusters {
		if clusters[i].Size() > 1 {
			groups++
		} else {
			singletons++
		}
	}

	fmt.Printf("\n%s Resolved %s records into %s clusters (%d matched groups, %d singletons)\n",
		green("✓"), bold(records), bold(len(clusters)), groups, singletons)
	fmt.Printf("  Results written to %s\n", outPath)
}
