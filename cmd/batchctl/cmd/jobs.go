package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyderes/employee-batch-service/internal/models"
)

var errJobStuck = errors.New("job stuck")

type jobFlags struct {
	tenantID  string
	jobID     string
	olderThan time.Duration
}

func newJobsCommand(opts *options) *cobra.Command {
	jobs := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect ingestion jobs",
	}
	jobs.AddCommand(newJobsGetCommand(opts))
	jobs.AddCommand(newJobsStuckCommand(opts))
	return jobs
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tenantID, "tenant", "", "tenant id (client_id of the submitter)")
	cmd.Flags().StringVar(&f.jobID, "id", "", "job id")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("id")
}

func (f *jobFlags) fetch(cmd *cobra.Command, opts *options) (*models.IngestionJob, error) {
	cfg, _, err := opts.load()
	if err != nil {
		return nil, err
	}
	store, err := openStorage(cmd.Context(), cfg.Storage)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.GetJob(cmd.Context(), f.tenantID, f.jobID)
}

func newJobsGetCommand(opts *options) *cobra.Command {
	flags := &jobFlags{}
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print a job with its derived state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := flags.fetch(cmd, opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(models.NewJobView(*job))
		},
	}
	flags.register(cmd)
	return cmd
}

func newJobsStuckCommand(opts *options) *cobra.Command {
	flags := &jobFlags{}
	cmd := &cobra.Command{
		Use:   "stuck",
		Short: "Exit non-zero if a job has been running longer than --older-than",
		Long: `stuck reports jobs whose background processing started but never finalized,
for example because the finalize write kept failing or the worker hit its timeout.
Exit code 0 means the job is pending, completed or still within the threshold.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := flags.fetch(cmd, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if job.State() != models.JobStateRunning {
				fmt.Fprintf(out, "job %s is %s\n", job.JobID, job.State())
				return nil
			}

			age := now().Sub(*job.StartedAt)
			if age < flags.olderThan {
				fmt.Fprintf(out, "job %s running for %s\n", job.JobID, age.Round(time.Second))
				return nil
			}
			fmt.Fprintf(out, "job %s running for %s without finalizing\n", job.JobID, age.Round(time.Second))
			return fmt.Errorf("%w: %s", errJobStuck, job.JobID)
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&flags.olderThan, "older-than", 20*time.Minute, "running time after which a job counts as stuck")
	return cmd
}

var now = time.Now
