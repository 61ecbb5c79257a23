package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/lensrecipe/internal/pipeline"
	"github.com/cwbudde/lensrecipe/internal/sequence"
	"github.com/cwbudde/lensrecipe/internal/store"
)

// runReplay replays the job's recipe in the background. Every instruction
// is appended to the recipe's trace and broadcast to stream clients.
func runReplay(ctx context.Context, jm *JobManager, recipes *store.FSStore, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := ctx.Err(); err != nil {
		markJobCancelled(jm, jobID)
		return err
	}

	rec, err := recipes.LoadRecipe(job.Config.RecipeID)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
		j.Instructions = rec.Recipe.Len()
	})
	if err != nil {
		return err
	}
	slog.Info("Starting job", "job_id", jobID, "recipe_id", rec.ID)

	trace, err := store.NewTraceWriter(recipes.BaseDir(), rec.ID, false)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	defer func() {
		if err := trace.Close(); err != nil {
			slog.Warn("Failed to close trace", "job_id", jobID, "error", err)
		}
	}()

	var convergence sequence.ConvergenceConfig
	if job.Config.EarlyStop {
		convergence = sequence.DefaultConvergenceConfig()
	}

	start := time.Now()
	res, err := pipeline.Replay(ctx, rec, pipeline.ReplayOptions{
		SettingsPath: job.Config.SettingsPath,
		Images:       job.Config.Images,
		Seed:         job.Config.Seed,
		Convergence:  convergence,
		Tracer:       &jobTracer{trace: trace, jm: jm, jobID: jobID},
	})
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		markJobCancelled(jm, jobID)
		return err
	case err != nil:
		markJobFailed(jm, jobID, err)
		return err
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Step = len(res.Stages)
		j.Cost = res.Cost
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", time.Since(start),
		"cost", res.Cost,
	)

	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateCompleted,
		Step:      len(res.Stages),
		Cost:      res.Cost,
		Timestamp: endTime,
	})
	return nil
}

// jobTracer writes replay trace entries and mirrors them into the job.
type jobTracer struct {
	trace *store.TraceWriter
	jm    *JobManager
	jobID string
}

func (t *jobTracer) Write(entry store.TraceEntry) error {
	if err := t.trace.Write(entry); err != nil {
		return err
	}
	if err := t.trace.Flush(); err != nil {
		return err
	}

	err := t.jm.UpdateJob(t.jobID, func(j *Job) {
		j.Step = entry.Step + 1
		j.Cost = entry.Cost
	})
	if err != nil {
		return err
	}

	t.jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     t.jobID,
		State:     StateRunning,
		Step:      entry.Step + 1,
		Op:        entry.Op,
		Cost:      entry.Cost,
		Timestamp: entry.Timestamp,
	})
	return nil
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)

	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateFailed, Timestamp: endTime})
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)

	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateCancelled, Timestamp: endTime})
}
