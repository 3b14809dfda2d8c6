package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/harvestd/internal/domain"
	"github.com/target/harvestd/internal/domain/model"
)

func TestNewJobService_RequiresDependencies(t *testing.T) {
	_, err := NewJobService(JobServiceOptions{Jobs: newFakeJobRepo()})
	require.Error(t, err)

	_, err = NewJobService(JobServiceOptions{Sources: newFakeSourceRepo()})
	require.Error(t, err)
}

func TestJobService_CreateJob(t *testing.T) {
	ctx := context.Background()
	sources := newFakeSourceRepo(
		&model.Source{ID: "active", Active: true, Frequency: model.FrequencyDaily},
		&model.Source{ID: "inactive", Active: false, Frequency: model.FrequencyDaily},
	)
	jobs := newFakeJobRepo()
	svc, err := NewJobService(JobServiceOptions{Sources: sources, Jobs: jobs})
	require.NoError(t, err)

	t.Run("creates a new job", func(t *testing.T) {
		job, err := svc.CreateJob(ctx, "active")
		require.NoError(t, err)
		assert.Equal(t, "active", job.SourceID)
		assert.Equal(t, model.JobStatusNew, job.Status)
	})

	t.Run("rejects a second active job", func(t *testing.T) {
		_, err := svc.CreateJob(ctx, "active")
		require.ErrorIs(t, err, domain.ErrJobAlreadyExists)
		assert.Len(t, jobs.activeFor("active"), 1)
	})

	t.Run("inactive source", func(t *testing.T) {
		_, err := svc.CreateJob(ctx, "inactive")
		require.ErrorIs(t, err, domain.ErrSourceInactive)
	})

	t.Run("unknown source", func(t *testing.T) {
		_, err := svc.CreateJob(ctx, "missing")
		require.ErrorIs(t, err, domain.ErrSourceNotFound)
	})
}
