package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/domain"
	"github.com/target/harvestd/internal/domain/model"
	"github.com/target/harvestd/internal/testutil"
)

func TestSourceRepo_Integration(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewSourceRepo(db)
		now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

		orgA := testutil.SeedOrganization(t, db, "org-a", "")
		orgB := testutil.SeedOrganization(t, db, "org-b", "")

		due := testutil.NewSource("due").WithOrg(orgA).
			WithFrequency(model.FrequencyDaily).
			WithNextRun(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)).
			WithConfig(`{"datajson_collection":"parents_run"}`).
			Insert(t, db)
		never := testutil.NewSource("never-run").WithOrg(orgB).WithFrequency(model.FrequencyWeekly).Insert(t, db)
		testutil.NewSource("future").WithOrg(orgA).WithFrequency(model.FrequencyDaily).
			WithNextRun(now.Add(time.Hour)).Insert(t, db)
		testutil.NewSource("manual").WithOrg(orgA).
			WithNextRun(now.Add(-time.Hour)).Insert(t, db)
		testutil.NewSource("inactive").WithOrg(orgA).WithFrequency(model.FrequencyDaily).
			WithNextRun(now.Add(-time.Hour)).Inactive().Insert(t, db)

		t.Run("sysadmin sees every due source", func(t *testing.T) {
			got, err := repo.ListDue(ctx, model.DueSourcesQuery{Now: now, Actor: model.SystemActor()})
			require.NoError(t, err)
			ids := []string{}
			for _, s := range got {
				ids = append(ids, s.ID)
			}
			assert.ElementsMatch(t, []string{due.ID, never.ID}, ids)
		})

		t.Run("org member sees own sources only", func(t *testing.T) {
			got, err := repo.ListDue(ctx, model.DueSourcesQuery{
				Now:   now,
				Actor: model.Actor{UserID: "u1", OrgIDs: []string{orgA}},
			})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, due.ID, got[0].ID)

			got, err = repo.ListDue(ctx, model.DueSourcesQuery{Now: now, Actor: model.Actor{UserID: "u2"}})
			require.NoError(t, err)
			assert.Empty(t, got)
		})

		t.Run("update next run and config", func(t *testing.T) {
			next := now.Add(24 * time.Hour)
			require.NoError(t, repo.UpdateNextRun(ctx, due.ID, next))
			require.NoError(t, repo.UpdateConfig(ctx, due.ID, `{"datajson_collection":"children_run"}`))

			got, err := repo.GetByID(ctx, due.ID)
			require.NoError(t, err)
			require.NotNil(t, got.NextRun)
			assert.True(t, next.Equal(*got.NextRun))
			cfg, err := got.ParsedConfig()
			require.NoError(t, err)
			assert.Equal(t, "children_run", cfg["datajson_collection"])

			require.ErrorIs(t, repo.UpdateNextRun(ctx, "missing", next), domain.ErrSourceNotFound)
		})

		t.Run("document flattens config", func(t *testing.T) {
			doc, err := repo.GetDocument(ctx, due.ID)
			require.NoError(t, err)
			assert.Equal(t, "children_run", doc["datajson_collection"])
			assert.Equal(t, due.Name, doc["name"])
			assert.Equal(t, SourceDatasetType, doc["dataset_type"])

			_, err = repo.GetDocument(ctx, "missing")
			require.ErrorIs(t, err, domain.ErrSourceNotFound)
		})

		t.Run("list active", func(t *testing.T) {
			got, err := repo.ListActive(ctx)
			require.NoError(t, err)
			assert.Len(t, got, 4)
		})
	})
}

func TestHarvestObjectRepo_Integration(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewHarvestObjectRepo(db)

		org := testutil.SeedOrganization(t, db, "org", "")
		src := testutil.NewSource("src").WithOrg(org).Insert(t, db)
		jobID := testutil.SeedJob(t, db, src.ID, model.JobStatusRunning, true)

		older := testutil.TestTime()
		newer := older.Add(time.Hour)
		pkg := testutil.SeedDataset(t, db, testutil.DatasetSeed{Name: "pkg", OwnerOrg: org})
		testutil.SeedObject(t, db, testutil.ObjectSeed{
			JobID: jobID, SourceID: src.ID, PackageID: pkg, State: model.ObjectStateComplete, ImportFinished: &older,
		})
		latest := testutil.SeedObject(t, db, testutil.ObjectSeed{
			JobID: jobID, SourceID: src.ID, PackageID: pkg, State: model.ObjectStateComplete,
			ImportFinished: &newer, ReportStatus: "updated",
		})
		broken := testutil.SeedDataset(t, db, testutil.DatasetSeed{Name: "broken", OwnerOrg: org})
		testutil.SeedObject(t, db, testutil.ObjectSeed{
			JobID: jobID, SourceID: src.ID, PackageID: broken, State: model.ObjectStateError,
			Errors: []string{"invalid spatial"},
		})

		n, err := repo.CountNonTerminal(ctx, jobID)
		require.NoError(t, err)
		assert.Zero(t, n)

		ids, err := repo.ListDatasetsWithoutCurrent(ctx, src.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{pkg, broken}, ids)

		outcome, err := repo.RelinkCurrent(ctx, pkg)
		require.NoError(t, err)
		assert.Equal(t, core.RelinkUpdated, outcome)

		outcome, err = repo.RelinkCurrent(ctx, pkg)
		require.NoError(t, err)
		assert.Equal(t, core.RelinkAlreadyLinked, outcome, "relinking twice is a no-op")

		outcome, err = repo.RelinkCurrent(ctx, broken)
		require.NoError(t, err)
		assert.Equal(t, core.RelinkNoValidObject, outcome)

		objs, err := repo.ListForImport(ctx, model.ObjectImportFilter{SourceID: src.ID})
		require.NoError(t, err)
		require.Len(t, objs, 1)
		assert.Equal(t, latest, objs[0].ID)
		assert.True(t, objs[0].Current)

		objs, err = repo.ListForImport(ctx, model.ObjectImportFilter{PackageID: "pkg"})
		require.NoError(t, err)
		require.Len(t, objs, 1)

		finished, err := repo.LatestImportFinished(ctx, jobID)
		require.NoError(t, err)
		require.NotNil(t, finished)
		assert.True(t, newer.Equal(*finished))

		errs, err := repo.ListObjectErrors(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, []string{"invalid spatial"}, errs)
	})
}

func TestSourceClearRepo_Integration(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		org := testutil.SeedOrganization(t, db, "org", "")
		src := testutil.NewSource("src").WithOrg(org).Insert(t, db)
		other := testutil.NewSource("other").WithOrg(org).Insert(t, db)

		jobID := testutil.SeedJob(t, db, src.ID, model.JobStatusFinished, true)
		testutil.SeedGatherError(t, db, jobID, "timeout")
		pkg := testutil.SeedDataset(t, db, testutil.DatasetSeed{
			Name: "pkg", OwnerOrg: org, Extras: map[string]string{"guid": "x"},
		})
		testutil.SeedObject(t, db, testutil.ObjectSeed{
			JobID: jobID, SourceID: src.ID, PackageID: pkg, State: model.ObjectStateError, Errors: []string{"bad"},
		})
		keepJob := testutil.SeedJob(t, db, other.ID, model.JobStatusNew, false)

		res, err := NewSourceClearRepo(db).ClearSource(ctx, src.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Steps["datasets"])
		assert.Equal(t, int64(1), res.Steps["jobs"])

		var count int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM package WHERE id = $1`, pkg).Scan(&count))
		assert.Zero(t, count)
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM harvest_job WHERE id = $1`, keepJob).Scan(&count))
		assert.Equal(t, 1, count)
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM harvest_source WHERE id = $1`, src.ID).Scan(&count))
		assert.Equal(t, 1, count, "the source itself is kept")
	})
}
