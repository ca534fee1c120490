package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskstation/internal/jobtypes"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(filepath.Join(dir, "jobs.jsonl"))
	require.NoError(t, err)

	j := jobtypes.New("id1", "isprime", map[string]string{"n": "7"}, jobtypes.High, time.Minute)
	require.NoError(t, log.Save(RecordFromJob(j)))

	records, err := log.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "id1", records[0].ID)
	require.Equal(t, "isprime", records[0].Task)
	require.Equal(t, "Queued", records[0].Status)
}

func TestSaveReplacesExistingLineForSameID(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(filepath.Join(dir, "jobs.jsonl"))
	require.NoError(t, err)

	j := jobtypes.New("id1", "factor", nil, jobtypes.Normal, time.Minute)
	require.NoError(t, log.Save(RecordFromJob(j)))

	j.SetStatus(jobtypes.Running)
	require.NoError(t, log.Save(RecordFromJob(j)))

	records, err := log.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Running", records[0].Status)
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(filepath.Join(dir, "does-not-exist.jsonl"))
	require.NoError(t, err)

	records, err := log.Load()
	require.NoError(t, err)
	require.Nil(t, records)
}

func TestStatusOrQueuedTolerance(t *testing.T) {
	require.Equal(t, jobtypes.Done, StatusOrQueued("Done"))
	require.Equal(t, jobtypes.Running, StatusOrQueued("Running"))
	require.Equal(t, jobtypes.Queued, StatusOrQueued("garbage"))
	require.Equal(t, jobtypes.ErrorStatus("boom"), StatusOrQueued("Error: boom"))
}
