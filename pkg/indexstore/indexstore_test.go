package indexstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/stressoor/pkg/config"
	"github.com/ethpandaops/stressoor/pkg/indexstore"
	"github.com/ethpandaops/stressoor/pkg/summary"
)

func setupTestStore(t *testing.T) indexstore.Store {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := indexstore.NewStore(log, cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func parsedRun(host, kernel, date string) *summary.Run {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	return &summary.Run{
		Host:      host,
		Kernel:    kernel,
		Mode:      "freeze",
		File:      "/data/" + host + "-" + kernel + "/summary.html",
		Results:   summary.ResultCounts{Tests: 10, Pass: 8, Fail: 1, Hang: 1},
		Date:      date,
		Time:      "030405",
		Start:     start,
		End:       start.Add(time.Hour),
		TestTime:  400,
		TotalTime: 4000,
		Suspend:   summary.StatSet{{Value: "3"}, {Value: "2"}, {Value: "1"}},
		Resume:    summary.StatSet{{Value: "6"}, {Value: "5"}, {Value: "4"}},
		Issues:    []summary.Issue{{Count: 2, Line: "a"}, {Count: 3, Line: "b"}},
	}
}

func TestNewRun(t *testing.T) {
	lpi := 7
	r := parsedRun("hostA", "6.1", "20240102")
	r.SysLPI = &lpi

	row := indexstore.NewRun("/data", r)

	assert.Equal(t, "/data", row.Root)
	assert.Equal(t, r.File, row.File)
	assert.Equal(t, 8, row.Pass)
	assert.Equal(t, "3", row.SuspendMax)
	assert.Equal(t, "4", row.ResumeMin)
	assert.Equal(t, 5, row.IssueCount)
	assert.Equal(t, r.Start.Unix(), row.StartedAt)
	require.NotNil(t, row.SysLPI)
	assert.Equal(t, 7, *row.SysLPI)
}

func TestStore_UpsertAndListRuns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertRun(ctx, indexstore.NewRun("/data", parsedRun("hostB", "6.1", "20240102"))))
	require.NoError(t, s.UpsertRun(ctx, indexstore.NewRun("/data", parsedRun("hostA", "6.1", "20240102"))))
	require.NoError(t, s.UpsertRun(ctx, indexstore.NewRun("/data", parsedRun("hostA", "5.10", "20240101"))))

	runs, err := s.ListRuns(ctx, "6.1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "hostA", runs[0].Host)
	assert.Equal(t, "hostB", runs[1].Host)

	all, err := s.ListRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "5.10", all[0].Kernel)
}

func TestStore_UpsertRunIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	r := parsedRun("hostA", "6.1", "20240102")
	require.NoError(t, s.UpsertRun(ctx, indexstore.NewRun("/data", r)))

	r.Results.Pass = 9
	r.Results.Fail = 0
	require.NoError(t, s.UpsertRun(ctx, indexstore.NewRun("/data", r)))

	runs, err := s.ListRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 9, runs[0].Pass)
	assert.Equal(t, 0, runs[0].Fail)
}

func TestStore_ReplaceDevices(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceDevices(ctx, "/data", []indexstore.Device{
		{Phase: "suspend", Name: "fast", Worst: 1},
		{Phase: "suspend", Name: "slow", Worst: 9},
		{Phase: "resume", Name: "other", Worst: 5},
	}))

	devices, err := s.ListDevices(ctx, "/data", summary.PhaseSuspend)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "slow", devices[0].Name)
	assert.Equal(t, "/data", devices[0].Root)

	require.NoError(t, s.ReplaceDevices(ctx, "/data", []indexstore.Device{
		{Phase: "suspend", Name: "only", Worst: 2},
	}))

	devices, err = s.ListDevices(ctx, "/data", summary.PhaseSuspend)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "only", devices[0].Name)

	devices, err = s.ListDevices(ctx, "/data", summary.PhaseResume)
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestStore_IndexCollection(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	c := &summary.Collection{
		Root: "/data",
		Runs: []*summary.Run{
			parsedRun("hostA", "6.1", "20240102"),
			parsedRun("hostB", "6.1", "20240102"),
		},
		Devices: summary.NewDeviceTableFrom([]summary.DeviceStat{
			{Phase: summary.PhaseResume, Name: "nvme", Count: 2, Total: 4, Worst: 3, Host: "hostA"},
		}),
		Options: summary.ParseOptions{Devices: true},
	}

	n, err := s.IndexCollection(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	devices, err := s.ListDevices(ctx, "/data", summary.PhaseResume)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "nvme", devices[0].Name)
	assert.InDelta(t, 2.0, devices[0].Average, 1e-9)

	// Re-indexing the same scan does not duplicate runs.
	_, err = s.IndexCollection(ctx, c)
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, "6.1")
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestStore_IndexCollectionKeepsDevicesWhenNotExtracted(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	runs := []*summary.Run{parsedRun("hostA", "6.1", "20240102")}

	_, err := s.IndexCollection(ctx, &summary.Collection{
		Root: "/data",
		Runs: runs,
		Devices: summary.NewDeviceTableFrom([]summary.DeviceStat{
			{Phase: summary.PhaseSuspend, Name: "i915", Count: 1, Total: 5, Worst: 5, Host: "hostA"},
		}),
		Options: summary.ParseOptions{Devices: true},
	})
	require.NoError(t, err)

	// A scan without device extraction still carries an empty table.
	_, err = s.IndexCollection(ctx, &summary.Collection{
		Root:    "/data",
		Runs:    runs,
		Devices: summary.NewDeviceTable(),
	})
	require.NoError(t, err)

	devices, err := s.ListDevices(ctx, "/data", summary.PhaseSuspend)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "i915", devices[0].Name)

	// A scan with extraction enabled replaces the table, even when empty.
	_, err = s.IndexCollection(ctx, &summary.Collection{
		Root:    "/data",
		Runs:    runs,
		Devices: summary.NewDeviceTable(),
		Options: summary.ParseOptions{Devices: true},
	})
	require.NoError(t, err)

	devices, err = s.ListDevices(ctx, "/data", summary.PhaseSuspend)
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestStore_UnsupportedDriver(t *testing.T) {
	s := indexstore.NewStore(logrus.New(), &config.DatabaseConfig{Driver: "mysql"})
	require.Error(t, s.Start(context.Background()))
}
