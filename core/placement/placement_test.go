package placement

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/babylonpiles/storaged/core/model"
)

func testDrive(id string, free uint64) model.DriveInfo {
	return model.DriveInfo{
		ID:         model.DriveID(id),
		TotalBytes: 1 << 40,
		FreeBytes:  free,
		Health:     model.DriveHealthy,
	}
}

func TestNewUnknownMode(t *testing.T) {
	_, err := New("weighted", "")
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestNewDefaultsToMostFree(t *testing.T) {
	policy, err := New("", "")
	require.NoError(t, err)
	require.IsType(t, &MostFreePolicy{}, policy)
}

func TestMostFreePicksLargestFree(t *testing.T) {
	drives := []model.DriveInfo{
		testDrive("aa", 100),
		testDrive("bb", 300),
		testDrive("cc", 200),
	}

	id, err := (&MostFreePolicy{}).Choose(drives, 10)
	require.NoError(t, err)
	require.Equal(t, model.DriveID("bb"), id)
}

func TestMostFreeTieBreaksOnLowestID(t *testing.T) {
	drives := []model.DriveInfo{
		testDrive("cc", 300),
		testDrive("aa", 300),
		testDrive("bb", 300),
	}

	policy := &MostFreePolicy{}
	for i := 0; i < 5; i++ {
		id, err := policy.Choose(drives, 10)
		require.NoError(t, err)
		require.Equal(t, model.DriveID("aa"), id)
	}
}

func TestMostFreeSkipsIneligible(t *testing.T) {
	unreachable := testDrive("aa", 500)
	unreachable.Health = model.DriveUnreachable

	draining := testDrive("bb", 400)
	draining.Draining = true

	drives := []model.DriveInfo{
		unreachable,
		draining,
		testDrive("cc", 100),
	}

	id, err := (&MostFreePolicy{}).Choose(drives, 10)
	require.NoError(t, err)
	require.Equal(t, model.DriveID("cc"), id)
}

func TestMostFreeRespectsSizeHint(t *testing.T) {
	drives := []model.DriveInfo{
		testDrive("aa", 50),
		testDrive("bb", 80),
	}

	_, err := (&MostFreePolicy{}).Choose(drives, 100)
	require.ErrorIs(t, err, ErrNoEligibleDrive)
}

func TestMostFreeNoDrives(t *testing.T) {
	_, err := (&MostFreePolicy{}).Choose(nil, 10)
	require.ErrorIs(t, err, ErrNoEligibleDrive)
}

func TestRoundRobinCycles(t *testing.T) {
	drives := []model.DriveInfo{
		testDrive("aa", 100),
		testDrive("bb", 100),
		testDrive("cc", 100),
	}

	policy := &RoundRobinPolicy{}

	var picked []model.DriveID
	for i := 0; i < 6; i++ {
		id, err := policy.Choose(drives, 10)
		require.NoError(t, err)
		picked = append(picked, id)
	}

	want := []model.DriveID{"aa", "bb", "cc", "aa", "bb", "cc"}
	require.Equal(t, want, picked)
}

func TestRoundRobinSkipsIneligible(t *testing.T) {
	down := testDrive("bb", 100)
	down.Health = model.DriveUnreachable

	drives := []model.DriveInfo{
		testDrive("aa", 100),
		down,
		testDrive("cc", 100),
	}

	policy := &RoundRobinPolicy{}
	for i := 0; i < 4; i++ {
		id, err := policy.Choose(drives, 10)
		require.NoError(t, err)
		require.NotEqual(t, model.DriveID("bb"), id)
	}
}

func TestPinnedOnlyUsesTarget(t *testing.T) {
	drives := []model.DriveInfo{
		testDrive("aa", 1000),
		testDrive("bb", 100),
	}

	policy := &PinnedPolicy{Drive: "bb"}
	id, err := policy.Choose(drives, 10)
	require.NoError(t, err)
	require.Equal(t, model.DriveID("bb"), id)
}

func TestPinnedFailsWhenTargetIneligible(t *testing.T) {
	pinned := testDrive("bb", 100)
	pinned.Health = model.DriveUnreachable

	drives := []model.DriveInfo{
		testDrive("aa", 1000),
		pinned,
	}

	_, err := (&PinnedPolicy{Drive: "bb"}).Choose(drives, 10)
	require.ErrorIs(t, err, ErrNoEligibleDrive)
}
