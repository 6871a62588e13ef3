package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexusBot-official/Nexus/internal/database"
	"github.com/NexusBot-official/Nexus/internal/models"
	"github.com/NexusBot-official/Nexus/internal/state"
)

func seedStore(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nexus.db")
	t.Setenv("NEXUS_DATABASE_PATH", path)

	db, err := database.Open(path)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	rec := models.NewMitigationRecord("g1", "nuker", "c1", models.MitigationDeleted, models.TriggerThreshold, "mass channel creation")
	rec.At = time.Unix(1700000000, 0)
	require.NoError(t, db.SaveRecord(ctx, rec))
	require.NoError(t, db.SaveLockdown(ctx, state.GuildSecurityState{
		GuildID:             "g1",
		Status:              state.StatusLockdown,
		TriggeringActorID:   "nuker",
		Reason:              "10 channel_create in 10s",
		LockdownStartedAt:   time.Unix(1700000000, 0),
		EveryonePermissions: 104324673,
		PermissionsSaved:    true,
	}))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRecordsCmd(t *testing.T) {
	seedStore(t)

	out, err := execute(t, "records", "g1")
	require.NoError(t, err)
	assert.Contains(t, out, "ACTION")
	assert.Contains(t, out, "nuker")
	assert.Contains(t, out, "c1")

	out, err = execute(t, "records", "other")
	require.NoError(t, err)
	assert.Contains(t, out, "No mitigations recorded.")
}

func TestUnlockCmd_KeepPermissions(t *testing.T) {
	seedStore(t)

	_, err := execute(t, "unlock", "unknown", "--keep-permissions")
	assert.Error(t, err)

	out, err := execute(t, "unlock", "g1", "--keep-permissions")
	require.NoError(t, err)
	assert.Contains(t, out, "Lockdown of g1 lifted")
	assert.NotContains(t, out, "Restored")

	_, err = execute(t, "unlock", "g1", "--keep-permissions")
	assert.Error(t, err, "a lifted lockdown cannot be lifted twice")
}

func TestUnlockCmd_RequiresTokenToRestore(t *testing.T) {
	seedStore(t)
	t.Setenv("NEXUS_BOT_TOKEN", "")
	t.Setenv("DISCORD_TOKEN", "")

	_, err := execute(t, "unlock", "g1")
	assert.ErrorContains(t, err, "no bot token")
}
