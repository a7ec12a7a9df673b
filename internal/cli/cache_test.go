package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/testutil"
)

func TestCacheWarm_ThenGetOffline(t *testing.T) {
	env := newTestEnv(t, testutil.UnreachableURL(t))

	cmd, out := testCommand(t, "")
	require.NoError(t, runCacheWarm(&CacheOptions{RootOptions: env.rootOptions("text"), Retries: 1}, cmd))
	assert.Equal(t, "Cached 2 entries in namespace test\n", out.String())
	assert.Equal(t, int64(2), env.OriginHits.Load())

	env.Origin.Close()

	cmd, out = testCommand(t, "")
	require.NoError(t, runCacheGet(&CacheOptions{RootOptions: env.rootOptions("text")}, "/", cmd))
	assert.Equal(t, "<h1>tickets</h1>\n", out.String())
}

func TestCacheGet_Include(t *testing.T) {
	env := newTestEnv(t, testutil.UnreachableURL(t))

	cmd, out := testCommand(t, "")
	require.NoError(t, runCacheGet(&CacheOptions{RootOptions: env.rootOptions("text"), Include: true}, "/index.html", cmd))

	assert.Contains(t, out.String(), "200 OK\n")
	assert.Contains(t, out.String(), "Content-Type: text/html\n")
	assert.Contains(t, out.String(), "\n\n<h1>index</h1>\n")
}

func TestCacheGet_JSON(t *testing.T) {
	env := newTestEnv(t, testutil.UnreachableURL(t))

	cmd, out := testCommand(t, "")
	require.NoError(t, runCacheGet(&CacheOptions{RootOptions: env.rootOptions("json")}, "/index.html", cmd))

	var resp struct {
		Status string         `json:"status"`
		Data   CacheGetResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, env.Origin.URL+"/index.html", resp.Data.URL)
	assert.Equal(t, 200, resp.Data.Status)
	assert.Equal(t, "<h1>index</h1>\n", resp.Data.Body)
}

func TestCacheGet_OfflineWithoutCopy(t *testing.T) {
	env := newTestEnv(t, testutil.UnreachableURL(t))
	env.Origin.Close()

	cmd, out := testCommand(t, "")
	err := runCacheGet(&CacheOptions{RootOptions: env.rootOptions("text")}, "/", cmd)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.String(), "Error [E005]")
}

func TestCacheWarm_OriginDown(t *testing.T) {
	env := newTestEnv(t, testutil.UnreachableURL(t))
	env.Origin.Close()

	cmd, out := testCommand(t, "")
	err := runCacheWarm(&CacheOptions{RootOptions: env.rootOptions("text"), Retries: 2}, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.String(), "Error [E005]: failed to warm cache")
}
