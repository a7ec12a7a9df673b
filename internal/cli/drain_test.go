package cli

import (
	"net/http"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/queue"
	"github.com/roach88/fieldsync/internal/testutil"
)

func TestDrain_PartialFailureGolden(t *testing.T) {
	endpoint := testutil.NewEndpoint(t)
	endpoint.RespondWith("B", http.StatusInternalServerError)
	env := newTestEnv(t, endpoint.URL)
	seedPending(t, env,
		queue.PendingRecord{ID: "A", Payload: []byte(`{}`)},
		queue.PendingRecord{ID: "B", Payload: []byte(`{}`)},
		queue.PendingRecord{ID: "C", Payload: []byte(`{}`)},
	)

	cmd, out := testCommand(t, "")
	err := runDrain(&DrainOptions{RootOptions: env.rootOptions("text")}, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "drain_partial_text", out.Bytes())

	// The endpoint recovers and a second drain empties the queue.
	endpoint.RespondWith("B", http.StatusCreated)
	cmd, out = testCommand(t, "")
	require.NoError(t, runDrain(&DrainOptions{RootOptions: env.rootOptions("text")}, cmd))
	assert.Equal(t, "Attempted 1, delivered 1, failed 0\n", out.String())
}

func TestDrain_Empty(t *testing.T) {
	endpoint := testutil.NewEndpoint(t)
	env := newTestEnv(t, endpoint.URL)

	cmd, out := testCommand(t, "")
	require.NoError(t, runDrain(&DrainOptions{RootOptions: env.rootOptions("text")}, cmd))
	assert.Equal(t, "Nothing to deliver\n", out.String())
	assert.Empty(t, endpoint.Deliveries())
}
