package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelligence-arena/arena/pkg/events"
	"github.com/intelligence-arena/arena/pkg/models"
)

// SSE tests run against a real listener: a ResponseRecorder cannot be read
// while the handler is still writing.

type sseFrame struct {
	name string
	data string
}

// openSSE connects to an SSE endpoint and returns a frame reader. A
// watchdog closes the body if the stream stalls, failing the pending read.
func openSSE(t *testing.T, url string) *bufio.Reader {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	watchdog := time.AfterFunc(10*time.Second, func() { resp.Body.Close() })
	t.Cleanup(func() {
		watchdog.Stop()
		resp.Body.Close()
	})
	return bufio.NewReader(resp.Body)
}

// readFrame reads one SSE event, skipping heartbeat comments.
func readFrame(t *testing.T, r *bufio.Reader) sseFrame {
	t.Helper()
	var f sseFrame
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err, "stream ended before a full event")
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if f.name != "" || f.data != "" {
				return f
			}
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "event:"):
			f.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			f.data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func (ts *testServer) listen(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(ts.srv.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func (ts *testServer) seedLiveMatch(t *testing.T, id string) *models.Match {
	t.Helper()
	now := models.Now()
	m := &models.Match{
		ID:          id,
		Agent1ID:    "a",
		Agent2ID:    "b",
		ChallengeID: "ch-1",
		Division:    models.DivisionNovice,
		Type:        models.MatchRegularDuel,
		Status:      models.MatchInProgress,
		CreatedAt:   now,
		StartedAt:   &now,
	}
	require.NoError(t, ts.repo.PutMatch(context.Background(), m))
	return m
}

func TestMatchStreamUnknownMatch(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/matches/ghost/stream", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	assert.Equal(t, "not_found", body.Error)
}

func TestMatchStreamSnapshotThenLiveThenFinal(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seedLiveMatch(t, "live-1")
	srv := ts.listen(t)

	r := openSSE(t, srv.URL+"/matches/live-1/stream")

	// First frame is always the snapshot of current state.
	frame := readFrame(t, r)
	require.Equal(t, events.EventTypeSnapshot, frame.name)
	var snap models.Match
	require.NoError(t, json.Unmarshal([]byte(frame.data), &snap))
	assert.Equal(t, "live-1", snap.ID)
	assert.Equal(t, models.MatchInProgress, snap.Status)

	// openSSE returned after the headers were flushed, and the handler
	// subscribes before that, so these publishes cannot be missed.
	ts.pub.ResponseDelta("live-1", "a", "I think ")
	frame = readFrame(t, r)
	require.Equal(t, events.EventTypeResponseDelta, frame.name)
	var delta events.ResponseDeltaPayload
	require.NoError(t, json.Unmarshal([]byte(frame.data), &delta))
	assert.Equal(t, "a", delta.AgentID)
	assert.Equal(t, "I think ", delta.TextDelta)

	ts.pub.Status("live-1", models.MatchJudging)
	frame = readFrame(t, r)
	require.Equal(t, events.EventTypeStatus, frame.name)
	var status events.StatusPayload
	require.NoError(t, json.Unmarshal([]byte(frame.data), &status))
	assert.Equal(t, models.MatchJudging, status.Status)

	winner := "a"
	ts.pub.Final("live-1", &winner, map[string]float64{"a": 8, "b": 5}, nil)
	frame = readFrame(t, r)
	require.Equal(t, events.EventTypeFinal, frame.name)
	var final events.FinalPayload
	require.NoError(t, json.Unmarshal([]byte(frame.data), &final))
	require.NotNil(t, final.WinnerID)
	assert.Equal(t, "a", *final.WinnerID)

	// final is the last event a match publishes; the server ends the stream.
	_, err := r.ReadString('\n')
	assert.ErrorIs(t, err, io.EOF)
}

func TestMatchStreamResyncsAfterLag(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seedLiveMatch(t, "laggy")
	srv := ts.listen(t)

	r := openSSE(t, srv.URL+"/matches/laggy/stream")
	frame := readFrame(t, r)
	require.Equal(t, events.EventTypeSnapshot, frame.name)

	// A lagged marker must be followed by a fresh snapshot so the client
	// converges without the dropped events.
	ts.bus.Publish(events.MatchTopic("laggy"), events.EventTypeLagged, events.LaggedPayload{Dropped: 7})

	frame = readFrame(t, r)
	require.Equal(t, events.EventTypeLagged, frame.name)
	var lag events.LaggedPayload
	require.NoError(t, json.Unmarshal([]byte(frame.data), &lag))
	assert.Equal(t, 7, lag.Dropped)

	frame = readFrame(t, r)
	assert.Equal(t, events.EventTypeSnapshot, frame.name)
}

func TestArenaStreamForwardsLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	srv := ts.listen(t)

	r := openSSE(t, srv.URL+"/matches/stream")

	m := ts.seedLiveMatch(t, "arena-1")
	ts.pub.MatchCreated(m)

	frame := readFrame(t, r)
	require.Equal(t, events.EventTypeMatchCreated, frame.name)
	var summary models.MatchSummary
	require.NoError(t, json.Unmarshal([]byte(frame.data), &summary))
	assert.Equal(t, "arena-1", summary.ID)
	assert.Equal(t, models.MatchRegularDuel, summary.Type)

	ts.pub.MatchCompleted(m)
	frame = readFrame(t, r)
	assert.Equal(t, events.EventTypeMatchCompleted, frame.name)
}

// TestMatchStreamNoGap attaches to a real running match and checks the
// no-gap contract: either the snapshot already carries the verdict, or the
// final event is still ahead of us. There is no third outcome.
func TestMatchStreamNoGap(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seedChallenge(t, "ch-1", models.ChallengeLogicalReasoning, models.DifficultyBeginner)
	a := ts.seedAgent(t, "a", models.DivisionNovice, 1000)
	b := ts.seedAgent(t, "b", models.DivisionNovice, 1010)
	ts.gw.script(a.ModelID, stubReply{text: "Answer A."})
	ts.gw.script(b.ModelID, stubReply{text: "Answer B."})
	ts.seedJudges(t, evaluationJSON(t, 8, 5, "agent1"))
	srv := ts.listen(t)

	rec := ts.do(t, http.MethodPost, "/matches/quick", nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.Match
	decode(t, rec, &created)

	r := openSSE(t, srv.URL+"/matches/"+created.ID+"/stream")

	frame := readFrame(t, r)
	require.Equal(t, events.EventTypeSnapshot, frame.name)
	var snap models.Match
	require.NoError(t, json.Unmarshal([]byte(frame.data), &snap))

	if snap.Status.IsTerminal() {
		// The match outran us; the snapshot must already hold the verdict.
		require.Equal(t, models.MatchCompleted, snap.Status)
		require.NotNil(t, snap.WinnerID)
		assert.Equal(t, created.Agent1ID, *snap.WinnerID)
		return
	}

	// Non-terminal snapshot: the subscription predates the snapshot read,
	// so the final event cannot have slipped past.
	for {
		frame := readFrame(t, r)
		if frame.name != events.EventTypeFinal {
			continue
		}
		var final events.FinalPayload
		require.NoError(t, json.Unmarshal([]byte(frame.data), &final))
		require.NotNil(t, final.WinnerID)
		assert.Equal(t, created.Agent1ID, *final.WinnerID)
		return
	}
}
