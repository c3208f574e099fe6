// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reovod/reovod/internal/cache"
	"github.com/reovod/reovod/internal/reolink"
	"github.com/reovod/reovod/internal/vod"
)

type testEnv struct {
	mock *reolink.MockServer
	api  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mock := reolink.NewMockServer()
	t.Cleanup(mock.Close)

	client := reolink.New(reolink.Config{
		Name:      "front",
		BaseURL:   mock.URL,
		Username:  "admin",
		Password:  "secret",
		Timeout:   5 * time.Second,
		RateLimit: 1000,
		RateBurst: 1000,
	}, zerolog.Nop())
	t.Cleanup(func() { _ = client.Close(t.Context()) })

	svc := vod.New([]vod.CameraSpec{{Name: "front", Device: client}}, vod.Options{})

	srv := New(svc, cache.NewMemory(0), Options{Version: "test"})
	srv.SetReady(true)
	api := httptest.NewServer(srv.Router())
	t.Cleanup(api.Close)

	return &testEnv{mock: mock, api: api}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	res, err := http.Get(e.api.URL + path)
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	return res, body
}

func TestHealthAndReady(t *testing.T) {
	e := newTestEnv(t)

	res, body := e.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `"version":"test"`)

	res, _ = e.get(t, "/readyz")
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestReadyzBeforeFirstRefresh(t *testing.T) {
	mock := reolink.NewMockServer()
	defer mock.Close()
	client := reolink.New(reolink.Config{
		Name: "front", BaseURL: mock.URL, Username: "admin", Password: "secret",
		Timeout: 5 * time.Second, RateLimit: 1000, RateBurst: 1000,
	}, zerolog.Nop())
	defer func() { _ = client.Close(t.Context()) }()

	svc := vod.New([]vod.CameraSpec{{Name: "front", Device: client}}, vod.Options{})
	srv := httptest.NewServer(New(svc, cache.NewNoop(), Options{}).Router())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestCamerasListing(t *testing.T) {
	e := newTestEnv(t)
	e.mock.SetChannels([]reolink.ChannelStatus{
		{Channel: 0, Name: "Front Door", Online: true},
	})

	res, body := e.get(t, "/api/cameras")
	require.Equal(t, http.StatusOK, res.StatusCode)

	var payload struct {
		Channels []vod.ChannelInfo `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.Channels, 1)
	assert.Equal(t, "front", payload.Channels[0].Camera)
	assert.Equal(t, "Front Door", payload.Channels[0].Name)
	assert.True(t, payload.Channels[0].Online)
}

func TestMonthEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.mock.QueueSearchResult(reolink.SearchResult{
		Channel:  0,
		Statuses: []reolink.SearchStatus{{Year: 2023, Mon: 5, Table: "0100000000010000000000000000000"}},
	})

	res, body := e.get(t, "/api/cameras/front/channels/0/months/2023-05")
	require.Equal(t, http.StatusOK, res.StatusCode)

	var month monthResponse
	require.NoError(t, json.Unmarshal(body, &month))
	assert.Equal(t, "2023-05", month.Month)
	assert.Equal(t, []int{2, 12}, month.Days)
}

func TestMonthEndpointBadMonth(t *testing.T) {
	e := newTestEnv(t)

	res, _ := e.get(t, "/api/cameras/front/channels/0/months/may-2023")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestUnknownCamera(t *testing.T) {
	e := newTestEnv(t)

	res, _ := e.get(t, "/api/cameras/garage/channels/0/recordings/latest")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = e.get(t, "/api/cameras/front/channels/nope/recordings/latest")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func queueMayRecording(e *testEnv) {
	e.mock.QueueSearchResult(reolink.SearchResult{
		Channel:  0,
		Statuses: []reolink.SearchStatus{{Year: 2023, Mon: 5, Table: "0000000000010000000000000000000"}},
		Files: []reolink.SearchFile{{
			StartTime: reolink.TimeTable{Year: 2023, Mon: 5, Day: 12, Hour: 11, Min: 41, Sec: 0},
			EndTime:   reolink.TimeTable{Year: 2023, Mon: 5, Day: 12, Hour: 11, Min: 41, Sec: 58},
			Size:      16799470, Width: 2560, Height: 1920, FrameRate: 30,
			Name: "Mp4Record/2023-05-12/RecM02_20230512_114100_114158_6D28C00_A4DE96.mp4",
			Type: "main",
		}},
	})
}

func TestRecordingsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	queueMayRecording(e)

	res, body := e.get(t, "/api/cameras/front/channels/0/recordings"+
		"?start=2023-05-01T00:00:00Z&end=2023-05-31T00:00:00Z")
	require.Equal(t, http.StatusOK, res.StatusCode)

	var payload struct {
		Recordings []recordingView `json:"recordings"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.Recordings, 1)

	rec := payload.Recordings[0]
	assert.Equal(t, []string{"motion", "person"}, rec.Triggers)
	assert.InDelta(t, 58, rec.DurationSeconds, 0.1)

	stream, ok := rec.Streams[vod.StreamMain]
	require.True(t, ok)
	assert.Equal(t, int64(16799470), stream.Size)
	assert.Equal(t, "/vod/front/0/Mp4Record/2023-05-12/RecM02_20230512_114100_114158_6D28C00_A4DE96.mp4", stream.PlaybackURL)

	// The device clock runs UTC+2, so the 11:41 wall time is 09:41 UTC.
	assert.True(t, rec.Start.Equal(time.Date(2023, 5, 12, 9, 41, 0, 0, time.UTC)))
}

func TestRecordingsEndpointBadRange(t *testing.T) {
	e := newTestEnv(t)

	res, _ := e.get(t, "/api/cameras/front/channels/0/recordings?start=yesterday")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestLatestEndpoint(t *testing.T) {
	e := newTestEnv(t)

	res, _ := e.get(t, "/api/cameras/front/channels/0/recordings/latest")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	queueMayRecording(e)
	res, _ = e.get(t, "/api/cameras/front/channels/0/recordings"+
		"?start=2023-05-01T00:00:00Z&end=2023-05-31T00:00:00Z")
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, body := e.get(t, "/api/cameras/front/channels/0/recordings/latest")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var rec recordingView
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.Equal(t, []string{"motion", "person"}, rec.Triggers)
}

func TestSnapshotCaching(t *testing.T) {
	e := newTestEnv(t)

	res, body := e.get(t, "/snapshot/front/0")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "image/jpeg", res.Header.Get("Content-Type"))
	assert.Equal(t, "miss", res.Header.Get("X-Cache"))
	assert.Equal(t, byte(0xFF), body[0])

	res, _ = e.get(t, "/snapshot/front/0")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "hit", res.Header.Get("X-Cache"))
}

func TestPlaybackProxy(t *testing.T) {
	e := newTestEnv(t)
	name := "Mp4Record/2023-05-12/RecM02_20230512_114100_114158_6D28C00_A4DE96.mp4"
	e.mock.SetClip(name, []byte("mp4-bytes"))

	res, body := e.get(t, "/vod/front/0/"+name)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "video/mp4", res.Header.Get("Content-Type"))
	assert.Contains(t, res.Header.Get("Content-Disposition"), "RecM02_20230512_114100_114158_6D28C00_A4DE96.mp4")
	assert.Equal(t, "mp4-bytes", string(body))
}

func TestPlaybackRejectsUnknownStream(t *testing.T) {
	e := newTestEnv(t)

	res, _ := e.get(t, "/vod/front/0/Mp4Record/a.mp4?stream=hd")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestPlaybackMissingClip(t *testing.T) {
	e := newTestEnv(t)

	res, _ := e.get(t, "/vod/front/0/Mp4Record/nope.mp4")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestRefreshEndpoint(t *testing.T) {
	e := newTestEnv(t)

	res, err := http.Post(e.api.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	assert.Equal(t, http.StatusAccepted, res.StatusCode)

	// The manual trigger eventually completes against the mock device.
	assert.Eventually(t, func() bool {
		r, err := http.Post(e.api.URL+"/api/refresh", "application/json", nil)
		if err != nil {
			return false
		}
		defer func() { _ = r.Body.Close() }()
		return r.StatusCode == http.StatusAccepted
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRequestIDPropagation(t *testing.T) {
	e := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, e.api.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, "req-123")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	assert.Equal(t, "req-123", res.Header.Get(HeaderRequestID))

	res2, err := http.Get(e.api.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = res2.Body.Close() }()
	assert.NotEmpty(t, res2.Header.Get(HeaderRequestID))
}

func TestErrorBodyShape(t *testing.T) {
	e := newTestEnv(t)

	res, body := e.get(t, "/api/cameras/garage/channels/0/recordings/latest")
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	var eb errorBody
	require.NoError(t, json.Unmarshal(body, &eb))
	assert.Equal(t, "not found", eb.Error)
	assert.NotEmpty(t, eb.RequestID)
}

func TestRecordingsURLFormat(t *testing.T) {
	// Sanity check that playback URLs round trip through the router.
	e := newTestEnv(t)
	name := "Mp4Record/2023-05-12/clip.mp4"
	e.mock.SetClip(name, []byte("x"))

	url := fmt.Sprintf("/vod/%s/%d/%s", "front", 0, name)
	res, _ := e.get(t, url)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
