/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/timedimension/internal/auth"
	"github.com/friendsincode/timedimension/internal/config"
	"github.com/friendsincode/timedimension/internal/datemath"
	"github.com/friendsincode/timedimension/internal/logbuffer"
	"github.com/friendsincode/timedimension/internal/period"
	"github.com/friendsincode/timedimension/internal/server"
)

const signingKey = "integration-secret"

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path string, body any) (*http.Response, []byte) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func (c *client) mustJSON(method, path string, body any, status int, dst any) {
	c.t.Helper()
	resp, data := c.do(method, path, body)
	if resp.StatusCode != status {
		c.t.Fatalf("%s %s = %d, want %d: %s", method, path, resp.StatusCode, status, data)
	}
	if dst != nil {
		if err := json.Unmarshal(data, dst); err != nil {
			c.t.Fatalf("decode %s: %v", data, err)
		}
	}
}

// TestTimelineLifecycle drives layers, timelines, and exports through a full
// server. Set TIMEDIM_TEST_REDIS_ADDR to also exercise the Redis cache.
func TestTimelineLifecycle(t *testing.T) {
	ts := httptest.NewUnstartedServer(nil)
	base := "http://" + ts.Listener.Addr().String()

	cfg := &config.Config{
		Environment:   "test",
		BaseURL:       base,
		DBBackend:     config.DatabaseSQLite,
		DBDSN:         "file::memory:",
		JWTSigningKey: signingKey,
		DefaultPeriod: period.MustParse("P1D"),
		MaxGridPoints: 10000,
		DateMode:      datemath.UTC,
		ExportRoot:    t.TempDir(),
	}
	redisAddr := os.Getenv("TIMEDIM_TEST_REDIS_ADDR")
	if redisAddr != "" {
		cfg.CacheEnabled = true
		cfg.RedisAddr = redisAddr
		cfg.CacheTTL = time.Minute
	}

	srv, err := server.New(cfg, logbuffer.New(100), zerolog.Nop())
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	defer srv.Close()

	ts.Config.Handler = srv.Handler()
	ts.Start()
	defer ts.Close()

	token, err := auth.Issue([]byte(signingKey), "integration", []string{auth.ScopeWrite}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	anon := &client{t: t, base: base}
	c := &client{t: t, base: base, token: token}

	// Writes need a token.
	resp, _ := anon.do(http.MethodPost, "/api/v1/layers", map[string]string{"name": "x", "times": "2020-01-01"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous create = %d", resp.StatusCode)
	}

	var hours, weekdays struct {
		ID string `json:"id"`
	}
	c.mustJSON(http.MethodPost, "/api/v1/layers", map[string]string{
		"name":     "office-hours",
		"interval": "2020-01-06T00:00Z/2020-01-08T00:00Z",
		"period":   "PT1H",
		"window":   "09:00/11:00",
	}, http.StatusCreated, &hours)
	c.mustJSON(http.MethodPost, "/api/v1/layers", map[string]string{
		"name":  "standups",
		"times": "2020-01-06T09:00Z,2020-01-07T10:00Z,2020-01-11T09:00Z",
	}, http.StatusCreated, &weekdays)

	var tl struct {
		ID string `json:"id"`
	}
	c.mustJSON(http.MethodPost, "/api/v1/timelines", map[string]any{
		"name":      "standups-in-hours",
		"mode":      "intersect",
		"layer_ids": []string{hours.ID, weekdays.ID},
	}, http.StatusCreated, &tl)

	var res struct {
		Points []int64 `json:"points"`
		Cached bool    `json:"cached"`
	}
	anon.mustJSON(http.MethodGet, "/api/v1/timelines/"+tl.ID+"/times", nil, http.StatusOK, &res)
	want := []int64{
		time.Date(2020, 1, 6, 9, 0, 0, 0, time.UTC).UnixMilli(),
		time.Date(2020, 1, 7, 10, 0, 0, 0, time.UTC).UnixMilli(),
	}
	if len(res.Points) != len(want) || res.Points[0] != want[0] || res.Points[1] != want[1] {
		t.Fatalf("points = %v, want %v", res.Points, want)
	}

	if redisAddr != "" {
		anon.mustJSON(http.MethodGet, "/api/v1/timelines/"+tl.ID+"/times", nil, http.StatusOK, &res)
		if !res.Cached {
			t.Fatal("second resolve was not served from cache")
		}
	}

	// Narrowing the window drops the 10:00 standup.
	c.mustJSON(http.MethodPut, "/api/v1/layers/"+hours.ID, map[string]string{
		"name":     "office-hours",
		"interval": "2020-01-06T00:00Z/2020-01-08T00:00Z",
		"period":   "PT1H",
		"window":   "09:00/09:30",
	}, http.StatusOK, nil)
	anon.mustJSON(http.MethodGet, "/api/v1/timelines/"+tl.ID+"/times", nil, http.StatusOK, &res)
	if len(res.Points) != 1 || res.Points[0] != want[0] || res.Cached {
		t.Fatalf("after update = %+v", res)
	}

	var exp struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	c.mustJSON(http.MethodPost, "/api/v1/timelines/"+tl.ID+"/exports?format=csv", nil, http.StatusCreated, &exp)
	if !strings.HasPrefix(exp.URL, base+"/exports/timelines/"+tl.ID+"/") {
		t.Fatalf("export url = %q", exp.URL)
	}

	fileResp, err := http.Get(exp.URL)
	if err != nil {
		t.Fatalf("fetch export: %v", err)
	}
	body, _ := io.ReadAll(fileResp.Body)
	fileResp.Body.Close()
	if fileResp.StatusCode != http.StatusOK || !strings.Contains(string(body), "2020-01-06T09:00:00Z") {
		t.Fatalf("export file = %d %s", fileResp.StatusCode, body)
	}

	resp, body = anon.do(http.MethodGet, "/api/v1/exports/"+exp.ID+"/download", nil)
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(body), "epoch_ms,utc") {
		t.Fatalf("download = %d %s", resp.StatusCode, body)
	}

	c.mustJSON(http.MethodDelete, "/api/v1/layers/"+weekdays.ID, nil, http.StatusNoContent, nil)
	anon.mustJSON(http.MethodGet, "/api/v1/timelines/"+tl.ID+"/times", nil, http.StatusOK, &res)
	if len(res.Points) != len(wantHoursAfterUpdate()) {
		t.Fatalf("after layer delete = %v", res.Points)
	}
}

// wantHoursAfterUpdate is the office-hours grid once the window is 09:00/09:30.
func wantHoursAfterUpdate() []int64 {
	return []int64{
		time.Date(2020, 1, 6, 9, 0, 0, 0, time.UTC).UnixMilli(),
		time.Date(2020, 1, 7, 9, 0, 0, 0, time.UTC).UnixMilli(),
	}
}
