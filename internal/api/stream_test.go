package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/timedimension/internal/timeline"
)

type streamMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readStream(ctx context.Context, t *testing.T, conn *ws.Conn) streamMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func TestTimelineStreamPushesChanges(t *testing.T) {
	env := newTestEnv(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	layer, err := env.svc.CreateLayer(ctx, timeline.LayerInput{Name: "picks", Definition: timeline.Definition{Times: "2020-01-01"}})
	if err != nil {
		t.Fatalf("CreateLayer: %v", err)
	}
	tl, err := env.svc.CreateTimeline(ctx, timeline.TimelineInput{Name: "watched", LayerIDs: []string{layer.ID}})
	if err != nil {
		t.Fatalf("CreateTimeline: %v", err)
	}

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/timelines/" + tl.ID + "/stream"
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	msg := readStream(ctx, t, conn)
	var res timeline.Result
	if err := json.Unmarshal(msg.Payload, &res); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.Type != "timeline" || len(res.Points) != 1 {
		t.Fatalf("initial message = %s %s", msg.Type, msg.Payload)
	}

	if _, err := env.svc.UpdateLayer(ctx, layer.ID, timeline.LayerInput{Name: "picks", Definition: timeline.Definition{Times: "2020-01-01,2020-01-02"}}); err != nil {
		t.Fatalf("UpdateLayer: %v", err)
	}

	msg = readStream(ctx, t, conn)
	if err := json.Unmarshal(msg.Payload, &res); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.Type != "timeline" || len(res.Points) != 2 {
		t.Fatalf("update message = %s %s", msg.Type, msg.Payload)
	}

	if err := env.svc.DeleteTimeline(ctx, tl.ID); err != nil {
		t.Fatalf("DeleteTimeline: %v", err)
	}
	if msg = readStream(ctx, t, conn); msg.Type != "deleted" {
		t.Fatalf("delete message = %s %s", msg.Type, msg.Payload)
	}
}

func TestTimelineStreamUnknownTimeline(t *testing.T) {
	env := newTestEnv(t, "")
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/timelines/missing/stream"
	_, resp, err := ws.Dial(ctx, url, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("response = %+v", resp)
	}
}
