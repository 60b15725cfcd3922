package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"cropyield/monitoring"
)

func TestPredictionFeedThroughMiddleware(t *testing.T) {
	hub := monitoring.NewWebSocketHub([]string{"*"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	handler := NewHandler(DefaultServerConfig(), Dependencies{
		Predictor: &fakePredictor{yields: []float64{7.25}},
		Hub:       hub,
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/ws/predictions", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.Header.Get(requestIDHeader) == "" {
		t.Error("upgrade response is missing the request id")
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client was not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	res, err := http.Post(server.URL+"/api/predict", "application/json", strings.NewReader(`{"crop_type":"Coffee"}`))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg monitoring.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("invalid message: %v", err)
	}
	var result PredictionResult
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		t.Fatalf("invalid data: %v", err)
	}
	if msg.Type != monitoring.PredictionMade || result.Yield != 7.25 || result.Features.CropType != 2 {
		t.Errorf("unexpected message: %+v / %+v", msg, result)
	}
}

func TestStaticAssetsServed(t *testing.T) {
	h := newTestHandler(&fakePredictor{}, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/css") {
		t.Errorf("unexpected content type %q", rr.Header().Get("Content-Type"))
	}
}
