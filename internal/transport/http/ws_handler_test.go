package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"contest-engine/internal/app"
	"contest-engine/internal/domain"
	"contest-engine/internal/infra/memory"
	"github.com/gorilla/websocket"
)

type testServer struct {
	store  *memory.Store
	outbox *memory.Outbox
	engine *app.Engine
	server *httptest.Server
}

// newTestServer wires the full stack over the memory store with short timings.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	for i := 0; i < 12; i++ {
		store.PutQuestions(domain.Question{
			ID:           fmt.Sprintf("q-%02d", i),
			Text:         "Which option is right?",
			Options:      []string{"wrong", "right", "nope"},
			CorrectIndex: 1,
			ForSolo:      true,
		})
	}
	store.PutLevelTitles(domain.LevelTitle{Level: 1, Title: "Novice"}, domain.LevelTitle{Level: 2, Title: "Rising Star"})

	outbox := memory.NewOutbox()
	playCfg := app.PlayConfig{
		QuestionTimeout: 5 * time.Second,
		AnswerDwell:     5 * time.Millisecond,
		TimeoutDwell:    5 * time.Millisecond,
		SettleTimeout:   5 * time.Second,
	}
	guard := app.Guard{Visibility: app.StrikePolicy(2), Pace: app.MinimumPace(0)}

	reconciler := app.NewReconciler(store, outbox, memory.NewLocker(), playCfg.QuestionTimeout)
	ledger := app.NewLedger(store, store)
	boot := app.NewBootstrapper(store, store, ledger, reconciler, app.DefaultBootstrapConfig())
	draws := app.NewDrawEngine(store, store, store, store, app.DefaultDrawConfig())
	engine := app.NewEngine(draws, reconciler, boot, store, memory.NewPlayStore(), guard, playCfg, nil)

	api := NewAPI(engine,
		app.NewAdmission(store, store, ledger),
		app.NewLeaderboard(store, store, store),
		app.NewPayments(ledger, store, "https://pay.example.com/checkout"),
		boot,
	)
	mux := http.NewServeMux()
	api.Routes(mux, NewWSHandler(engine))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testServer{store: store, outbox: outbox, engine: engine, server: server}
}

func (s *testServer) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + s.server.URL[len("http"):] + "/ws?userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	var msg frame
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func TestWebSocketSoloRunSettles(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, "u1")

	if msg := readFrame(t, conn); msg.Type != "ready" {
		t.Fatalf("expected ready, got %s", msg.Type)
	}
	send(t, conn, "start", map[string]any{"mode": "solo"})

	questions, answers := 0, 0
	started, finished, synced := false, false, false
	for !synced {
		msg := readFrame(t, conn)
		switch msg.Type {
		case "started":
			started = true
			if total := msg.Payload["total"]; total != float64(10) {
				t.Fatalf("expected 10 questions, got %v", total)
			}
		case "question":
			questions++
			question, _ := msg.Payload["question"].(map[string]any)
			if _, leaked := question["correctIndex"]; leaked {
				t.Fatalf("question frame leaks the answer: %v", question)
			}
			send(t, conn, "answer", map[string]any{"selection": 1})
		case "answer":
			answers++
			answer, _ := msg.Payload["answer"].(map[string]any)
			if answer["correct"] != true {
				t.Fatalf("expected a correct answer, got %v", answer)
			}
		case "finished":
			finished = true
		case "synced":
			synced = true
		case "error", "aborted", "sync_deferred":
			t.Fatalf("unexpected %s frame: %v", msg.Type, msg.Payload)
		}
	}
	if !started || !finished || questions != 10 || answers != 10 {
		t.Fatalf("incomplete run: started=%v finished=%v questions=%d answers=%d", started, finished, questions, answers)
	}

	profile, err := ts.store.GetProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.XP == 0 || ts.store.ProgressCount("u1") != 10 {
		t.Fatalf("expected xp and 10 progress rows, got xp=%d rows=%d", profile.XP, ts.store.ProgressCount("u1"))
	}
}

func TestWebSocketVisibilityStrikes(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, "u2")
	readFrame(t, conn)
	send(t, conn, "start", nil)

	sentFirst := false
	for {
		msg := readFrame(t, conn)
		switch msg.Type {
		case "question":
			if !sentFirst {
				sentFirst = true
				send(t, conn, "visibility", nil)
			}
		case "warning":
			send(t, conn, "visibility", nil)
		case "aborted":
			if msg.Payload["message"] != domain.ErrVisibilityFraud.Error() {
				t.Fatalf("unexpected abort reason %v", msg.Payload["message"])
			}
			if state := ts.engine.Play("u2").Snapshot().State; state != app.PlayReady {
				t.Fatalf("expected Ready after abort, got %s", state)
			}
			return
		case "finished", "synced":
			t.Fatalf("play should not finish after two strikes")
		}
	}
}

func TestWebSocketRequiresUser(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.server.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
