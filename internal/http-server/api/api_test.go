package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"votesecret/entity"
	"votesecret/impl/auth"
	"votesecret/impl/core"
	"votesecret/internal/database"
	"votesecret/internal/relay"
)

type envelope struct {
	Data          json.RawMessage `json:"data"`
	Success       bool            `json:"success"`
	StatusMessage string          `json:"status_message"`
	Kind          string          `json:"kind"`
}

type client struct {
	t      *testing.T
	router http.Handler
}

func newClient(t *testing.T) (*client, *core.Core) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := database.NewMemoryDB()
	c := core.New(db, core.Config{CodeLength: 8, ScrutatorPrefix: "SC"}, log)
	c.SetAuthService(auth.New(db))
	t.Cleanup(c.Stop)
	return &client{t: t, router: NewRouter(log, c, nil)}, c
}

func (c *client) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			c.t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	return rec
}

// call expects status and decodes the data field into out.
func (c *client) call(method, path, token string, body interface{}, status int, out interface{}) envelope {
	c.t.Helper()
	rec := c.do(method, path, token, body)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		c.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
	}
	if rec.Code != status {
		c.t.Fatalf("%s %s: status %d, want %d (%s)", method, path, rec.Code, status, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			c.t.Fatalf("%s %s: decode data: %v", method, path, err)
		}
	}
	return env
}

func (c *client) meeting(title, organizer string) *entity.Meeting {
	c.t.Helper()
	var m entity.Meeting
	c.call(http.MethodPost, "/meetings", "", map[string]string{"title": title, "organizer_name": organizer}, http.StatusCreated, &m)
	return &m
}

func (c *client) approvedParticipant(m *entity.Meeting, name string) *entity.JoinResult {
	c.t.Helper()
	var joined entity.JoinResult
	c.call(http.MethodPost, "/participants/join", "", map[string]string{"name": name, "meeting_code": m.MeetingCode}, http.StatusCreated, &joined)
	c.call(http.MethodPost, "/participants/"+joined.Participant.ID+"/approve", "", map[string]bool{"approved": true}, http.StatusOK, nil)
	return &joined
}

func TestMeetingFlow(t *testing.T) {
	c, _ := newClient(t)

	m := c.meeting("Annual meeting", "Olga")
	if len(m.MeetingCode) != 8 || m.ScrutatorCode != "" {
		t.Fatalf("meeting = %+v", m)
	}
	var byCode entity.Meeting
	c.call(http.MethodGet, "/meetings/"+strings.ToLower(m.MeetingCode), "", nil, http.StatusOK, &byCode)
	if byCode.ID != m.ID {
		t.Fatalf("by code = %s, want %s", byCode.ID, m.ID)
	}

	ann := c.approvedParticipant(m, "Ann")
	if len(ann.Token) == 0 {
		t.Fatal("join returned no token")
	}
	var status entity.ParticipantStatus
	c.call(http.MethodGet, "/participants/"+ann.Participant.ID+"/status", "", nil, http.StatusOK, &status)
	if status.Status != entity.StatusApproved {
		t.Fatalf("status = %s", status.Status)
	}

	var poll entity.Poll
	c.call(http.MethodPost, "/meetings/"+m.ID+"/polls", "", map[string]interface{}{
		"question": "Approve the budget?",
		"options":  []string{"Yes", "No"},
	}, http.StatusCreated, &poll)
	c.call(http.MethodPost, "/polls/"+poll.ID+"/start", "", nil, http.StatusOK, nil)

	vote := map[string]string{"poll_id": poll.ID, "option_id": poll.Options[0].ID}
	if rec := c.do(http.MethodPost, "/votes", "", vote); rec.Code != http.StatusUnauthorized {
		t.Fatalf("vote without token: %d", rec.Code)
	}
	if rec := c.do(http.MethodPost, "/votes", "bogus", vote); rec.Code != http.StatusUnauthorized {
		t.Fatalf("vote with bad token: %d", rec.Code)
	}
	c.call(http.MethodPost, "/votes", ann.Token, vote, http.StatusOK, nil)
	env := c.call(http.MethodPost, "/votes", ann.Token, vote, http.StatusConflict, nil)
	if env.Kind != string(entity.KindAlreadyVoted) {
		t.Fatalf("second vote kind = %q", env.Kind)
	}

	var voted struct {
		Voted bool `json:"voted"`
	}
	c.call(http.MethodGet, "/polls/"+poll.ID+"/voted", ann.Token, nil, http.StatusOK, &voted)
	if !voted.Voted {
		t.Fatal("voted = false after voting")
	}

	var views []entity.PollView
	c.call(http.MethodGet, "/meetings/"+m.ID+"/polls", "", nil, http.StatusOK, &views)
	if len(views) != 1 {
		t.Fatalf("organizer polls = %d", len(views))
	}

	c.call(http.MethodPost, "/polls/"+poll.ID+"/close", "", nil, http.StatusOK, nil)
	var results entity.PollResults
	c.call(http.MethodGet, "/polls/"+poll.ID+"/results", "", nil, http.StatusOK, &results)
	if results.TotalVotes != 1 {
		t.Fatalf("total votes = %d", results.TotalVotes)
	}

	var organizer entity.OrganizerView
	c.call(http.MethodGet, "/meetings/"+m.ID+"/organizer", "", nil, http.StatusOK, &organizer)
	if len(organizer.Participants) != 1 || len(organizer.Polls) != 1 {
		t.Fatalf("organizer view = %+v", organizer)
	}

	c.call(http.MethodGet, "/meetings/"+m.ID+"/report", "", nil, http.StatusBadRequest, nil)
	c.call(http.MethodGet, "/meetings/"+m.ID+"/report?requested_by=Mallory", "", nil, http.StatusForbidden, nil)
	c.call(http.MethodGet, "/meetings/"+m.MeetingCode, "", nil, http.StatusOK, nil)

	rec := c.do(http.MethodGet, "/meetings/"+m.ID+"/report?requested_by=Olga", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d (%s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment; filename=") {
		t.Fatalf("content disposition = %q", cd)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatal("report is not a pdf")
	}

	c.call(http.MethodGet, "/meetings/"+m.MeetingCode, "", nil, http.StatusNotFound, nil)
	c.call(http.MethodGet, "/participants/"+ann.Participant.ID+"/status", "", nil, http.StatusNotFound, nil)
	if rec := c.do(http.MethodPost, "/votes", ann.Token, vote); rec.Code != http.StatusUnauthorized {
		t.Fatalf("token after purge: %d", rec.Code)
	}
}

func TestScrutatorReportFlow(t *testing.T) {
	c, _ := newClient(t)
	m := c.meeting("Board", "Olga")

	var batch entity.ScrutatorBatch
	c.call(http.MethodPost, "/meetings/"+m.ID+"/scrutators", "", map[string][]string{"names": {"Sam", "Tia"}}, http.StatusOK, &batch)
	var list entity.ScrutatorList
	c.call(http.MethodGet, "/meetings/"+m.ID+"/scrutators", "", nil, http.StatusOK, &list)
	if len(list.Scrutators) != 2 || !strings.HasPrefix(list.ScrutatorCode, "SC") {
		t.Fatalf("scrutators = %+v", list)
	}

	env := c.call(http.MethodPost, "/scrutators/join", "", map[string]string{"name": "Mallory", "scrutator_code": list.ScrutatorCode}, http.StatusForbidden, nil)
	if env.Kind != string(entity.KindForbidden) {
		t.Fatalf("kind = %q", env.Kind)
	}
	for _, s := range list.Scrutators {
		c.call(http.MethodPost, "/scrutators/join", "", map[string]string{"name": s.Name, "scrutator_code": list.ScrutatorCode}, http.StatusOK, nil)
		c.call(http.MethodPost, "/scrutators/"+s.ID+"/approve", "", map[string]bool{"approved": true}, http.StatusOK, nil)
	}

	c.call(http.MethodGet, "/meetings/"+m.ID+"/report?requested_by=Olga", "", nil, http.StatusForbidden, nil)

	var round entity.ReportRequestResult
	c.call(http.MethodPost, "/meetings/"+m.ID+"/request-report", "", map[string]string{"requested_by": "Olga"}, http.StatusOK, &round)
	if round.DirectGeneration || round.MajorityNeeded != 2 {
		t.Fatalf("round = %+v", round)
	}

	c.call(http.MethodDelete, "/meetings/"+m.ID+"/request-report", "", nil, http.StatusBadRequest, nil)
	c.call(http.MethodDelete, "/meetings/"+m.ID+"/request-report?requested_by=Sam", "", nil, http.StatusForbidden, nil)
	c.call(http.MethodDelete, "/meetings/"+m.ID+"/request-report?requested_by=Olga", "", nil, http.StatusOK, nil)
	c.call(http.MethodPost, "/meetings/"+m.ID+"/request-report", "", map[string]string{"requested_by": "Olga"}, http.StatusOK, &round)

	var result entity.ScrutatorVoteResult
	c.call(http.MethodPost, "/meetings/"+m.ID+"/scrutator-vote", "", map[string]interface{}{"scrutator_name": "Sam", "approved": true}, http.StatusOK, &result)
	if result.Decision != entity.DecisionPending {
		t.Fatalf("decision after one vote = %s", result.Decision)
	}
	c.call(http.MethodPost, "/meetings/"+m.ID+"/scrutator-vote", "", map[string]interface{}{"scrutator_name": "sam", "approved": true}, http.StatusConflict, nil)
	c.call(http.MethodPost, "/meetings/"+m.ID+"/scrutator-vote", "", map[string]interface{}{"scrutator_name": "Tia", "approved": true}, http.StatusOK, &result)
	if result.Decision != entity.DecisionApproved {
		t.Fatalf("decision = %s", result.Decision)
	}

	c.call(http.MethodGet, "/meetings/"+m.ID+"/report?requested_by=Tia", "", nil, http.StatusForbidden, nil)
	rec := c.do(http.MethodGet, "/meetings/"+m.ID+"/report?requested_by=Olga", "", nil)
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Fatalf("report status = %d", rec.Code)
	}
	c.call(http.MethodGet, "/meetings/"+m.ID+"/report?requested_by=Olga", "", nil, http.StatusNotFound, nil)
}

func TestErrorStatus(t *testing.T) {
	c, _ := newClient(t)
	m := c.meeting("Club", "Olga")
	c.approvedParticipant(m, "Ann")

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		kind   entity.Kind
	}{
		{"malformed json", http.MethodPost, "/meetings", "{", http.StatusBadRequest, entity.KindValidation},
		{"missing title", http.MethodPost, "/meetings", map[string]string{"organizer_name": "Olga"}, http.StatusBadRequest, entity.KindValidation},
		{"unknown code", http.MethodGet, "/meetings/ZZZZZZZZ", nil, http.StatusNotFound, entity.KindNotFound},
		{"duplicate name", http.MethodPost, "/participants/join", map[string]string{"name": "ann", "meeting_code": m.MeetingCode}, http.StatusConflict, entity.KindDuplicateName},
		{"approve missing flag", http.MethodPost, "/participants/x/approve", map[string]string{}, http.StatusBadRequest, entity.KindValidation},
		{"unknown participant", http.MethodPost, "/participants/x/approve", map[string]bool{"approved": true}, http.StatusNotFound, entity.KindNotFound},
		{"one option", http.MethodPost, "/meetings/" + m.ID + "/polls", map[string]interface{}{"question": "Q", "options": []string{"A"}}, http.StatusBadRequest, entity.KindValidation},
		{"foreign heartbeat", http.MethodPost, "/meetings/" + m.ID + "/heartbeat", map[string]string{"organizer_name": "Mallory"}, http.StatusForbidden, entity.KindForbidden},
		{"unknown scrutator vote", http.MethodPost, "/meetings/" + m.ID + "/scrutator-vote", map[string]interface{}{"scrutator_name": "Sam", "approved": true}, http.StatusForbidden, entity.KindForbidden},
		{"cancel without round", http.MethodDelete, "/meetings/" + m.ID + "/request-report?requested_by=Olga", nil, http.StatusNotFound, entity.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := c.call(tt.method, tt.path, "", tt.body, tt.status, nil)
			if env.Success || env.Kind != string(tt.kind) {
				t.Fatalf("response = %+v, want kind %s", env, tt.kind)
			}
		})
	}

	if rec := c.do(http.MethodGet, "/nowhere", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route: %d", rec.Code)
	}
	if rec := c.do(http.MethodPut, "/meetings", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wrong method: %d", rec.Code)
	}
	c.call(http.MethodPost, "/meetings/"+m.ID+"/heartbeat", "", map[string]string{"organizer_name": "olga"}, http.StatusOK, nil)
	c.call(http.MethodGet, "/health", "", nil, http.StatusOK, nil)
}

func TestServiceUnavailable(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := &client{t: t, router: NewRouter(log, nil, nil)}
	c.call(http.MethodGet, "/health", "", nil, http.StatusServiceUnavailable, nil)
	c.call(http.MethodPost, "/meetings", "", map[string]string{"title": "T", "organizer_name": "O"}, http.StatusServiceUnavailable, nil)
	if rec := c.do(http.MethodGet, "/ws/meetings/x", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ws without relay: %d", rec.Code)
	}
}

func TestWebSocketEvents(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := database.NewMemoryDB()
	c := core.New(db, core.Config{CodeLength: 8, ScrutatorPrefix: "SC"}, log)
	t.Cleanup(c.Stop)
	hub := relay.NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	c.SetNotifier(hub)

	server := httptest.NewServer(NewRouter(log, c, hub))
	t.Cleanup(server.Close)
	api := &client{t: t, router: server.Config.Handler}
	m := api.meeting("Live", "Olga")

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/meetings/"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"unknown", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown meeting: err %v, resp %v", err, resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+m.ID, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients(m.ID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	api.call(http.MethodPost, "/participants/join", "", map[string]string{"name": "Ann", "meeting_code": m.MeetingCode}, http.StatusCreated, nil)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event entity.Event
	if err = conn.ReadJSON(&event); err != nil {
		t.Fatalf("read: %v", err)
	}
	if event.Type != entity.EventParticipantJoined || event.MeetingID != m.ID {
		t.Fatalf("event = %+v", event)
	}
}
