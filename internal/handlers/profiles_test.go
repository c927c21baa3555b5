package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"smokehouse/internal/models"
	"smokehouse/internal/service"
	"smokehouse/internal/storage"
)

func newProfilesRouter(p *mockProfiles) http.Handler {
	return newTestRouter(&service.Service{Authorization: &mockAuth{parseUser: "admin"}, Profiles: p})
}

func TestProfilesHandler_List(t *testing.T) {
	p := &mockProfiles{names: []string{"ham.prof", "ribs.prof"}}
	r := newProfilesRouter(p)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, authed(http.MethodGet, "/api/v1/profiles", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if p.lastSource != "local" {
		t.Fatalf("default source = %q", p.lastSource)
	}
	var out struct {
		Profiles []string `json:"profiles"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if len(out.Profiles) != 2 {
		t.Fatalf("profiles = %v", out.Profiles)
	}

	// remote failure keeps the label entry
	p.names = []string{storage.LabelNoNetwork}
	p.listErr = errors.New("no network")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, authed(http.MethodGet, "/api/v1/profiles?source=remote", ""))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("remote failure status=%d, want 502", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if len(out.Profiles) != 1 || out.Profiles[0] != storage.LabelNoNetwork {
		t.Fatalf("profiles = %v", out.Profiles)
	}

	p.names, p.listErr = nil, service.ErrUnknownSource
	w = httptest.NewRecorder()
	r.ServeHTTP(w, authed(http.MethodGet, "/api/v1/profiles?source=ftp", ""))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown source status=%d, want 400", w.Code)
	}
}

func TestProfilesHandler_GetAndSave(t *testing.T) {
	p := &mockProfiles{steps: []storage.StepData{{Name: "dry", SetpointC: 55, MinTimeMin: 30, PowerMode: 2}}}
	r := newProfilesRouter(p)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, authed(http.MethodGet, "/api/v1/profiles/ham.prof", ""))
	if w.Code != http.StatusOK || p.lastName != "ham.prof" {
		t.Fatalf("get status=%d name=%q", w.Code, p.lastName)
	}

	p.getErr = storage.ErrProfileNotFound
	w = httptest.NewRecorder()
	r.ServeHTTP(w, authed(http.MethodGet, "/api/v1/profiles/gone.prof", ""))
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing profile status=%d, want 404", w.Code)
	}

	body := `[{"name":"dry","tSet":55,"tMeat":0,"minTime":30,"powerMode":2,"smoke":0,"fanMode":1,"fanOn":10,"fanOff":10,"useMeatTemp":false}]`
	w = httptest.NewRecorder()
	r.ServeHTTP(w, authed(http.MethodPut, "/api/v1/profiles/new.prof", body))
	if w.Code != http.StatusOK {
		t.Fatalf("save status=%d body=%s", w.Code, w.Body.String())
	}
	if len(p.lastSaved) != 1 || p.lastSaved[0].SetpointC != 55 || p.lastSaved[0].FanOnSec != 10 {
		t.Fatalf("saved = %+v", p.lastSaved)
	}

	p.saveErr = storage.ErrEmptyProfile
	w = httptest.NewRecorder()
	r.ServeHTTP(w, authed(http.MethodPut, "/api/v1/profiles/new.prof", `[]`))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty profile status=%d, want 422", w.Code)
	}
}

func TestProfilesHandler_Select(t *testing.T) {
	p := &mockProfiles{selected: models.Profile{Name: "ham.prof", Steps: make([]models.Step, 3)}}
	r := newProfilesRouter(p)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, authed(http.MethodPost, "/api/v1/profiles/select", `{"path":"github:ham.prof"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if p.lastPath != "github:ham.prof" {
		t.Fatalf("path = %q", p.lastPath)
	}
	var out struct {
		Profile string `json:"profile"`
		Steps   int    `json:"steps"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Profile != "ham.prof" || out.Steps != 3 {
		t.Fatalf("unexpected response: %+v", out)
	}
}
