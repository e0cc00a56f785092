package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lookout/api/internal/store"
)

func adminUser() store.User {
	return store.User{ID: "user-0", DisplayName: "Morgan", WorkspaceID: "ws-1", Role: "admin"}
}

func TestWorkspaceProfile(t *testing.T) {
	fs := &fakeStore{
		listKeywordsFn: func(context.Context, string) ([]store.Keyword, error) {
			return []store.Keyword{{ID: "kw-1", Term: "monitoring"}}, nil
		},
		listTrackedCommunitiesFn: func(context.Context, string) ([]store.Community, error) {
			return []store.Community{{ID: "c-1", Name: "selfhosted"}, {ID: "c-2", Name: "observability"}}, nil
		},
	}
	withUser(fs, analystUser())
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/workspace", nil)
	req.Header.Set("Authorization", bearerFor(t, svc, analystUser()))
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["id"] != "ws-1" {
		t.Fatalf("expected workspace ws-1, got %v", payload["id"])
	}
	if payload["keywordCount"] != float64(1) {
		t.Fatalf("expected keywordCount 1, got %v", payload["keywordCount"])
	}
	if payload["trackedCommunities"] != float64(2) {
		t.Fatalf("expected trackedCommunities 2, got %v", payload["trackedCommunities"])
	}
}

func TestAddKeywordRequiresManageRole(t *testing.T) {
	fs := &fakeStore{}
	withUser(fs, analystUser())
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodPost, "/api/keywords", bytes.NewBufferString(`{"term":"kubernetes"}`))
	req.Header.Set("Authorization", bearerFor(t, svc, analystUser()))
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("analyst must not manage keywords, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestAdminAddsAndDeletesKeyword(t *testing.T) {
	var inserted store.Keyword
	fs := &fakeStore{
		insertKeywordFn: func(_ context.Context, keyword store.Keyword) (bool, error) {
			inserted = keyword
			return true, nil
		},
		deleteKeywordFn: func(_ context.Context, _, keywordID string) (bool, error) {
			return keywordID == inserted.ID, nil
		},
	}
	withUser(fs, adminUser())
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, adminUser())

	req := httptest.NewRequest(http.MethodPost, "/api/keywords", bytes.NewBufferString(`{"term":"kubernetes"}`))
	req.Header.Set("Authorization", bearer)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	if inserted.WorkspaceID != "ws-1" {
		t.Fatalf("keyword must be scoped to the caller's workspace, got %q", inserted.WorkspaceID)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/keywords/"+inserted.ID, nil)
	req.Header.Set("Authorization", bearer)
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestAddKeywordAlreadyTrackedReturnsConflict(t *testing.T) {
	fs := &fakeStore{
		insertKeywordFn: func(context.Context, store.Keyword) (bool, error) {
			return false, nil
		},
	}
	withUser(fs, adminUser())
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodPost, "/api/keywords", bytes.NewBufferString(`{"term":"kubernetes"}`))
	req.Header.Set("Authorization", bearerFor(t, svc, adminUser()))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["code"] != "KEYWORD_EXISTS" {
		t.Fatalf("expected KEYWORD_EXISTS, got %v", payload["code"])
	}
	if _, ok := payload["id"]; ok {
		t.Fatalf("conflict response must not carry a keyword ID")
	}
}

func TestTrackCommunityRoute(t *testing.T) {
	tracked := 0
	fs := &fakeStore{
		getCommunityFn: func(_ context.Context, communityID string) (store.Community, error) {
			return store.Community{ID: communityID, Name: "observability"}, nil
		},
		trackCommunityFn: func(context.Context, string, string) error {
			tracked++
			return nil
		},
	}
	withUser(fs, adminUser())
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodPost, "/api/communities/tracked",
		bytes.NewBufferString(`{"communityId":"c-observability"}`))
	req.Header.Set("Authorization", bearerFor(t, svc, adminUser()))
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if tracked != 1 {
		t.Fatalf("expected one TrackCommunity call, got %d", tracked)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["tracked"] != true {
		t.Fatalf("expected tracked true, got %v", payload["tracked"])
	}
}

func TestUntrackUnknownCommunityReturns404(t *testing.T) {
	fs := &fakeStore{}
	withUser(fs, adminUser())
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodDelete, "/api/communities/tracked/c-missing", nil)
	req.Header.Set("Authorization", bearerFor(t, svc, adminUser()))
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestGetPostDetailGatedByReach(t *testing.T) {
	fs := &fakeStore{
		getPostFn: func(_ context.Context, postID string) (store.Post, error) {
			return store.Post{ID: postID, CommunityID: "c-1", Title: "What do you use for uptime monitoring?", SourceScore: 62}, nil
		},
	}
	withUser(fs, analystUser())
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")
	bearer := bearerFor(t, svc, analystUser())

	// No reach route holds yet.
	req := httptest.NewRequest(http.MethodGet, "/api/posts/p-1", nil)
	req.Header.Set("Authorization", bearer)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unreachable post, got %d", rr.Code)
	}

	fs.postCommunityReachFn = func(context.Context, string, string) (bool, error) {
		return true, nil
	}
	req = httptest.NewRequest(http.MethodGet, "/api/posts/p-1", nil)
	req.Header.Set("Authorization", bearer)
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["sourceScore"] != float64(62) {
		t.Fatalf("expected sourceScore 62, got %v", payload["sourceScore"])
	}
}
