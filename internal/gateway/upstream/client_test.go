package upstream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "4.43.0", 2*time.Second, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestLoginSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "login.awp") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"code":200,"token":"tok-123","data":{"accounts":[{"id":42}]}}`))
	})

	res, err := c.Login(t.Context(), "user", "pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.Success || res.UserID != 42 || res.Token != "tok-123" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLoginFailureWithMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":505,"token":"","message":"Identifiant ou mot de passe incorrect","data":{}}`))
	})

	res, err := c.Login(t.Context(), "user", "wrong")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Success || res.Failure == nil || *res.Failure != "Identifiant ou mot de passe incorrect" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLoginTransportErrorIsUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Login(t.Context(), "user", "pass")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "upstream unavailable") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListFolders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"token":"t","data":{"classeurs":[{"libelle":"Devoirs","id":7}]}}`))
	})

	folders, err := c.ListFolders(t.Context(), 42, "tok")
	if err != nil {
		t.Fatalf("ListFolders: %v", err)
	}
	if len(folders) != 1 || folders[0].Label != "Devoirs" || folders[0].ID != 7 {
		t.Fatalf("unexpected folders: %+v", folders)
	}
}

func TestFolderMessagesQueryParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("idClasseur") != "0" || q.Get("typeRecuperation") != "received" ||
			q.Get("page") != "2" || q.Get("itemsPerPage") != "10" {
			t.Errorf("unexpected query: %v", q)
		}
		w.Write([]byte(`{"code":200,"token":"t","data":{"received":[]}}`))
	})

	_, err := c.FolderMessages(t.Context(), 42, "tok", 0, "received", 2, 10)
	if err != nil {
		t.Fatalf("FolderMessages: %v", err)
	}
}

func TestMalformedEnvelopeIsUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	_, err := c.Login(t.Context(), "user", "pass")
	if err == nil || !strings.Contains(err.Error(), "upstream unavailable") {
		t.Fatalf("unexpected error: %v", err)
	}
}
