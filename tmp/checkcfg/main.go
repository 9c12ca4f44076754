// Manual smoke check: boots a throwaway workspace, starts the API in-process,
// and prints the validation envelope returned for an incomplete submission.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"oppline/internal/config"
	"oppline/internal/db"
	"oppline/internal/engine"
	"oppline/internal/migrate"
	"oppline/internal/server"
)

func main() {
	workspace := "/tmp/oppline-check"
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		panic(err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		panic(err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		panic(err)
	}
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	e := engine.New(conn, cfg)
	h, err := server.New(server.Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     server.AuthConfig{AllowActorHeader: true},
	})
	if err != nil {
		panic(err)
	}
	ts := httptest.NewServer(h)
	defer ts.Close()

	created := post(ts.URL+"/v1/opportunities", map[string]any{
		"title":       "Smoke check",
		"description": "Throwaway opportunity used to exercise the submit gate.",
		"customer_id": "cust-smoke",
		"arr_cents":   50_000_00,
		"priority":    "medium",
	})
	id, _ := created["id"].(string)
	fmt.Printf("created id=%s status=%v\n", id, created["status"])

	// No problem statement, skills, or timeline: submit must come back 422
	// with every missing requirement listed.
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost,
		ts.URL+"/v1/opportunities/"+id+"/submit", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "smoke-tester")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer res.Body.Close()
	var envelope any
	_ = json.NewDecoder(res.Body).Decode(&envelope)
	fmt.Printf("submit status=%d envelope=%v\n", res.StatusCode, envelope)
}

func post(url string, body map[string]any) map[string]any {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "smoke-tester")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer res.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(res.Body).Decode(&out)
	return out
}
