//go:build integration

package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/soaringjerry/coachdesk/internal/client"
	"github.com/soaringjerry/coachdesk/internal/intake"
)

func baseURL() string {
	if v := os.Getenv("COACHD_TEST_BASE_URL"); strings.TrimSpace(v) != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://127.0.0.1:18080"
}

func token() string { return os.Getenv("COACHD_TEST_TOKEN") }

func TestCoachJourneyIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	api := client.New(baseURL()+"/api", client.WithToken(token()))
	clientID := fmt.Sprintf("it-%d", time.Now().UnixNano())

	s, err := api.OpenForm(ctx, clientID, intake.FormHealthEvaluation)
	if err != nil {
		t.Fatalf("open form: %v", err)
	}
	if s.Saved() != nil {
		t.Fatalf("new client should have no submission")
	}
	for name, v := range map[string]intake.Value{
		"fullName":          intake.Text("Integration Client"),
		"deliveryType":      intake.Enum("C-Section"),
		"clearanceDecision": intake.Enum("Cleared for full activity"),
	} {
		if err := s.Set(name, v); err != nil {
			t.Fatalf("set %s: %v", name, err)
		}
	}
	first, err := s.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %s", client.Notice(err))
	}
	second, err := s.Submit(ctx)
	if err != nil {
		t.Fatalf("resubmit: %s", client.Notice(err))
	}
	if first.ID != second.ID {
		t.Fatalf("resubmit created a new record: %s vs %s", first.ID, second.ID)
	}

	httpClient := &http.Client{Timeout: 5 * time.Second}
	var course struct {
		ID string `json:"id"`
	}
	doJSON(t, httpClient, http.MethodPost, "/api/courses", map[string]any{"name": "Integration course"}, &course)
	var mod struct {
		ID string `json:"id"`
	}
	doJSON(t, httpClient, http.MethodPost, "/api/courses/"+course.ID+"/modules", map[string]any{"name": "Week 1"}, &mod)

	var audit struct {
		HasIssues    bool     `json:"hasIssues"`
		EmptyModules []string `json:"emptyModules"`
	}
	doJSON(t, httpClient, http.MethodGet, "/api/courses/"+course.ID+"/audit", nil, &audit)
	if !audit.HasIssues || len(audit.EmptyModules) != 1 {
		t.Fatalf("unexpected audit: %+v", audit)
	}

	got, err := api.GetCourse(ctx, course.ID)
	if err != nil {
		t.Fatalf("get course: %v", err)
	}
	if len(got.Modules) != 1 || got.Modules[0].ID != mod.ID {
		t.Fatalf("unexpected course tree: %+v", got)
	}
}

func doJSON(t *testing.T, c *http.Client, method, path string, body, out any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, baseURL()+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		t.Fatalf("%s %s: status %d: %s", method, path, resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
}
