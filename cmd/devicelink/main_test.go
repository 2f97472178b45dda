package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/haasonsaas/devicelink/internal/commands"
	"github.com/haasonsaas/devicelink/internal/config"
	"github.com/haasonsaas/devicelink/internal/linking"
	"github.com/haasonsaas/devicelink/internal/roster"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range []string{"serve", "threads", "link", "token"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	if got := resolveConfigPath(""); got != defaultConfigPath {
		t.Errorf("resolveConfigPath(\"\") = %q", got)
	}
	t.Setenv(config.EnvConfigPath, "/etc/devicelink.yaml")
	if got := resolveConfigPath(defaultConfigPath); got != "/etc/devicelink.yaml" {
		t.Errorf("env path not used: %q", got)
	}
	if got := resolveConfigPath("custom.yaml"); got != "custom.yaml" {
		t.Errorf("explicit path not used: %q", got)
	}
}

type stubPlatform struct {
	mu      sync.Mutex
	next    uint64
	threads map[uint64]bool
	sent    map[uint64][]string
}

func newStubPlatform() *stubPlatform {
	return &stubPlatform{next: 5000, threads: map[uint64]bool{}, sent: map[uint64][]string{}}
}

func (p *stubPlatform) ThreadExists(ctx context.Context, threadID uint64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.threads[threadID], nil
}

func (p *stubPlatform) ValidateTextChannel(ctx context.Context, channelID uint64) error {
	return nil
}

func (p *stubPlatform) CreatePrivateThread(ctx context.Context, parentID uint64, name string, archiveMinutes int) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	p.threads[p.next] = true
	return p.next, nil
}

func (p *stubPlatform) AddThreadMember(ctx context.Context, threadID uint64, userID string) error {
	return nil
}

func (p *stubPlatform) SendMessage(ctx context.Context, channelID uint64, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent[channelID] = append(p.sent[channelID], content)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Discord.DispatchChannelID = "4000"
	cfg.Storage.ThreadMap.Path = filepath.Join(t.TempDir(), "threads.json")
	cfg.Router.DisableIntro = true
	cfg.Auth.JWTSecret = "test-secret"
	return cfg
}

func postJSON(t *testing.T, url, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestAppEndToEnd(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	platform := newStubPlatform()

	a, err := newApp(ctx, testConfig(t), logger, platform)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(func() { _ = a.close(context.Background()) })

	srv := httptest.NewServer(a.api.Handler())
	defer srv.Close()

	if resp, _ := postJSON(t, srv.URL+"/link/register", "", map[string]any{"code": "xy12", "driverName": "alice"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("register status = %d", resp.StatusCode)
	}

	res, err := a.commands.Execute(ctx, &commands.Invocation{
		Name:      "link",
		Args:      "XY12",
		GuildID:   "42",
		GuildName: "Depot",
		UserID:    "7",
		IsAdmin:   true,
	})
	if err != nil || res.Error != "" {
		t.Fatalf("link command = (%+v, %v)", res, err)
	}

	resp, claim := postJSON(t, srv.URL+"/link/claim", "", map[string]any{"code": "XY12"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("claim status = %d", resp.StatusCode)
	}
	token, _ := claim["deviceToken"].(string)
	if !strings.HasPrefix(token, linking.CredentialPrefix) {
		t.Fatalf("deviceToken = %q", token)
	}

	if err := a.roster.Put(ctx, &roster.Record{Name: "alice", GuildID: "42", UserID: "100"}); err != nil {
		t.Fatalf("roster Put() error = %v", err)
	}
	resp, _ = postJSON(t, srv.URL+"/messages/send", token, map[string]any{"driverName": "alice", "text": "on my way"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send status = %d", resp.StatusCode)
	}

	threadID, ok, err := a.threads.Get(ctx, "42:100")
	if err != nil || !ok {
		t.Fatalf("thread map entry = (%d, %v, %v)", threadID, ok, err)
	}
	platform.mu.Lock()
	sent := platform.sent[threadID]
	platform.mu.Unlock()
	if len(sent) != 1 || !strings.Contains(sent[0], "on my way") {
		t.Fatalf("thread messages = %v", sent)
	}

	if err := a.bridge.HandleThreadMessage(ctx, "42", threadID, "7", "take exit 4"); err != nil {
		t.Fatalf("HandleThreadMessage() error = %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/messages?driverName=alice", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	listResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /messages: %v", err)
	}
	defer listResp.Body.Close()
	var listed struct {
		Items []struct {
			Text   string `json:"text"`
			Source string `json:"source"`
		} `json:"items"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(listed.Items) != 2 || listed.Items[0].Text != "take exit 4" || listed.Items[0].Source != "discord" {
		t.Fatalf("messages = %+v, want the thread reply first", listed.Items)
	}

	if n := a.scheduler.RunOnce(ctx); n != 0 {
		t.Fatalf("no job should be due yet, ran %d", n)
	}
	if err := a.scheduler.RunJob(ctx, "link-gauges"); err != nil {
		t.Fatalf("RunJob(link-gauges) error = %v", err)
	}
}

func TestThreadsCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devicelink.yaml")
	content := "storage:\n  thread_map:\n    path: " + filepath.Join(dir, "threads.json") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	run := func(args ...string) string {
		t.Helper()
		cmd := buildRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(io.Discard)
		cmd.SetArgs(append(args, "--config", path))
		if err := cmd.Execute(); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		return out.String()
	}

	run("threads", "set", "42", "100", "9001")
	if out := run("threads", "list"); !strings.Contains(out, "42:100") || !strings.Contains(out, "9001") {
		t.Fatalf("list output = %q", out)
	}
	run("threads", "remove", "42", "100")
	if out := run("threads", "list"); strings.Contains(out, "42:100") {
		t.Fatalf("mapping survived remove: %q", out)
	}
}
