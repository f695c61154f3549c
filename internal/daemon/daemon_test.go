package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"fileforge/internal/api"
	"fileforge/internal/broker"
	"fileforge/internal/config"
	"fileforge/internal/daemon"
	"fileforge/internal/orchestrator"
	"fileforge/internal/processors"
	"fileforge/internal/testsupport"
	"fileforge/internal/worker"
)

func newDaemon(t *testing.T, opts ...testsupport.ConfigOption) (*daemon.Daemon, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	if len(cfg.Workers.Families) == 0 {
		cfg.Workers.Families = []string{"security", "ai"}
	}

	store := testsupport.MustOpenStore(t, cfg)
	objects := testsupport.MustOpenObjects(t, cfg)
	bus := broker.NewMemory()

	registry := worker.NewRegistry()
	security, err := processors.NewSecurityProcessor(cfg.Security)
	if err != nil {
		t.Fatalf("security processor: %v", err)
	}
	if err := registry.Register(security); err != nil {
		t.Fatalf("register security: %v", err)
	}
	if err := registry.Register(processors.NewAIProcessor(cfg.AI)); err != nil {
		t.Fatalf("register ai: %v", err)
	}

	dispatcher := worker.NewDispatcher(store, bus, nil)
	svc := orchestrator.New(store, objects, bus, dispatcher, nil, cfg, nil)
	reconciler := orchestrator.NewReconciler(store, dispatcher, nil, cfg, nil)
	runtime := worker.NewRuntime(store, bus, objects, registry, dispatcher, nil, cfg, nil)

	d, err := daemon.New(daemon.Options{
		Config:     cfg,
		Store:      store,
		Objects:    objects,
		Bus:        bus,
		Service:    svc,
		Reconciler: reconciler,
		Runtime:    runtime,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d, cfg
}

func startDaemon(t *testing.T, d *daemon.Daemon) string {
	t.Helper()
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)
	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("api server did not bind")
	}
	return "http://" + addr
}

func uploadFile(t *testing.T, base, owner, name, content string, headers map[string]string) api.UploadResponse {
	t.Helper()
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("owner", owner); err != nil {
		t.Fatalf("write owner field: %v", err)
	}
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.Copy(part, strings.NewReader(content)); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, base+"/api/files", &body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload status = %d: %s", resp.StatusCode, payload)
	}
	var decoded api.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return decoded
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestDaemonProcessesPipelineEndToEnd(t *testing.T) {
	d, _ := newDaemon(t)
	base := startDaemon(t, d)

	uploaded := uploadFile(t, base, "user-1", "notes.txt", "plain harmless text", nil)
	if uploaded.File.Status != "ready" {
		t.Fatalf("fresh upload status = %s, want ready", uploaded.File.Status)
	}

	pipelineBody, _ := json.Marshal(api.PipelineRequest{
		Actions: []api.ActionRequest{{Kind: "virus_scan"}, {Kind: "ai_tag"}},
	})
	resp, err := http.Post(base+"/api/files/"+uploaded.File.ID+"/pipeline",
		"application/json", bytes.NewReader(pipelineBody))
	if err != nil {
		t.Fatalf("pipeline request: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		payload, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("pipeline status = %d: %s", resp.StatusCode, payload)
	}
	resp.Body.Close()

	deadline := time.Now().Add(10 * time.Second)
	var detail api.FileResponse
	for {
		if getJSON(t, base+"/api/files/"+uploaded.File.ID, &detail) != http.StatusOK {
			t.Fatal("file detail not available")
		}
		if detail.File.Status == "ready" || detail.File.Status == "failed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pipeline did not finish, status = %s", detail.File.Status)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if detail.File.Status != "ready" {
		t.Fatalf("final status = %s, want ready", detail.File.Status)
	}
	if len(detail.File.Outputs) != 1 {
		t.Fatalf("outputs = %d, want 1 tag artifact", len(detail.File.Outputs))
	}
	if !strings.HasSuffix(detail.File.Outputs[0].Name, "_tags.json") {
		t.Fatalf("output name = %s", detail.File.Outputs[0].Name)
	}

	var status api.StatusResponse
	if getJSON(t, base+"/api/status", &status) != http.StatusOK {
		t.Fatal("status endpoint failed")
	}
	if status.JobCounts["succeeded"] != 2 {
		t.Fatalf("succeeded = %d, want 2", status.JobCounts["succeeded"])
	}
}

func TestDaemonUploadWithInlineActions(t *testing.T) {
	d, _ := newDaemon(t)
	base := startDaemon(t, d)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("owner", "user-1"); err != nil {
		t.Fatalf("write owner field: %v", err)
	}
	if err := form.WriteField("actions", `[{"kind":"ai_tag"}]`); err != nil {
		t.Fatalf("write actions field: %v", err)
	}
	part, err := form.CreateFormFile("file", "inline.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.Copy(part, strings.NewReader("inline action body")); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	resp, err := http.Post(base+"/api/files", form.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload status = %d: %s", resp.StatusCode, payload)
	}
	var uploaded api.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if uploaded.File.Pipeline == nil || len(uploaded.File.Pipeline.Jobs) != 1 {
		t.Fatalf("upload response missing inline pipeline: %+v", uploaded.File.Pipeline)
	}

	deadline := time.Now().Add(10 * time.Second)
	var detail api.FileResponse
	for {
		if getJSON(t, base+"/api/files/"+uploaded.File.ID, &detail) != http.StatusOK {
			t.Fatal("file detail not available")
		}
		if detail.File.Status == "ready" || detail.File.Status == "failed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("inline pipeline did not finish, status = %s", detail.File.Status)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if detail.File.Status != "ready" {
		t.Fatalf("final status = %s, want ready", detail.File.Status)
	}
}

func TestDaemonScanFailureShortCircuits(t *testing.T) {
	d, _ := newDaemon(t)
	base := startDaemon(t, d)

	eicar := `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`
	uploaded := uploadFile(t, base, "user-1", "evil.txt", eicar, nil)

	pipelineBody, _ := json.Marshal(api.PipelineRequest{
		Actions: []api.ActionRequest{{Kind: "virus_scan"}, {Kind: "ai_tag"}},
	})
	resp, err := http.Post(base+"/api/files/"+uploaded.File.ID+"/pipeline",
		"application/json", bytes.NewReader(pipelineBody))
	if err != nil {
		t.Fatalf("pipeline request: %v", err)
	}
	resp.Body.Close()

	deadline := time.Now().Add(10 * time.Second)
	var detail api.FileResponse
	for {
		getJSON(t, base+"/api/files/"+uploaded.File.ID, &detail)
		if detail.File.Status == "failed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scan did not fail the file, status = %s", detail.File.Status)
		}
		time.Sleep(50 * time.Millisecond)
	}

	if detail.File.Pipeline == nil || len(detail.File.Pipeline.Jobs) != 2 {
		t.Fatalf("pipeline = %+v", detail.File.Pipeline)
	}
	if detail.File.Pipeline.Jobs[0].Status != "failed" {
		t.Fatalf("scan job status = %s", detail.File.Pipeline.Jobs[0].Status)
	}
	if detail.File.Pipeline.Jobs[1].Status != "pending" {
		t.Fatalf("downstream job status = %s, want pending", detail.File.Pipeline.Jobs[1].Status)
	}
}

func TestDaemonDeleteFile(t *testing.T) {
	d, _ := newDaemon(t)
	base := startDaemon(t, d)

	uploaded := uploadFile(t, base, "user-1", "gone.txt", "delete me", nil)

	req, _ := http.NewRequest(http.MethodDelete, base+"/api/files/"+uploaded.File.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	if code := getJSON(t, base+"/api/files/"+uploaded.File.ID, nil); code != http.StatusNotFound {
		t.Fatalf("detail after delete = %d, want 404", code)
	}
}

func TestDaemonRejectsSecondInstance(t *testing.T) {
	d, cfg := newDaemon(t)
	startDaemon(t, d)

	second, err := daemonWithSharedConfig(t, cfg)
	if err != nil {
		t.Fatalf("build second daemon: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance should fail to acquire the lock")
	}
}

func TestDaemonAPIRequiresToken(t *testing.T) {
	d, _ := newDaemon(t, testsupport.WithAPIToken("secret-token"))
	base := startDaemon(t, d)

	resp, err := http.Get(base + "/api/status")
	if err != nil {
		t.Fatalf("status request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, base+"/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authorized status = %d, want 200", resp.StatusCode)
	}
}

// daemonWithSharedConfig builds a second daemon over the same data
// directory to exercise the instance lock.
func daemonWithSharedConfig(t *testing.T, cfg *config.Config) (*daemon.Daemon, error) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	objects := testsupport.MustOpenObjects(t, cfg)
	bus := broker.NewMemory()

	registry := worker.NewRegistry()
	security, err := processors.NewSecurityProcessor(cfg.Security)
	if err != nil {
		return nil, fmt.Errorf("security processor: %w", err)
	}
	if err := registry.Register(security); err != nil {
		return nil, err
	}

	dispatcher := worker.NewDispatcher(store, bus, nil)
	svc := orchestrator.New(store, objects, bus, dispatcher, nil, cfg, nil)
	reconciler := orchestrator.NewReconciler(store, dispatcher, nil, cfg, nil)
	runtime := worker.NewRuntime(store, bus, objects, registry, dispatcher, nil, cfg, nil)

	return daemon.New(daemon.Options{
		Config:     cfg,
		Store:      store,
		Objects:    objects,
		Bus:        bus,
		Service:    svc,
		Reconciler: reconciler,
		Runtime:    runtime,
	})
}
