package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSettingsReturnsDefaultHandleWhenMissing(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigDir, dir)

	settings, handle, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings returned error: %v", err)
	}
	expectedPath := filepath.Join(dir, "settings.toml")
	if handle.Path != expectedPath {
		t.Fatalf("expected handle path %q, got %q", expectedPath, handle.Path)
	}
	if handle.Format != SettingsFormatTOML {
		t.Fatalf("expected format %q, got %q", SettingsFormatTOML, handle.Format)
	}
	if settings.Execution.TimeoutSeconds != ExecutionTimeoutDefault {
		t.Fatalf(
			"expected default timeout %v, got %v",
			ExecutionTimeoutDefault,
			settings.Execution.TimeoutSeconds,
		)
	}
	if settings.Transport.Mode != TransportModeAuto {
		t.Fatalf("expected auto transport mode, got %q", settings.Transport.Mode)
	}
	if settings.Storage.Backend != StorageBackendMemory {
		t.Fatalf("expected memory storage backend, got %q", settings.Storage.Backend)
	}
	if settings.Callback.Host != CallbackHostDefault {
		t.Fatalf("expected callback host %q, got %q", CallbackHostDefault, settings.Callback.Host)
	}
}

func TestSaveAndLoadSettingsTOML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigDir, dir)

	want := Settings{
		Execution: ExecutionSettings{TimeoutSeconds: 45, HistoryCapacity: 250},
		Transport: TransportSettings{Mode: TransportModeBridge, BridgeURL: "ws://127.0.0.1:9100/relay"},
		Storage:   StorageSettings{Backend: StorageBackendBolt, Path: filepath.Join(dir, "state.db")},
	}
	if err := SaveSettings(want, SettingsHandle{}); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	got, handle, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if got.Execution.TimeoutSeconds != 45 || got.Execution.HistoryCapacity != 250 {
		t.Fatalf("execution settings did not round-trip: %+v", got.Execution)
	}
	if got.Transport.Mode != TransportModeBridge || got.Transport.BridgeURL != want.Transport.BridgeURL {
		t.Fatalf("transport settings did not round-trip: %+v", got.Transport)
	}
	if got.Storage.Backend != StorageBackendBolt || got.Storage.Path != want.Storage.Path {
		t.Fatalf("storage settings did not round-trip: %+v", got.Storage)
	}
	if handle.Format != SettingsFormatTOML {
		t.Fatalf("expected format %q after save, got %q", SettingsFormatTOML, handle.Format)
	}
}

func TestLoadSettingsJSON(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigDir, dir)

	payload := Settings{
		Execution: ExecutionSettings{TimeoutSeconds: 10, HistoryCapacity: 50},
		Transport: TransportSettings{Mode: TransportModeIPC, IPCSocket: "/tmp/reqstage.sock"},
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	path := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write json settings: %v", err)
	}

	got, handle, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if got.Transport.Mode != TransportModeIPC || got.Transport.IPCSocket != payload.Transport.IPCSocket {
		t.Fatalf("transport settings mismatch: %+v", got.Transport)
	}
	if handle.Format != SettingsFormatJSON {
		t.Fatalf("expected json format, got %q", handle.Format)
	}
	if handle.Path != path {
		t.Fatalf("expected handle path %q, got %q", path, handle.Path)
	}
}

func TestLoadSettingsPrefersTOML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigDir, dir)

	tomlPath := filepath.Join(dir, "settings.toml")
	if err := os.WriteFile(tomlPath, []byte("[execution]\ntimeout_seconds = 20\n"), 0o644); err != nil {
		t.Fatalf("write toml settings: %v", err)
	}
	jsonPath := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(jsonPath, []byte(`{"execution":{"timeout_seconds":99}}`), 0o644); err != nil {
		t.Fatalf("write json settings: %v", err)
	}

	got, handle, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if got.Execution.TimeoutSeconds != 20 {
		t.Fatalf("expected toml value 20, got %d", got.Execution.TimeoutSeconds)
	}
	if handle.Path != tomlPath {
		t.Fatalf("expected toml handle, got %q", handle.Path)
	}
}
