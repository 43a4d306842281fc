package config

import "testing"

func TestNormaliseExecutionSettingsDefaultsAndBounds(t *testing.T) {
	exec := NormaliseExecutionSettings(ExecutionSettings{})
	if exec.TimeoutSeconds != ExecutionTimeoutDefault {
		t.Fatalf(
			"expected timeout default %v, got %v",
			ExecutionTimeoutDefault,
			exec.TimeoutSeconds,
		)
	}
	if exec.HistoryCapacity != HistoryCapacityDefault {
		t.Fatalf(
			"expected history capacity default %v, got %v",
			HistoryCapacityDefault,
			exec.HistoryCapacity,
		)
	}

	exec = NormaliseExecutionSettings(ExecutionSettings{TimeoutSeconds: 9999, HistoryCapacity: -4})
	if exec.TimeoutSeconds != ExecutionTimeoutMax {
		t.Fatalf("expected timeout clamped to %v, got %v", ExecutionTimeoutMax, exec.TimeoutSeconds)
	}
	if exec.HistoryCapacity != HistoryCapacityMin {
		t.Fatalf("expected capacity clamped to %v, got %v", HistoryCapacityMin, exec.HistoryCapacity)
	}
}

func TestNormaliseTransportSettingsMode(t *testing.T) {
	tr := NormaliseTransportSettings(TransportSettings{Mode: " Bridge ", BridgeURL: " ws://x/relay "})
	if tr.Mode != TransportModeBridge {
		t.Fatalf("expected bridge mode, got %q", tr.Mode)
	}
	if tr.BridgeURL != "ws://x/relay" {
		t.Fatalf("expected trimmed bridge url, got %q", tr.BridgeURL)
	}

	tr = NormaliseTransportSettings(TransportSettings{Mode: "carrier-pigeon"})
	if tr.Mode != TransportModeAuto {
		t.Fatalf("expected unknown mode to fall back to auto, got %q", tr.Mode)
	}
}

func TestNormaliseStorageSettingsBackend(t *testing.T) {
	st := NormaliseStorageSettings(StorageSettings{Backend: "SQLite"})
	if st.Backend != StorageBackendSQLite {
		t.Fatalf("expected sqlite backend, got %q", st.Backend)
	}
	st = NormaliseStorageSettings(StorageSettings{Backend: "redis"})
	if st.Backend != StorageBackendMemory {
		t.Fatalf("expected unknown backend to fall back to memory, got %q", st.Backend)
	}
}

func TestNormaliseCallbackSettings(t *testing.T) {
	cb := NormaliseCallbackSettings(CallbackSettings{})
	if cb.Host != CallbackHostDefault || cb.Port != 0 {
		t.Fatalf("unexpected defaults: %+v", cb)
	}
	cb = NormaliseCallbackSettings(CallbackSettings{Host: "localhost", Port: 70000})
	if cb.Host != "localhost" || cb.Port != 0 {
		t.Fatalf("expected out-of-range port reset, got %+v", cb)
	}
}
