package config

import "strings"

type TransportMode string

const (
	TransportModeAuto   TransportMode = "auto"
	TransportModeDirect TransportMode = "direct"
	TransportModeBridge TransportMode = "bridge"
	TransportModeIPC    TransportMode = "ipc"
)

type StorageBackend string

const (
	StorageBackendMemory StorageBackend = "memory"
	StorageBackendBolt   StorageBackend = "bolt"
	StorageBackendSQLite StorageBackend = "sqlite"
)

type ExecutionSettings struct {
	TimeoutSeconds  int  `json:"timeout_seconds"  toml:"timeout_seconds"`
	HistoryCapacity int  `json:"history_capacity" toml:"history_capacity"`
	QuietNarration  bool `json:"quiet_narration"  toml:"quiet_narration"`
}

type TransportSettings struct {
	Mode               TransportMode `json:"mode"                 toml:"mode"`
	BridgeURL          string        `json:"bridge_url"           toml:"bridge_url"`
	IPCSocket          string        `json:"ipc_socket"           toml:"ipc_socket"`
	ProxyURL           string        `json:"proxy_url"            toml:"proxy_url"`
	InsecureSkipVerify bool          `json:"insecure_skip_verify" toml:"insecure_skip_verify"`
	DisableRedirects   bool          `json:"disable_redirects"    toml:"disable_redirects"`
}

type StorageSettings struct {
	Backend StorageBackend `json:"backend" toml:"backend"`
	// Path is the database file for the bolt and sqlite backends;
	// empty means <config dir>/reqstage.db.
	Path   string `json:"path"   toml:"path"`
	Sealed bool   `json:"sealed" toml:"sealed"`
}

type CallbackSettings struct {
	Host string `json:"host" toml:"host"`
	Port int    `json:"port" toml:"port"`
}

const (
	ExecutionTimeoutDefault = 30
	ExecutionTimeoutMin     = 1
	ExecutionTimeoutMax     = 600
	HistoryCapacityDefault  = 100
	HistoryCapacityMin      = 1
	HistoryCapacityMax      = 5000
	CallbackHostDefault     = "127.0.0.1"
)

func DefaultExecutionSettings() ExecutionSettings {
	return ExecutionSettings{
		TimeoutSeconds:  ExecutionTimeoutDefault,
		HistoryCapacity: HistoryCapacityDefault,
	}
}

func DefaultTransportSettings() TransportSettings {
	return TransportSettings{Mode: TransportModeAuto}
}

func DefaultStorageSettings() StorageSettings {
	return StorageSettings{Backend: StorageBackendMemory}
}

func DefaultCallbackSettings() CallbackSettings {
	return CallbackSettings{Host: CallbackHostDefault}
}

func NormaliseExecutionSettings(in ExecutionSettings) ExecutionSettings {
	out := DefaultExecutionSettings()
	out.TimeoutSeconds = clampInt(
		in.TimeoutSeconds,
		ExecutionTimeoutMin,
		ExecutionTimeoutMax,
		ExecutionTimeoutDefault,
	)
	out.HistoryCapacity = clampInt(
		in.HistoryCapacity,
		HistoryCapacityMin,
		HistoryCapacityMax,
		HistoryCapacityDefault,
	)
	out.QuietNarration = in.QuietNarration
	return out
}

func NormaliseTransportSettings(in TransportSettings) TransportSettings {
	out := in
	out.Mode = normaliseMode(in.Mode, TransportModeAuto)
	out.BridgeURL = strings.TrimSpace(in.BridgeURL)
	out.IPCSocket = strings.TrimSpace(in.IPCSocket)
	out.ProxyURL = strings.TrimSpace(in.ProxyURL)
	return out
}

func NormaliseStorageSettings(in StorageSettings) StorageSettings {
	out := in
	out.Backend = normaliseBackend(in.Backend, StorageBackendMemory)
	out.Path = strings.TrimSpace(in.Path)
	return out
}

func NormaliseCallbackSettings(in CallbackSettings) CallbackSettings {
	out := in
	if strings.TrimSpace(out.Host) == "" {
		out.Host = CallbackHostDefault
	}
	if out.Port < 0 || out.Port > 65535 {
		out.Port = 0
	}
	return out
}

func normaliseMode(in, def TransportMode) TransportMode {
	switch strings.ToLower(strings.TrimSpace(string(in))) {
	case string(TransportModeDirect):
		return TransportModeDirect
	case string(TransportModeBridge):
		return TransportModeBridge
	case string(TransportModeIPC):
		return TransportModeIPC
	case string(TransportModeAuto):
		return TransportModeAuto
	default:
		return def
	}
}

func normaliseBackend(in, def StorageBackend) StorageBackend {
	switch strings.ToLower(strings.TrimSpace(string(in))) {
	case string(StorageBackendMemory):
		return StorageBackendMemory
	case string(StorageBackendBolt):
		return StorageBackendBolt
	case string(StorageBackendSQLite):
		return StorageBackendSQLite
	default:
		return def
	}
}

func clampInt[T ~int](value, min, max, fallback T) T {
	if value == 0 {
		return fallback
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
