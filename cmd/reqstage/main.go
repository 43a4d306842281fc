package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/unkn0wn-root/reqstage/internal/authcfg"
	"github.com/unkn0wn-root/reqstage/internal/config"
	"github.com/unkn0wn-root/reqstage/internal/curl"
	"github.com/unkn0wn-root/reqstage/internal/engine"
	"github.com/unkn0wn-root/reqstage/internal/history"
	"github.com/unkn0wn-root/reqstage/internal/oauth"
	"github.com/unkn0wn-root/reqstage/internal/reqmodel"
	"github.com/unkn0wn-root/reqstage/internal/storage"
	"github.com/unkn0wn-root/reqstage/internal/telemetry"
	"github.com/unkn0wn-root/reqstage/internal/tokens"
	"github.com/unkn0wn-root/reqstage/internal/transport"
	"github.com/unkn0wn-root/reqstage/internal/vars"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const sealKeyEnv = "REQSTAGE_SEAL_KEY"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		filePath      string
		requestKey    string
		envName       string
		envFile       string
		timeout       time.Duration
		transportMode string
		bridgeURL     string
		ipcSocket     string
		proxyURL      string
		insecure      bool
		noFollow      bool
		quiet         bool
		jsonOut       bool
		curlOut       bool
		showVersion   bool
		otelEndpoint  string
		otelInsecure  bool
		otelService   string
	)

	telemetryCfg := telemetry.ConfigFromEnv(os.Getenv)
	otelEndpoint = telemetryCfg.Endpoint
	otelInsecure = telemetryCfg.Insecure
	otelService = telemetryCfg.ServiceName

	flag.StringVar(&filePath, "file", "", "Path to request document (JSON)")
	flag.StringVar(&requestKey, "request", "", "Request id or name to run")
	flag.StringVar(&envName, "env", "", "Environment name to use")
	flag.StringVar(&envFile, "env-file", "", "Path to environment file")
	flag.DurationVar(&timeout, "timeout", 0, "Request timeout (overrides settings when set)")
	flag.StringVar(&transportMode, "transport", "", "Transport mode: auto, direct, bridge or ipc")
	flag.StringVar(&bridgeURL, "bridge", "", "WebSocket bridge URL")
	flag.StringVar(&ipcSocket, "ipc-socket", "", "Unix socket path for the IPC transport")
	flag.StringVar(&proxyURL, "proxy", "", "HTTP proxy URL")
	flag.BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification")
	flag.BoolVar(&noFollow, "no-follow", false, "Do not follow redirects")
	flag.BoolVar(&quiet, "quiet", false, "Suppress phase narration")
	flag.BoolVar(&jsonOut, "json", false, "Print the full response record as JSON")
	flag.BoolVar(&curlOut, "curl", false, "Print the request as a curl command instead of sending it")
	flag.BoolVar(&showVersion, "version", false, "Show reqstage version")
	flag.StringVar(
		&otelEndpoint,
		"otel-endpoint",
		otelEndpoint,
		"OTLP collector endpoint for run spans",
	)
	flag.BoolVar(
		&otelInsecure,
		"otel-insecure",
		otelInsecure,
		"Disable TLS for OTLP trace export",
	)
	flag.StringVar(
		&otelService,
		"otel-service",
		otelService,
		"Override service.name resource attribute for exported spans",
	)
	flag.Parse()

	telemetryCfg.Endpoint = strings.TrimSpace(otelEndpoint)
	telemetryCfg.Insecure = otelInsecure
	telemetryCfg.ServiceName = strings.TrimSpace(otelService)
	telemetryCfg.Version = version

	if showVersion {
		fmt.Printf("reqstage %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		if sum, err := executableChecksum(); err == nil {
			fmt.Printf("  sha256: %s\n", sum)
		} else {
			fmt.Printf("  sha256: unavailable (%v)\n", err)
		}
		return 0
	}

	if filePath == "" && flag.NArg() > 0 {
		filePath = flag.Arg(0)
	}
	if filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: reqstage [flags] <document.json>")
		flag.PrintDefaults()
		return 2
	}
	filePath = filepath.Clean(filePath)

	doc, err := loadDocument(filePath)
	if err != nil {
		log.Fatalf("load document: %v", err)
	}
	req, err := selectRequest(doc, requestKey)
	if err != nil {
		log.Fatalf("%v", err)
	}
	env := loadEnvironment(envFile, filepath.Dir(filePath), envName)

	settings, _, err := config.LoadSettings()
	if err != nil {
		log.Printf("settings load error: %v", err)
		settings = config.DefaultSettings()
	}
	if transportMode != "" {
		settings.Transport.Mode = config.TransportMode(transportMode)
	}
	if bridgeURL != "" {
		settings.Transport.BridgeURL = bridgeURL
	}
	if ipcSocket != "" {
		settings.Transport.IPCSocket = ipcSocket
	}
	if proxyURL != "" {
		settings.Transport.ProxyURL = proxyURL
	}
	if insecure {
		settings.Transport.InsecureSkipVerify = true
	}
	if noFollow {
		settings.Transport.DisableRedirects = true
	}
	settings.Transport = config.NormaliseTransportSettings(settings.Transport)

	runTimeout := time.Duration(settings.Execution.TimeoutSeconds) * time.Second
	if timeout > 0 {
		runTimeout = timeout
	}
	quiet = quiet || settings.Execution.QuietNarration

	sender, err := buildSender(settings.Transport)
	if err != nil {
		log.Fatalf("transport: %v", err)
	}

	store, err := openStore(settings.Storage)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("storage close: %v", closeErr)
		}
	}()

	ctx := context.Background()
	cache := tokens.NewCache(store)
	if err := cache.Hydrate(ctx); err != nil {
		log.Printf("token cache load: %v", err)
	}
	registry := authcfg.NewRegistry(store)
	if err := registry.Hydrate(ctx); err != nil {
		log.Printf("auth config load: %v", err)
	}

	if curlOut {
		values := vars.ForRequest(req, doc, env)
		resolved := vars.ResolveRequest(req, values, vars.KeepUnresolved)
		auth, _ := registry.ResolveForRequest(resolved, doc)
		cmd, err := curl.Command(resolved, auth)
		if err != nil {
			log.Printf("render curl: %v", err)
			return 1
		}
		fmt.Println(cmd)
		return 0
	}

	manager := oauth.NewManager(cache, sender.Send)
	manager.SetCallbackAddr(settings.Callback.Host, settings.Callback.Port)

	tele := telemetry.Noop()
	provider, err := telemetry.New(telemetryCfg)
	if err != nil {
		if telemetryCfg.Enabled() {
			log.Printf("telemetry init error: %v", err)
		}
	} else {
		tele = provider
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if shutdownErr := provider.Shutdown(sctx); shutdownErr != nil {
				log.Printf("telemetry shutdown: %v", shutdownErr)
			}
		}()
	}

	eng := engine.New(engine.Config{
		Sender:    sender,
		Auth:      registry,
		OAuth:     manager,
		History:   history.New(settings.Execution.HistoryCapacity),
		Telemetry: tele,
		Timeout:   runTimeout,
		Logf:      log.Printf,
	})

	watch := eng.Watch()
	gen := eng.ExecuteRequest(engine.RunInput{
		Request:     req,
		Document:    doc,
		Environment: env,
	})

	for snap := range watch {
		if snap.Generation != gen {
			continue
		}
		switch snap.Phase {
		case engine.PhaseSuccess:
			if err := printRecord(os.Stdout, snap, jsonOut); err != nil {
				log.Printf("print response: %v", err)
				return 1
			}
			return 0
		case engine.PhaseError:
			printFailure(snap, quiet)
			return 1
		default:
			if !quiet && snap.Narration != "" {
				printPhase(snap)
			}
		}
	}
	return 1
}

func loadDocument(path string) (*reqmodel.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc reqmodel.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	for _, req := range doc.Requests {
		if req == nil {
			continue
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		if req.FileID == "" {
			req.FileID = doc.ID
		}
	}
	return &doc, nil
}

func selectRequest(doc *reqmodel.Document, key string) (*reqmodel.Request, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		switch len(doc.Requests) {
		case 0:
			return nil, fmt.Errorf("document %q has no requests", doc.Name)
		case 1:
			return doc.Requests[0], nil
		default:
			return nil, fmt.Errorf(
				"document %q has %d requests; pick one with -request (have: %s)",
				doc.Name,
				len(doc.Requests),
				strings.Join(requestNames(doc), ", "),
			)
		}
	}
	if req := doc.FindRequest(key); req != nil {
		return req, nil
	}
	for _, req := range doc.Requests {
		if req != nil && strings.EqualFold(req.Name, key) {
			return req, nil
		}
	}
	return nil, fmt.Errorf(
		"no request %q in document %q (have: %s)",
		key,
		doc.Name,
		strings.Join(requestNames(doc), ", "),
	)
}

func requestNames(doc *reqmodel.Document) []string {
	names := make([]string, 0, len(doc.Requests))
	for _, req := range doc.Requests {
		if req == nil {
			continue
		}
		if req.Name != "" {
			names = append(names, req.Name)
			continue
		}
		names = append(names, req.ID)
	}
	return names
}

func loadEnvironment(explicit, docDir, name string) *reqmodel.Environment {
	path := strings.TrimSpace(explicit)
	if path == "" {
		path = findEnvFile(docDir)
	}
	if path == "" {
		if name != "" {
			log.Printf("environment %q requested but no environment file found", name)
		}
		return nil
	}
	if vars.IsDotEnvPath(path) {
		env, err := vars.LoadDotEnv(path)
		if err != nil {
			log.Printf("environment file %s: %v", path, err)
			return nil
		}
		return &env
	}
	envs, err := vars.LoadEnvironments(path)
	if err != nil {
		log.Printf("environment file %s: %v", path, err)
		return nil
	}
	if len(envs) == 0 {
		return nil
	}
	if name == "" {
		name = defaultEnvironmentName(envs)
	}
	env := vars.SelectEnv(envs, name)
	if env == nil {
		log.Printf(
			"environment %q not found in %s (have: %s)",
			name,
			path,
			strings.Join(environmentNames(envs), ", "),
		)
		return nil
	}
	return env
}

func findEnvFile(docDir string) string {
	candidates := []string{"envs.yaml", "envs.yml", ".env"}
	dirs := []string{docDir}
	if cwd, err := os.Getwd(); err == nil && cwd != docDir {
		dirs = append(dirs, cwd)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, name := range candidates {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path
			}
		}
	}
	return ""
}

func defaultEnvironmentName(envs []reqmodel.Environment) string {
	preferred := []string{"dev", "default", "local"}
	for _, want := range preferred {
		for _, env := range envs {
			if strings.EqualFold(env.Name, want) {
				return env.Name
			}
		}
	}
	return envs[0].Name
}

func environmentNames(envs []reqmodel.Environment) []string {
	names := make([]string, 0, len(envs))
	for _, env := range envs {
		names = append(names, env.Name)
	}
	return names
}

func openStore(cfg config.StorageSettings) (storage.Store, error) {
	path := cfg.Path
	if path == "" {
		path = filepath.Join(config.Dir(), "reqstage.db")
	}

	var (
		inner storage.Store
		err   error
	)
	switch cfg.Backend {
	case config.StorageBackendBolt:
		if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure storage directory: %w", err)
		}
		inner, err = storage.OpenBolt(path)
	case config.StorageBackendSQLite:
		if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure storage directory: %w", err)
		}
		inner, err = storage.OpenSQLite(path)
	default:
		inner = storage.NewMemory()
	}
	if err != nil {
		return nil, err
	}
	if !cfg.Sealed {
		return inner, nil
	}

	passphrase := os.Getenv(sealKeyEnv)
	if passphrase == "" {
		_ = inner.Close()
		return nil, fmt.Errorf("storage is sealed but %s is not set", sealKeyEnv)
	}
	sealed, err := storage.NewSealed(inner, passphrase)
	if err != nil {
		_ = inner.Close()
		return nil, err
	}
	return sealed, nil
}

func buildSender(cfg config.TransportSettings) (engine.Sender, error) {
	direct := transport.NewDirect(transport.DirectOptions{
		ProxyURL:           cfg.ProxyURL,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		FollowRedirects:    !cfg.DisableRedirects,
	})

	switch cfg.Mode {
	case config.TransportModeDirect:
		return direct, nil
	case config.TransportModeBridge:
		if cfg.BridgeURL == "" {
			return nil, fmt.Errorf("transport mode bridge needs transport.bridge_url")
		}
		return transport.NewBridge(cfg.BridgeURL), nil
	case config.TransportModeIPC:
		if cfg.IPCSocket == "" {
			return nil, fmt.Errorf("transport mode ipc needs transport.ipc_socket")
		}
		return transport.NewIPC(cfg.IPCSocket), nil
	}

	// Auto mode probes once on first send; a typed nil in the config
	// would defeat the nil checks inside the selector, so only set the
	// optional transports when they are actually configured.
	selector := transport.SelectorConfig{Direct: direct, Logf: log.Printf}
	if cfg.BridgeURL != "" {
		selector.Bridge = transport.NewBridge(cfg.BridgeURL)
	}
	if cfg.IPCSocket != "" {
		selector.IPC = transport.NewIPC(cfg.IPCSocket)
	}
	return transport.NewSelector(selector), nil
}

var phaseColors = map[engine.Phase]*color.Color{
	engine.PhaseIdle:           color.New(color.Faint),
	engine.PhaseAuthenticating: color.New(color.FgYellow),
	engine.PhaseAuthorizing:    color.New(color.FgMagenta),
	engine.PhaseFetching:       color.New(color.FgCyan),
	engine.PhaseSuccess:        color.New(color.FgGreen),
	engine.PhaseError:          color.New(color.FgRed, color.Bold),
}

func printPhase(snap engine.Snapshot) {
	c, ok := phaseColors[snap.Phase]
	if !ok {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", snap.Phase, snap.Narration)
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", c.Sprintf("[%s]", snap.Phase), snap.Narration)
}

func printFailure(snap engine.Snapshot, quiet bool) {
	if !quiet && snap.Narration != "" {
		fmt.Fprintf(
			os.Stderr,
			"%s %s\n",
			phaseColors[engine.PhaseError].Sprint("[error]"),
			snap.Narration,
		)
	}
	if snap.Err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "failed while %s: %s\n", snap.Err.Phase, snap.Err.Message)
}

func printRecord(w io.Writer, snap engine.Snapshot, asJSON bool) error {
	record := snap.Response
	if record == nil {
		return fmt.Errorf("run finished without a response")
	}
	if asJSON {
		out, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return err
		}
		out = append(out, '\n')
		_, err = w.Write(out)
		return err
	}

	status := statusColor(record.StatusCode).Sprint(record.Status)
	if _, err := fmt.Fprintf(
		w,
		"%s in %s via %s\n",
		status,
		snap.Duration.Round(time.Millisecond),
		record.Via,
	); err != nil {
		return err
	}
	if len(record.Body) == 0 {
		return nil
	}

	body := record.Body
	if record.BodyParsed != nil {
		if pretty, err := json.MarshalIndent(record.BodyParsed, "", "  "); err == nil {
			body = pretty
		}
	}
	_, err := fmt.Fprintf(w, "\n%s\n", bytes.TrimRight(body, "\n"))
	return err
}

func statusColor(code int) *color.Color {
	switch {
	case code >= 500:
		return color.New(color.FgRed)
	case code >= 400:
		return color.New(color.FgYellow)
	case code >= 300:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgGreen)
	}
}

func executableChecksum() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", err
	}
	f, err := os.Open(exe)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
