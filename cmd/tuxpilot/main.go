// Command tuxpilot runs the Linux assistant pipeline against stdin chat
// turns, streaming typed events as JSONL (or pretty text on a TTY).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"tuxpilot/pkg/agent"
	"tuxpilot/pkg/config"
	"tuxpilot/pkg/logx"
	"tuxpilot/pkg/metrics"
	"tuxpilot/pkg/orchestrator"
	"tuxpilot/pkg/proto"
	"tuxpilot/pkg/resilience"
	"tuxpilot/pkg/stream"
	"tuxpilot/pkg/usage"
)

// Version information - set by goreleaser via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var (
		configPath     = flag.String("config", "", "Path to config file (default: <config-dir>/config.yaml)")
		configDir      = flag.String("config-dir", defaultConfigDir(), "Config directory for secrets and defaults")
		chatID         = flag.String("chat", "", "Chat ID to resume (default: new chat)")
		tier           = flag.String("tier", "pro", "Subscription tier: trial, free, or pro")
		metricsAddr    = flag.String("metrics", "", "Address to serve Prometheus metrics on (e.g. :9095), empty disables")
		statsURL       = flag.String("stats", "", "Print aggregated usage from a Prometheus server at this URL and exit")
		encryptSecrets = flag.Bool("encrypt-secrets", false, "Interactively encrypt API keys into the secrets file and exit")
		showVersion    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("tuxpilot %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		os.Exit(0)
	}

	if *encryptSecrets {
		if err := runEncryptSecrets(*configDir); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encrypt secrets: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *statsURL != "" {
		if err := printStats(*statsURL); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to fetch stats: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath, *configDir, *chatID, *tier, *metricsAddr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, configDir, chatID, tierFlag, metricsAddr string) error {
	if configPath == "" {
		configPath = filepath.Join(configDir, "config.yaml")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	tier, err := proto.ParseTier(tierFlag)
	if err != nil {
		return err
	}

	if err := loadSecrets(configDir); err != nil {
		return err
	}

	// Wiring. Optional pieces (usage DB, event log, metrics endpoint) only
	// come up when configured.
	opts := orchestrator.Options{
		Clients:  agent.NewFactory(cfg),
		Executor: resilience.NewExecutor(cfg.Resilience),
		Recorder: metrics.NewPrometheusRecorder(),
	}
	if counter, err := usage.NewTokenCounter(); err == nil {
		opts.Counter = counter
	} else {
		logx.Warnf("tokenizer unavailable, falling back to rough estimates: %v", err)
	}
	if cfg.Usage.DBPath != "" {
		store, err := usage.NewStore(cfg.Usage.DBPath)
		if err != nil {
			return logx.Wrap(err, "failed to open usage store")
		}
		defer store.Close()
		opts.Store = store
	}
	if cfg.EventLog.Dir != "" {
		eventLog, err := stream.NewEventLog(cfg.EventLog.Dir)
		if err != nil {
			return logx.Wrap(err, "failed to open event log")
		}
		defer eventLog.Close()
		opts.Sink = eventLog
	}
	if metricsAddr != "" {
		go serveMetrics(metricsAddr)
	}

	orch, err := orchestrator.New(cfg, opts)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if chatID == "" {
		chatID = "chat-" + uuid.NewString()[:8]
	}
	profile := detectProfile()
	pretty := term.IsTerminal(int(os.Stdout.Fd()))
	if pretty {
		fmt.Printf("tuxpilot %s | chat %s | %s\n", version, chatID, profileLine(profile))
		fmt.Println("Type a question, or Ctrl-D to quit.")
	}

	return chatLoop(ctx, orch, chatID, tier, profile, pretty)
}

// chatLoop reads one user turn per line and runs the pipeline for each,
// carrying the history forward.
func chatLoop(ctx context.Context, orch *orchestrator.Orchestrator, chatID string, tier proto.Tier, profile *proto.SystemProfile, pretty bool) error {
	var history []proto.ChatMessage
	sessionID := "session-" + uuid.NewString()[:8]
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if pretty {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		history = append(history, proto.ChatMessage{
			Role:      proto.RoleUser,
			Content:   line,
			Timestamp: time.Now(),
		})

		events, err := orch.Run(ctx, &proto.OrchestratorContext{
			ChatID:         chatID,
			SessionID:      sessionID,
			Tier:           tier,
			SystemProfile:  profile,
			MessageHistory: history,
		})
		if err != nil {
			return err
		}

		assistant, ok := renderRun(events, pretty)
		if ok {
			history = append(history, assistant)
		}
	}
	return scanner.Err()
}

// renderRun consumes one run's events. It returns the finalized assistant
// message, or ok=false when the run ended in an error or was superseded.
func renderRun(events <-chan *proto.AgentEvent, pretty bool) (proto.ChatMessage, bool) {
	var text strings.Builder
	var done *proto.DonePayload

	for event := range events {
		if pretty {
			renderPretty(event)
		} else {
			line, err := event.MarshalWire()
			if err != nil {
				logx.Warnf("failed to serialize event: %v", err)
				continue
			}
			fmt.Println(string(line))
		}
		if event.Type == proto.EventMessageDone {
			done = event.Done
		}
		if event.Type == proto.EventMessageChunk {
			text.WriteString(event.Chunk.Content)
		}
	}

	if done == nil {
		return proto.ChatMessage{}, false
	}
	return proto.ChatMessage{
		Role:      proto.RoleAssistant,
		Content:   text.String(),
		Citations: done.Citations,
		Commands:  done.Commands,
		Timestamp: time.Now(),
	}, true
}

func renderPretty(event *proto.AgentEvent) {
	switch event.Type {
	case proto.EventAgentSpawn:
		fmt.Fprintf(os.Stderr, "  [%s] %s\n", event.Spawn.Name, event.Spawn.Task)
	case proto.EventAgentStatus:
		if event.Status.Status == proto.StatusError {
			fmt.Fprintf(os.Stderr, "  [%s] failed\n", event.Status.AgentID)
		}
	case proto.EventAgentTool:
		if event.Tool.Status == proto.ToolDone {
			fmt.Fprintf(os.Stderr, "  [tool] %s (%dms)\n", event.Tool.Tool, event.Tool.DurationMs)
		}
	case proto.EventAgentResult:
		fmt.Fprintf(os.Stderr, "  [done] %s\n", event.Result.Summary)
	case proto.EventMessageChunk:
		fmt.Print(event.Chunk.Content)
	case proto.EventMessageDone:
		fmt.Println()
		if len(event.Done.Commands) > 0 {
			fmt.Println("\nProposed commands:")
			for _, cmd := range event.Done.Commands {
				fmt.Printf("  $ %s   [%s/%s]\n", cmd.Command, cmd.PrivilegeLevel, cmd.Risk)
			}
		}
		fmt.Fprintf(os.Stderr, "  (%d tokens)\n", event.Done.TotalTokensUsed)
	case proto.EventAgentQuestion:
		fmt.Printf("\n? %s\n", event.Question.Question)
		for i, opt := range event.Question.Options {
			fmt.Printf("  %d. %s\n", i+1, opt)
		}
	case proto.EventError:
		fmt.Fprintf(os.Stderr, "error: %s\n", event.Error.Message)
	case proto.EventAgentThinking, proto.EventSystemDiscovery:
		// Not rendered in terminal mode.
	}
}

// loadSecrets decrypts the secrets file when present, prompting for the
// password on a TTY. Without a TTY the environment supplies API keys.
func loadSecrets(configDir string) error {
	if !config.SecretsFileExists(configDir) {
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		logx.Infof("secrets file present but stdin is not a TTY; using environment keys")
		return nil
	}
	password, err := promptPassword("Secrets password: ")
	if err != nil {
		return err
	}
	secrets, err := config.DecryptSecretsFile(configDir, password)
	if err != nil {
		return logx.Wrap(err, "failed to decrypt secrets")
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}

// runEncryptSecrets interactively gathers API keys and writes the encrypted
// secrets file.
func runEncryptSecrets(configDir string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("secrets encryption requires a terminal")
	}

	secrets := make(map[string]string)
	for _, name := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"} {
		value, err := promptPassword(fmt.Sprintf("%s (empty to skip): ", name))
		if err != nil {
			return err
		}
		if value != "" {
			secrets[name] = value
		}
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no keys entered")
	}

	password, err := promptPassword("Encryption password: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	if err := config.EncryptSecretsFile(configDir, password, secrets); err != nil {
		return err
	}
	fmt.Printf("Encrypted %d key(s) into %s\n", len(secrets), configDir)
	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// printStats queries a Prometheus server that scrapes this process and
// prints per-stage token and cost totals.
func printStats(prometheusURL string) error {
	query, err := metrics.NewQueryService(prometheusURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	counts, err := query.RunCounts(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Runs by status:")
	for status, count := range counts {
		fmt.Printf("  %-10s %d\n", status, count)
	}

	fmt.Println("\nPer-stage totals:")
	for _, agentType := range []proto.AgentType{
		proto.AgentResearch, proto.AgentPlanner, proto.AgentValidator,
		proto.AgentSynthesizer, proto.AgentCurious,
	} {
		totals, err := query.StageTotalsFor(ctx, string(agentType))
		if err != nil {
			return err
		}
		fmt.Printf("  %-12s %8d prompt  %8d completion  $%.4f\n",
			agentType, totals.PromptTokens, totals.CompletionTokens, totals.TotalCostUSD)
	}
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logx.Infof("metrics listening on %s", addr)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil {
		logx.Errorf("metrics server stopped: %v", err)
	}
}

func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "tuxpilot")
	}
	return ".tuxpilot"
}
