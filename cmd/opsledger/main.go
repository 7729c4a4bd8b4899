package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"opsledger/internal/adapter/sink"
	"opsledger/internal/adapter/store"
	"opsledger/internal/audit"
	"opsledger/internal/domain"
	"opsledger/internal/infra/config"
	"opsledger/internal/infra/logger"
	"opsledger/internal/infra/tracer"
	"opsledger/internal/usecase"
)

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--help", "-h", "help":
		showUsage()
	case "log":
		if err := runLog(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "log: %v\n", err)
			os.Exit(1)
		}
	case "verify":
		if err := runVerify(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "verify: %v\n", err)
			os.Exit(1)
		}
	case "monitor":
		if err := runMonitor(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "monitor: %v\n", err)
			os.Exit(1)
		}
	case "keygen":
		if err := runKeygen(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
			os.Exit(1)
		}
	case "task":
		if err := runTask(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "task: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'opsledger --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Print(`opsledger - tamper-evident engagement audit trail

Usage:
  opsledger log     -action <name> -authorization <ref> [-task <id>] [-result <json>]
  opsledger verify  [-file <records.jsonl>] [-engagement <id>]
  opsledger monitor
  opsledger keygen  -out <path-prefix>
  opsledger task    -type <type> -operator <id> -approved-by <id> -key <priv.key> [-ttl <seconds>]

Common flags:
  -config <path>    configuration file (default config.yaml)

Environment overrides use the OPSLEDGER_ prefix, e.g. OPSLEDGER_ENGAGEMENT_ID.
`)
}

// runtimeHandle bundles the process logger with its teardown.
type runtimeHandle struct {
	log   *slog.Logger
	close func()
}

// bootstrap loads config and constructs the logger and tracer.
func bootstrap(configPath string) (*config.Config, *runtimeHandle, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}

	shutdownTracer, err := tracer.Setup(context.Background(), cfg.Tracer)
	if err != nil {
		closeLog()
		return nil, nil, err
	}

	h := &runtimeHandle{
		log: log,
		close: func() {
			shutdownTracer(context.Background())
			closeLog()
		},
	}
	return cfg, h, nil
}

func runLog(args []string) error {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "configuration file")
	action := fs.String("action", "", "action performed (required)")
	authorization := fs.String("authorization", "", "approval reference (required)")
	taskID := fs.String("task", "", "task identifier")
	resultJSON := fs.String("result", "null", "result payload as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *action == "" || *authorization == "" {
		return fmt.Errorf("-action and -authorization are required")
	}

	var result any
	if err := json.Unmarshal([]byte(*resultJSON), &result); err != nil {
		return fmt.Errorf("parse -result: %w", err)
	}

	cfg, h, err := bootstrap(*configPath)
	if err != nil {
		return err
	}
	defer h.close()

	if cfg.Engagement.ID == "" || cfg.Engagement.Operator == "" {
		return fmt.Errorf("engagement.id and engagement.operator must be configured")
	}

	fileSink, err := sink.NewFileSink(cfg.Audit.LogPath)
	if err != nil {
		return err
	}
	defer fileSink.Close()

	recordStore, err := store.NewSQLiteRecordStore(cfg.Audit.DBPath)
	if err != nil {
		return err
	}
	defer recordStore.Close()

	// Resume the engagement's stored chain at its tip. A stored chain that
	// no longer verifies is refused rather than extended.
	session, err := usecase.ResumeSession(context.Background(), recordStore,
		cfg.Engagement.ID, cfg.Engagement.Operator, h.log, fileSink)
	if err != nil {
		return err
	}

	var tid *string
	if *taskID != "" {
		tid = taskID
	}
	rec, err := session.Record(context.Background(), *action, result, *authorization, tid)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "configuration file")
	file := fs.String("file", "", "JSONL record file to verify")
	engagement := fs.String("engagement", "", "stored engagement to verify")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*file == "") == (*engagement == "") {
		return fmt.Errorf("exactly one of -file or -engagement is required")
	}

	var records []map[string]any
	if *file != "" {
		var err error
		records, err = sink.ReadChain(*file)
		if err != nil {
			return err
		}
	} else {
		cfg, h, err := bootstrap(*configPath)
		if err != nil {
			return err
		}
		defer h.close()

		recordStore, err := store.NewSQLiteRecordStore(cfg.Audit.DBPath)
		if err != nil {
			return err
		}
		defer recordStore.Close()

		records, err = recordStore.Chain(context.Background(), *engagement)
		if err != nil {
			return err
		}
	}

	if idx := audit.FirstBreak(records); idx != -1 {
		fmt.Printf("INVALID: chain breaks at record %d of %d\n", idx+1, len(records))
		os.Exit(2)
	}
	fmt.Printf("OK: %d records, chain intact\n", len(records))
	return nil
}

func runMonitor(args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "configuration file")
	once := fs.Bool("once", false, "run a single sweep and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, h, err := bootstrap(*configPath)
	if err != nil {
		return err
	}
	defer h.close()

	recordStore, err := store.NewSQLiteRecordStore(cfg.Audit.DBPath)
	if err != nil {
		return err
	}
	defer recordStore.Close()

	monitor := usecase.NewIntegrityMonitor(recordStore, h.log, cfg.Monitor.Schedule)

	if *once {
		statuses, err := monitor.Sweep(context.Background())
		if err != nil {
			return err
		}
		broken := 0
		for _, st := range statuses {
			if !st.Intact {
				broken++
			}
		}
		if broken > 0 {
			return fmt.Errorf("%d of %d chains broken", broken, len(statuses))
		}
		fmt.Printf("OK: %d chains intact\n", len(statuses))
		return nil
	}

	if err := monitor.Start(); err != nil {
		return err
	}
	defer monitor.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	h.log.Info("shutting down")
	return nil
}

func runKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	out := fs.String("out", "task", "output path prefix for <prefix>.key and <prefix>.pub")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pub, priv, err := domain.GenerateTaskKeyPair()
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out+".key", []byte(hex.EncodeToString(priv)), 0600); err != nil {
		return err
	}
	if err := os.WriteFile(*out+".pub", []byte(hex.EncodeToString(pub)), 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s.key and %s.pub\n", *out, *out)
	return nil
}

func runTask(args []string) error {
	fs := flag.NewFlagSet("task", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "configuration file")
	taskType := fs.String("type", "", "task type (required)")
	operator := fs.String("operator", "", "operator identity (required)")
	approvedBy := fs.String("approved-by", "", "approver identity (required)")
	keyPath := fs.String("key", "", "hex-encoded Ed25519 private key file (required)")
	ttl := fs.Int("ttl", 600, "task TTL in seconds")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *taskType == "" || *operator == "" || *approvedBy == "" || *keyPath == "" {
		return fmt.Errorf("-type, -operator, -approved-by and -key are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	keyHex, err := os.ReadFile(*keyPath)
	if err != nil {
		return err
	}
	priv, err := hex.DecodeString(strings.TrimSpace(string(keyHex)))
	if err != nil {
		return fmt.Errorf("decode private key: %w", err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		return fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	privKey := ed25519.PrivateKey(priv)
	pubKey := privKey.Public().(ed25519.PublicKey)

	now := time.Now().UTC()
	task := domain.Task{
		ID:         domain.NewTaskID(now),
		Engagement: cfg.Engagement.ID,
		Type:       domain.TaskType(*taskType),
		CreatedAt:  now,
		TTLSeconds: *ttl,
		Operator:   *operator,
		ApprovedBy: *approvedBy,
		State:      domain.TaskStateApproved,
	}

	signed, err := domain.SignTask(task, privKey, pubKey)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(signed, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
