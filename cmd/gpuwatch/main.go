package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/worldland/gpuwatch/internal/adapters/nvml"
	"github.com/worldland/gpuwatch/internal/adapters/smi"
	"github.com/worldland/gpuwatch/internal/api"
	"github.com/worldland/gpuwatch/internal/cli"
	"github.com/worldland/gpuwatch/internal/domain"
	"github.com/worldland/gpuwatch/internal/monitor"
	"github.com/worldland/gpuwatch/internal/notify"
	"github.com/worldland/gpuwatch/internal/runner"
	"github.com/worldland/gpuwatch/internal/setup"
)

var errNoGPUProvider = errors.New("no GPU provider available (NVML failed and nvidia-smi not usable)")

// options is everything the command line controls
type options struct {
	monitor monitor.Config
	mail    notify.MailConfig

	runner     string
	image      string
	webhookURL string
	statusAddr string
	mockGPUs   string
}

func parseFlags(args []string, scriptPath string, stderr io.Writer) (*options, error) {
	opts := &options{
		monitor: monitor.DefaultConfig(),
		mail:    notify.DefaultMailConfig(),
	}
	opts.monitor.ScriptPath = scriptPath

	fs := flag.NewFlagSet("gpuwatch", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var intervalSec, timeoutSec int
	fs.IntVar(&opts.monitor.RequiredFreeGPUs, "free_gpu_num", opts.monitor.RequiredFreeGPUs, "Number of free GPUs required")
	fs.Uint64Var(&opts.monitor.MemoryThresholdMB, "gpu_mem_thresh", opts.monitor.MemoryThresholdMB, "GPU memory threshold in MB")
	fs.IntVar(&intervalSec, "monitor_interval", int(opts.monitor.PollInterval.Seconds()), "Monitoring interval in seconds")
	fs.StringVar(&opts.mail.Username, "user_email", "", "Email address for notifications (required)")
	fs.StringVar(&opts.mail.Password, "user_email_password", "", "Email app password (required)")
	fs.StringVar(&opts.monitor.HostLabel, "host_name", opts.monitor.HostLabel, "Host name for notifications")
	fs.BoolVar(&opts.monitor.TestMode, "test", false, "Run in test mode (no script execution)")
	fs.IntVar(&timeoutSec, "script_timeout", int(opts.monitor.ScriptTimeout.Seconds()), "Script timeout in seconds (0 = no limit)")
	fs.StringVar(&opts.mail.Host, "smtp_host", opts.mail.Host, "SMTP submission host")
	fs.IntVar(&opts.mail.Port, "smtp_port", opts.mail.Port, "SMTP submission port (STARTTLS)")
	fs.StringVar(&opts.runner, "runner", "shell", "Where the script runs: shell or docker")
	fs.StringVar(&opts.image, "image", "", "Container image for the docker runner")
	fs.StringVar(&opts.webhookURL, "webhook_url", "", "Also POST every notification as JSON to this URL")
	fs.StringVar(&opts.statusAddr, "status_addr", "", "Serve /health and /status on this address (e.g. :9400)")
	fs.StringVar(&opts.mockGPUs, "mock_gpus", "", "Test mode only: fake GPUs as used/total MB pairs, e.g. 500/8000,100/8000")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts.monitor.PollInterval = time.Duration(intervalSec) * time.Second
	opts.monitor.ScriptTimeout = time.Duration(timeoutSec) * time.Second
	opts.mail.To = opts.mail.Username

	var errs []error
	if opts.mail.Username == "" {
		errs = append(errs, errors.New("--user_email is required"))
	}
	if opts.mail.Password == "" {
		errs = append(errs, errors.New("--user_email_password is required"))
	}
	switch opts.runner {
	case "shell":
	case "docker":
		if opts.image == "" {
			errs = append(errs, errors.New("--image is required with --runner docker"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown runner %q (want shell or docker)", opts.runner))
	}
	if opts.mockGPUs != "" && !opts.monitor.TestMode {
		errs = append(errs, errors.New("--mock_gpus requires --test"))
	}
	if err := opts.monitor.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return opts, nil
}

// parseMockGPUs turns "500/8000,100/8000" into GPUs 0 and 1
func parseMockGPUs(raw string) ([]domain.GPUStatus, error) {
	var gpus []domain.GPUStatus
	for i, part := range strings.Split(raw, ",") {
		used, total, ok := strings.Cut(strings.TrimSpace(part), "/")
		if !ok {
			return nil, fmt.Errorf("invalid mock GPU %q: want used/total", part)
		}
		usedMB, err := strconv.ParseUint(used, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid mock GPU %q: %w", part, err)
		}
		totalMB, err := strconv.ParseUint(total, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid mock GPU %q: %w", part, err)
		}
		gpus = append(gpus, domain.GPUStatus{
			ID:            i,
			Name:          "Mock GPU",
			MemoryUsedMB:  usedMB,
			MemoryTotalMB: totalMB,
		})
	}
	return gpus, nil
}

// selectProvider tries NVML first, then nvidia-smi
func selectProvider(opts *options) (domain.GPUProvider, error) {
	if opts.mockGPUs != "" {
		gpus, err := parseMockGPUs(opts.mockGPUs)
		if err != nil {
			return nil, err
		}
		log.Printf("Using mock GPU provider with %d GPU(s)", len(gpus))
		return nvml.NewMockGPUProvider(gpus), nil
	}

	realNVML := nvml.NewNVMLProvider()
	err := realNVML.Init()
	if err == nil {
		return realNVML, nil
	}
	log.Printf("Warning: NVML not available (%v), trying nvidia-smi", err)

	if smi.Available() {
		p := smi.NewProvider()
		if err := p.Init(); err != nil {
			log.Printf("Warning: %v", err)
		} else {
			return p, nil
		}
	}
	return nil, errNoGPUProvider
}

func buildNotifier(opts *options, sessionID string) (notify.Notifier, error) {
	mailer, err := notify.NewMailNotifier(opts.mail, opts.monitor.HostLabel)
	if err != nil {
		return nil, err
	}
	if opts.webhookURL == "" {
		return mailer, nil
	}
	return notify.Multi{mailer, notify.NewWebhookNotifier(opts.webhookURL, opts.monitor.HostLabel, sessionID)}, nil
}

func buildRunner(opts *options) (runner.Runner, func() error, error) {
	if opts.runner == "docker" {
		r, err := runner.NewDockerRunner(opts.image)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	}
	return runner.NewShellRunner(), func() error { return nil }, nil
}

func printBanner(w io.Writer, opts *options, sessionID string) {
	cli.PrintHeader(w, "GPU Monitor")
	cli.PrintField(w, "Host", opts.monitor.HostLabel)
	cli.PrintField(w, "Session", sessionID)
	cli.PrintField(w, "Required free", strconv.Itoa(opts.monitor.RequiredFreeGPUs))
	cli.PrintField(w, "Threshold", fmt.Sprintf("%d MB", opts.monitor.MemoryThresholdMB))
	cli.PrintField(w, "Interval", opts.monitor.PollInterval.String())
	if opts.monitor.TestMode {
		cli.PrintField(w, "Mode", "test (script will not run)")
		return
	}
	timeout := "none"
	if opts.monitor.ScriptTimeout > 0 {
		timeout = opts.monitor.ScriptTimeout.String()
	}
	cli.PrintField(w, "Script", opts.monitor.ScriptPath)
	cli.PrintField(w, "Runner", opts.runner)
	cli.PrintField(w, "Timeout", timeout)
}

// preflight returns a non-zero exit code when the script or a required tool
// is missing. Test mode never runs the script, so it skips the checks.
func preflight(opts *options, scriptPath string, stderr io.Writer) int {
	if opts.monitor.TestMode {
		return 0
	}
	pre := setup.RunPreflight(scriptPath, opts.runner == "docker")
	if !pre.ScriptFound {
		cli.PrintError(stderr, "Script not found at "+scriptPath)
		fmt.Fprintf(stderr, "Set %s environment variable\n", setup.ScriptPathEnv)
		return 1
	}
	if missing := pre.MissingComponents(); len(missing) > 0 {
		pre.PrintStatus(stderr)
		cli.PrintError(stderr, "missing required components: "+strings.Join(missing, ", "))
		return 1
	}
	return 0
}

func run(args []string, stdout, stderr io.Writer) int {
	scriptPath := setup.ResolveScriptPath()

	opts, err := parseFlags(args, scriptPath, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	if code := preflight(opts, scriptPath, stderr); code != 0 {
		return code
	}

	provider, err := selectProvider(opts)
	if err != nil {
		log.Printf("Failed to initialize GPU provider: %v", err)
		return 1
	}
	defer provider.Shutdown()

	sessionID := uuid.NewString()

	notifier, err := buildNotifier(opts, sessionID)
	if err != nil {
		log.Printf("Failed to configure notifications: %v", err)
		return 1
	}

	jobRunner, closeRunner, err := buildRunner(opts)
	if err != nil {
		log.Printf("Failed to configure runner: %v", err)
		return 1
	}
	defer closeRunner()

	executor := monitor.NewExecutor(opts.monitor, jobRunner, notifier, sessionID)
	mon := monitor.New(opts.monitor, provider, executor, notifier, sessionID)

	printBanner(stdout, opts, sessionID)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var server *http.Server
	if opts.statusAddr != "" {
		server = &http.Server{
			Addr:              opts.statusAddr,
			Handler:           api.NewStatusHandler(mon).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("Starting status API on %s", opts.statusAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("Status API error: %v", err)
			}
		}()
	}

	runErr := mon.Run(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Status API shutdown error: %v", err)
		}
	}

	if runErr != nil {
		log.Printf("Monitor error: %v", runErr)
		return 1
	}
	log.Println("Shutdown complete")
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
