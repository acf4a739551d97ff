package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/semindex/internal/config"
	"github.com/aman-cerp/semindex/internal/output"
	"github.com/aman-cerp/semindex/internal/store"
)

// checkStatus classifies one doctor check's outcome.
type checkStatus int

const (
	statusPass checkStatus = iota
	statusWarn
	statusFail
)

func (s checkStatus) String() string {
	switch s {
	case statusPass:
		return "pass"
	case statusWarn:
		return "warn"
	case statusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// checkResult is one doctor diagnostic's outcome.
type checkResult struct {
	Name     string      `json:"name"`
	Status   checkStatus `json:"-"`
	Message  string      `json:"message"`
	Required bool        `json:"required"`
}

// MarshalJSON renders Status as its string form for JSON output.
func (r checkResult) MarshalJSON() ([]byte, error) {
	type alias struct {
		Name     string `json:"name"`
		Status   string `json:"status"`
		Message  string `json:"message"`
		Required bool   `json:"required"`
	}
	return json.Marshal(alias{Name: r.Name, Status: r.Status.String(), Message: r.Message, Required: r.Required})
}

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool

	c := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the local semindex setup",
		Long: `doctor checks that semindex can operate in the current environment:

  - the configuration loads and validates
  - the base storage directory exists and is writable
  - at least one configured embedding provider reports itself ready

Provider reachability is a warning, not a failure: indexing can proceed
with a degraded provider set as long as one remains usable at run time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, jsonOutput)
		},
	}
	c.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return c
}

func runDoctor(cmd *cobra.Command, jsonOutput bool) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	root, err := config.FindProjectRoot(cwd)
	if err != nil {
		root = cwd
	}

	results := []checkResult{checkConfig(root)}
	results = append(results, checkBaseDir()...)
	results = append(results, checkProviders(ctx, root)...)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		printDoctorResults(cmd, results)
	}

	for _, r := range results {
		if r.Required && r.Status == statusFail {
			return &doctorError{message: "doctor found critical failures"}
		}
	}
	return nil
}

func checkConfig(root string) checkResult {
	_, err := config.Load(root)
	if err != nil {
		return checkResult{Name: "config", Status: statusFail, Message: err.Error(), Required: true}
	}
	return checkResult{Name: "config", Status: statusPass, Message: "loads and validates", Required: true}
}

func checkBaseDir() []checkResult {
	baseDir := store.DefaultBaseDir()
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return []checkResult{{Name: "storage", Status: statusFail, Message: err.Error(), Required: true}}
	}
	probe := filepath.Join(baseDir, ".doctor-write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return []checkResult{{Name: "storage", Status: statusFail, Message: fmt.Sprintf("%s is not writable: %v", baseDir, err), Required: true}}
	}
	_ = os.Remove(probe)
	return []checkResult{{Name: "storage", Status: statusPass, Message: baseDir, Required: true}}
}

func checkProviders(ctx context.Context, root string) []checkResult {
	cfg, err := config.Load(root)
	if err != nil {
		return nil
	}
	providers, err := cfg.BuildProviders()
	if err != nil {
		return []checkResult{{Name: "providers", Status: statusFail, Message: err.Error(), Required: false}}
	}
	if len(providers) == 0 {
		return []checkResult{{Name: "providers", Status: statusWarn, Message: "no providers configured", Required: false}}
	}

	results := make([]checkResult, 0, len(providers))
	anyReady := false
	for _, p := range providers {
		name := fmt.Sprintf("provider:%s", p.ID())
		if p.IsReady(ctx) {
			anyReady = true
			results = append(results, checkResult{Name: name, Status: statusPass, Message: "ready", Required: false})
		} else {
			results = append(results, checkResult{Name: name, Status: statusWarn, Message: "not ready", Required: false})
		}
	}
	if !anyReady {
		results = append(results, checkResult{Name: "providers", Status: statusFail, Message: "no configured provider is ready", Required: false})
	}
	return results
}

func printDoctorResults(cmd *cobra.Command, results []checkResult) {
	out := output.New(cmd.OutOrStdout())
	for _, r := range results {
		line := fmt.Sprintf("%-24s %s", r.Name, r.Message)
		switch r.Status {
		case statusPass:
			out.Success(line)
		case statusWarn:
			out.Warning(line)
		default:
			out.Error(line)
		}
	}
}

// doctorError marks a doctor run that found a required check failing.
type doctorError struct {
	message string
}

func (e *doctorError) Error() string { return e.message }
