package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var servicingOps = []string{
	"install", "installStage", "installFinalize",
	"update", "updateStage", "updateFinalize",
	"checkRoot", "commit", "streamImage", "rebuildRaid",
}

var cosiFile string

var serviceCmd = &cobra.Command{
	Use:       "service <operation> <host-config.yaml>",
	Short:     "Run a streaming servicing operation against the daemon",
	Args:      cobra.ExactArgs(2),
	ValidArgs: servicingOps,
	RunE: func(cmd *cobra.Command, args []string) error {
		op := args[0]
		known := false
		for _, o := range servicingOps {
			if o == op {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown servicing operation %q", op)
		}

		hc, err := loadHostConfig(args[1])
		if err != nil {
			return err
		}
		body, err := json.Marshal(map[string]interface{}{
			"hostConfiguration": hc,
			"cosiFile":          cosiFile,
		})
		if err != nil {
			return err
		}

		resp, err := client().Post(daemonURL(op), "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to reach daemon at %q: %w", socketPath, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			var e struct {
				Error string `json:"error"`
			}
			json.NewDecoder(resp.Body).Decode(&e)
			return fmt.Errorf("daemon rejected %s: %s", op, e.Error)
		}
		return consumeStream(resp)
	},
}

func init() {
	serviceCmd.Flags().StringVar(&cosiFile, "cosi", "", "Path (on the daemon host) to the COSI file to service from")
	rootCmd.AddCommand(serviceCmd)
}

// streamFrame mirrors the daemon's NDJSON frame shape.
type streamFrame struct {
	Type string `json:"type"`
	Log  *struct {
		Timestamp time.Time `json:"timestamp"`
		Level     int       `json:"level"`
		Target    string    `json:"target"`
		Module    string    `json:"module"`
		Message   string    `json:"message"`
	} `json:"log,omitempty"`
	Error *string `json:"error,omitempty"`
}

func consumeStream(resp *http.Response) error {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	warn := color.New(color.FgYellow)
	fail := color.New(color.FgRed)

	for scanner.Scan() {
		var frame streamFrame
		if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
			return fmt.Errorf("malformed stream frame: %w", err)
		}
		switch frame.Type {
		case "start":
			fmt.Fprintln(os.Stderr, "servicing started")
		case "log":
			if frame.Log == nil {
				continue
			}
			line := fmt.Sprintf("%s [%s/%s] %s",
				frame.Log.Timestamp.Format(time.RFC3339), frame.Log.Target, frame.Log.Module, frame.Log.Message)
			switch {
			case frame.Log.Level <= int(log.ErrorLevel):
				fail.Fprintln(os.Stderr, line)
			case frame.Log.Level == int(log.WarnLevel):
				warn.Fprintln(os.Stderr, line)
			default:
				fmt.Fprintln(os.Stderr, line)
			}
		case "finalStatus":
			if frame.Error != nil {
				fail.Fprintln(os.Stderr, "servicing failed")
				return fmt.Errorf("%s", *frame.Error)
			}
			color.New(color.FgGreen).Fprintln(os.Stderr, "servicing complete")
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream interrupted: %w", err)
	}
	return fmt.Errorf("stream ended without a final status")
}
