package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"trident/internal/hostconfig"
	"trident/internal/storagegraph"
)

var validateRemote bool

var validateCmd = &cobra.Command{
	Use:   "validate <host-config.yaml>",
	Short: "Validate a host configuration, offline or via the daemon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hc, err := loadHostConfig(args[0])
		if err != nil {
			return err
		}

		if validateRemote {
			if err := remoteValidate(hc); err != nil {
				color.New(color.FgRed).Fprintln(os.Stderr, "invalid")
				return err
			}
		} else if _, err := storagegraph.Build(hc); err != nil {
			color.New(color.FgRed).Fprintln(os.Stderr, "invalid")
			return err
		}
		color.New(color.FgGreen).Println("valid")
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateRemote, "remote", false, "Validate via the running daemon instead of locally")
	rootCmd.AddCommand(validateCmd)
}

func remoteValidate(hc *hostconfig.HostConfiguration) error {
	body, err := json.Marshal(hc)
	if err != nil {
		return err
	}
	resp, err := client().Post(daemonURL("validateHostConfiguration"), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to reach daemon at %q: %w", socketPath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("daemon rejected configuration: %s", e.Error)
	}
	return nil
}

func loadHostConfig(path string) (*hostconfig.HostConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read host configuration %q: %w", path, err)
	}
	return hostconfig.ParseYAML(data)
}
