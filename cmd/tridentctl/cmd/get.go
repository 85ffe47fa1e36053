package cmd

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Query the running daemon's read-side state",
}

func init() {
	for name, rpc := range map[string]string{
		"state":             "getServicingState",
		"provisioned":       "getProvisionedConfig",
		"servicing-config":  "getServicingConfig",
		"last-error":        "getLastError",
	} {
		rpc := rpc
		getCmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: "Fetch " + rpc,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return unaryGet(rpc)
			},
		})
	}

	activeVolume := &cobra.Command{
		Use:   "active-volume <mount-point> <volume-a-path> <volume-b-path>",
		Short: "Determine which side of an A/B pair is currently booted",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return unaryGet(fmt.Sprintf("getActiveVolume?mountPoint=%s&volumeAPath=%s&volumeBPath=%s",
				args[0], args[1], args[2]))
		},
	}
	getCmd.AddCommand(activeVolume)
	rootCmd.AddCommand(getCmd)
}

func unaryGet(rpc string) error {
	resp, err := client().Get(daemonURL(rpc))
	if err != nil {
		return fmt.Errorf("failed to reach daemon at %q: %w", socketPath, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Print(string(body))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	return nil
}
