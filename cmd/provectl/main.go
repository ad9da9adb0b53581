// Command provectl is an operator CLI for the proving broker's HTTP API,
// grounded on the Cobra command tree ChuLiYu/raft-recovery's internal/cli
// package builds (root command with a persistent --config flag, one
// buildXCommand func per subcommand).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"provingbroker/internal/config"
)

func main() {
	var configFile string
	var brokerURL string

	rootCmd := &cobra.Command{
		Use:   "provectl",
		Short: "Operate a running proving job broker",
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "optional YAML config overlay")
	rootCmd.PersistentFlags().StringVar(&brokerURL, "broker", "", "broker base URL (overrides config's http_addr)")

	rootCmd.AddCommand(buildEnqueueCommand(&brokerURL, &configFile))
	rootCmd.AddCommand(buildStatusCommand(&brokerURL, &configFile))
	rootCmd.AddCommand(buildCancelCommand(&brokerURL, &configFile))
	rootCmd.AddCommand(buildStatsCommand(&brokerURL, &configFile))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveBrokerURL prefers an explicit --broker flag, falling back to the
// same env/YAML-overlay config the broker process itself loads.
func resolveBrokerURL(brokerURL, configFile *string) (string, error) {
	if *brokerURL != "" {
		return *brokerURL, nil
	}
	cfg := config.Load()
	if err := config.ApplyOverlay(&cfg, *configFile); err != nil {
		return "", fmt.Errorf("config overlay: %w", err)
	}
	return "http://localhost" + cfg.HTTPAddr, nil
}

func buildEnqueueCommand(brokerURL, configFile *string) *cobra.Command {
	var id, class string
	var epoch uint64
	var payloadFile string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Submit a job to the broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := resolveBrokerURL(brokerURL, configFile)
			if err != nil {
				return err
			}
			var payload []byte
			if payloadFile != "" {
				payload, err = os.ReadFile(payloadFile)
				if err != nil {
					return fmt.Errorf("read payload file: %w", err)
				}
			}
			body, err := json.Marshal(map[string]any{
				"id": id, "class": class, "epoch": epoch, "payload": payload,
			})
			if err != nil {
				return err
			}
			resp, err := http.Post(base+"/v1/jobs", "application/json", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printResponse(resp)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "job id (required)")
	cmd.Flags().StringVar(&class, "class", "", "proof class (required)")
	cmd.Flags().Uint64Var(&epoch, "epoch", 0, "epoch / block number")
	cmd.Flags().StringVarP(&payloadFile, "file", "f", "", "path to a file containing the job's opaque payload")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("class")
	return cmd
}

func buildStatusCommand(brokerURL, configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Query a job's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := resolveBrokerURL(brokerURL, configFile)
			if err != nil {
				return err
			}
			resp, err := http.Get(base + "/v1/jobs/" + args[0])
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printResponse(resp)
		},
	}
	return cmd
}

func buildCancelCommand(brokerURL, configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := resolveBrokerURL(brokerURL, configFile)
			if err != nil {
				return err
			}
			resp, err := http.Post(base+"/v1/jobs/"+args[0]+"/cancel", "application/json", nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printResponse(resp)
		},
	}
	return cmd
}

func buildStatsCommand(brokerURL, configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Fetch the broker's Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := resolveBrokerURL(brokerURL, configFile)
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Get(base + "/metrics")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printResponse(resp)
		},
	}
	return cmd
}

func printResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("broker returned %s: %s", resp.Status, string(body))
	}
	fmt.Println(string(body))
	return nil
}
