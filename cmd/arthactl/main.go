// Command arthactl is a CLI client for a running artha-node's HTTP admin
// surface: submit and query transactions, look up blocks, read metrics.
// Grounded on rechain/cmd/rechainctl/main.go's cobra command-tree shape,
// adapted from its gRPC proto client calls to plain HTTP/JSON requests
// against internal/api.Server, since that surface (unlike the teacher's
// hand-maintained api/proto service) is what this node actually exposes.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var apiAddr string

func main() {
	rootCmd := &cobra.Command{
		Use:   "arthactl",
		Short: "CLI client for an artha-core node",
	}

	rootCmd.PersistentFlags().StringVar(&apiAddr, "api-addr", "http://localhost:1317", "node HTTP admin address")

	rootCmd.AddCommand(txCmd(), blockCmd(), metricsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func txCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Transaction operations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "submit [sender] [recipient] [amount]",
			Short: "Submit a transaction",
			Args:  cobra.ExactArgs(3),
			Run: func(cmd *cobra.Command, args []string) {
				var amount uint64
				if _, err := fmt.Sscanf(args[2], "%d", &amount); err != nil {
					log.Fatalf("invalid amount: %v", err)
				}
				body := map[string]interface{}{
					"sender":    args[0],
					"recipient": args[1],
					"amount":    amount,
				}
				printJSON(post(apiAddr+"/api/transaction", body))
			},
		},
		&cobra.Command{
			Use:   "get [id]",
			Short: "Get a transaction by ID",
			Args:  cobra.ExactArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				printJSON(get(apiAddr + "/api/transaction/" + args[0]))
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List queued transactions",
			Run: func(cmd *cobra.Command, args []string) {
				printJSON(get(apiAddr + "/api/transactions"))
			},
		},
	)

	return cmd
}

func blockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block",
		Short: "Block operations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get [height]",
			Short: "Get a block by height",
			Args:  cobra.ExactArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				printJSON(get(apiAddr + "/api/blocks/" + args[0]))
			},
		},
		&cobra.Command{
			Use:   "latest",
			Short: "Get the latest committed block",
			Run: func(cmd *cobra.Command, args []string) {
				printJSON(get(apiAddr + "/api/blocks/latest"))
			},
		},
	)

	return cmd
}

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Get node metrics",
		Run: func(cmd *cobra.Command, args []string) {
			printJSON(get(apiAddr + "/api/metrics"))
		},
	}
}

func get(url string) []byte {
	resp, err := http.Get(url)
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("failed to read response: %v", err)
	}
	return data
}

func post(url string, body map[string]interface{}) []byte {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("failed to marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("failed to read response: %v", err)
	}
	return data
}

func printJSON(raw []byte) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(string(pretty))
}
