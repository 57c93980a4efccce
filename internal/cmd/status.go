package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/hibernaut/hibernaut/internal/config"
)

var (
	statusHost   string
	statusAPIKey string
)

type serviceStatus struct {
	Name         string    `json:"name"`
	Hosts        []string  `json:"hosts"`
	State        string    `json:"state"`
	StateSince   time.Time `json:"state_since"`
	LastActivity time.Time `json:"last_activity"`
	InFlight     int64     `json:"in_flight"`
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Poll a running hibernaut instance's dashboard API and print site states",
		RunE: func(c *cobra.Command, args []string) error {
			return runStatus(c)
		},
	}
	cmd.Flags().StringVar(&statusHost, "host", "", "dashboard host:port to poll (defaults to 127.0.0.1:<hibernator_port> from --config)")
	cmd.Flags().StringVar(&statusAPIKey, "api-key", "", "raw API key to send as x-api-key, if the running instance requires one")
	return cmd
}

func runStatus(c *cobra.Command) error {
	host := statusHost
	if host == "" {
		cfg, err := config.Load(configPath, nil)
		if err != nil {
			return fmt.Errorf("status: resolving dashboard host from %s: %w", configPath, err)
		}
		host = fmt.Sprintf("127.0.0.1:%d", cfg.HibernatorPort)
	}

	req, err := http.NewRequestWithContext(c.Context(), http.MethodGet, "http://"+host+"/hibernator-api/services", nil)
	if err != nil {
		return err
	}
	if statusAPIKey != "" {
		req.Header.Set("x-api-key", statusAPIKey)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("status: contacting %s: %w", host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status: dashboard returned %s", resp.Status)
	}

	var services []serviceStatus
	if err := json.NewDecoder(resp.Body).Decode(&services); err != nil {
		return fmt.Errorf("status: decoding response: %w", err)
	}

	tableData := [][]string{{"SITE", "HOSTS", "STATE", "SINCE", "LAST ACTIVITY", "IN-FLIGHT"}}
	for _, s := range services {
		tableData = append(tableData, []string{
			s.Name,
			fmt.Sprint(s.Hosts),
			s.State,
			s.StateSince.Format(time.RFC3339),
			s.LastActivity.Format(time.RFC3339),
			fmt.Sprint(s.InFlight),
		})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(tableData).Srender()
	if err != nil {
		return err
	}
	fmt.Println(table)
	return nil
}
