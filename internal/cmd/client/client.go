package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

func postJSON(baseURL, path string, body interface{}) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return http.Post(baseURL+path, "application/json", bytes.NewReader(b))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// NewExperimentCommand constructs the `experiment` command group.
func NewExperimentCommand(baseURL BaseURLFunc) *cobra.Command {
	expCmd := &cobra.Command{Use: "experiment", Short: "Experiment operations"}
	expCmd.AddCommand(
		newExperimentLoadCommand(baseURL),
		newExperimentListCommand(baseURL),
		newExperimentRemoveCommand(baseURL),
	)
	return expCmd
}

// newExperimentLoadCommand constructs the `experiment load` subcommand.
func newExperimentLoadCommand(baseURL BaseURLFunc) *cobra.Command {
	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Load experiment definitions from a JSON file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, _ := cmd.Flags().GetString("file")
			b, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			resp, err := http.Post(baseURL()+"/v1/experiments", "application/json", bytes.NewReader(b))
			if err != nil {
				return err
			}
			defer drain(resp)
			fmt.Fprintln(cmd.OutOrStdout(), "status:", resp.Status)
			return nil
		},
	}
	loadCmd.Flags().StringP("file", "f", "experiments.json", "Experiments JSON file")
	return loadCmd
}

// newExperimentListCommand constructs the `experiment list` subcommand.
func newExperimentListCommand(baseURL BaseURLFunc) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List experiments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			u := baseURL() + "/v1/experiments"
			if all {
				u += "?all=true"
			}
			resp, err := http.Get(u)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
			return err
		},
	}
	listCmd.Flags().Bool("all", false, "Include inactive experiments")
	return listCmd
}

// newExperimentRemoveCommand constructs the `experiment remove` subcommand.
func newExperimentRemoveCommand(baseURL BaseURLFunc) *cobra.Command {
	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove an experiment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodDelete,
				baseURL()+"/v1/experiments/"+url.PathEscape(id), nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer drain(resp)
			fmt.Fprintln(cmd.OutOrStdout(), "status:", resp.Status)
			return nil
		},
	}
	removeCmd.Flags().String("id", "", "Experiment id")
	return removeCmd
}

// NewAssignCommand constructs the `assign` command.
func NewAssignCommand(baseURL BaseURLFunc) *cobra.Command {
	assignCmd := &cobra.Command{
		Use:   "assign",
		Short: "Resolve a variant assignment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exp, _ := cmd.Flags().GetString("experiment")
			subj, _ := cmd.Flags().GetString("subject")
			userType, _ := cmd.Flags().GetString("user-type")
			location, _ := cmd.Flags().GetString("location")
			rolloutKey, _ := cmd.Flags().GetString("rollout-key")
			if exp == "" || subj == "" {
				return fmt.Errorf("--experiment and --subject are required")
			}
			body := map[string]interface{}{
				"experimentId": exp,
				"subjectId":    subj,
				"context": map[string]string{
					"userType":   userType,
					"location":   location,
					"rolloutKey": rolloutKey,
				},
			}
			resp, err := postJSON(baseURL(), "/v1/assign", body)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusNoContent {
				fmt.Fprintln(cmd.OutOrStdout(), "no assignment")
				return nil
			}
			_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
			return err
		},
	}
	assignCmd.Flags().StringP("experiment", "e", "", "Experiment id")
	assignCmd.Flags().StringP("subject", "s", "", "Subject id")
	assignCmd.Flags().String("user-type", "", "Targeting user type")
	assignCmd.Flags().String("location", "", "Targeting location")
	assignCmd.Flags().String("rollout-key", "", "Rollout bucketing key (defaults to subject)")
	return assignCmd
}

// NewTrackCommand constructs the `track` command.
func NewTrackCommand(baseURL BaseURLFunc) *cobra.Command {
	trackCmd := &cobra.Command{
		Use:   "track",
		Short: "Record an exposure or conversion event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exp, _ := cmd.Flags().GetString("experiment")
			variant, _ := cmd.Flags().GetString("variant")
			session, _ := cmd.Flags().GetString("session")
			event, _ := cmd.Flags().GetString("event")
			value, _ := cmd.Flags().GetFloat64("value")
			body := map[string]interface{}{
				"experimentId": exp,
				"variantId":    variant,
				"sessionId":    session,
				"event":        event,
				"value":        value,
				"timestamp":    time.Now().Format(time.RFC3339Nano),
			}
			resp, err := postJSON(baseURL(), "/v1/track", body)
			if err != nil {
				return err
			}
			defer drain(resp)
			fmt.Fprintln(cmd.OutOrStdout(), "status:", resp.Status)
			return nil
		},
	}
	trackCmd.Flags().StringP("experiment", "e", "", "Experiment id")
	trackCmd.Flags().String("variant", "", "Variant id")
	trackCmd.Flags().String("session", "", "Session id")
	trackCmd.Flags().String("event", "conversion", "Event name")
	trackCmd.Flags().Float64("value", 0, "Event value")
	return trackCmd
}

// NewResultsCommand constructs the `results` command.
func NewResultsCommand(baseURL BaseURLFunc) *cobra.Command {
	resultsCmd := &cobra.Command{
		Use:   "results",
		Short: "Dump raw tracked events for an experiment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exp, _ := cmd.Flags().GetString("experiment")
			if exp == "" {
				return fmt.Errorf("--experiment is required")
			}
			resp, err := http.Get(baseURL() + "/v1/results/" + url.PathEscape(exp))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
			return err
		},
	}
	resultsCmd.Flags().StringP("experiment", "e", "", "Experiment id")
	return resultsCmd
}
