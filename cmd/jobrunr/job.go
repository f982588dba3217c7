package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/akuafrica/jobrunr/internal/models"
	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage jobs",
}

var jobAddCmd = &cobra.Command{
	Use:   "add [command] [args...]",
	Short: "Enqueue a new job",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runJobAdd,
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE:  runJobList,
}

var jobShowCmd = &cobra.Command{
	Use:   "show [job-id]",
	Short: "Show job details",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobShow,
}

var jobLogCmd = &cobra.Command{
	Use:   "log [job-id]",
	Short: "Show job run output",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobLog,
}

var (
	jobName   string
	jobStatus string
)

func init() {
	jobCmd.AddCommand(jobAddCmd, jobListCmd, jobShowCmd, jobLogCmd)

	jobAddCmd.Flags().StringVar(&jobName, "name", "", "Job name (defaults to the command line)")
	jobAddCmd.Flags().SetInterspersed(false)

	jobListCmd.Flags().StringVar(&jobStatus, "status", "", "Filter by status (enqueued, processing, succeeded, failed)")
}

func runJobAdd(cmd *cobra.Command, args []string) error {
	name := jobName
	if name == "" {
		name = strings.Join(args, " ")
	}

	body := map[string]any{
		"name":    name,
		"command": args[0],
		"args":    args[1:],
	}
	resp, err := apiPost("/jobs", body)
	if err != nil {
		return err
	}

	var job models.Job
	if err := json.Unmarshal(resp, &job); err != nil {
		return err
	}
	fmt.Printf("Enqueued job: %s\n", job.ID)
	return nil
}

func runJobList(cmd *cobra.Command, args []string) error {
	path := "/jobs"
	if jobStatus != "" {
		path += "?status=" + url.QueryEscape(jobStatus)
	}

	var jobs []models.Job
	if err := apiGetJSON(path, &jobs); err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", truncateID(j.ID), j.Name, j.Status, j.CreatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runJobShow(cmd *cobra.Command, args []string) error {
	var job models.Job
	if err := apiGetJSON("/jobs/"+url.PathEscape(args[0]), &job); err != nil {
		return err
	}

	fmt.Printf("ID:         %s\n", job.ID)
	fmt.Printf("Name:       %s\n", job.Name)
	fmt.Printf("Command:    %s\n", strings.TrimSpace(job.Command+" "+strings.Join(job.Args, " ")))
	fmt.Printf("Status:     %s\n", job.Status)
	fmt.Printf("Created:    %s\n", job.CreatedAt.Local().Format(time.DateTime))
	if job.ProcessedBy != "" {
		fmt.Printf("Worker:     %s\n", job.ProcessedBy)
	}
	if job.ProcessedAt != nil {
		fmt.Printf("Processed:  %s\n", job.ProcessedAt.Local().Format(time.DateTime))
	}
	return nil
}

func runJobLog(cmd *cobra.Command, args []string) error {
	var runs []models.Run
	if err := apiGetJSON("/jobs/"+url.PathEscape(args[0])+"/runs", &runs); err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs yet")
		return nil
	}

	for _, r := range runs {
		if r.EndedAt.IsZero() {
			fmt.Printf("=== run %s (running since %s) ===\n", truncateID(r.ID), r.StartedAt.Local().Format(time.DateTime))
		} else {
			fmt.Printf("=== run %s (exit %d, %s) ===\n", truncateID(r.ID), r.ExitCode, r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond))
		}
		if r.Stdout != "" {
			fmt.Print(r.Stdout)
			if !strings.HasSuffix(r.Stdout, "\n") {
				fmt.Println()
			}
		}
		if r.Stderr != "" {
			fmt.Fprint(os.Stderr, r.Stderr)
			if !strings.HasSuffix(r.Stderr, "\n") {
				fmt.Fprintln(os.Stderr)
			}
		}
	}
	return nil
}
