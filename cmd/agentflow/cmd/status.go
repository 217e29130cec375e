package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/askorupski/agentflow/internal/lane"
	"github.com/askorupski/agentflow/internal/statusfile"
)

var statusCmd = &cobra.Command{
	Use:   "status [lane]",
	Short: "Show the last exported control plane snapshot",
	Long: `Display the most recent status snapshot written by a running
'agentflow serve' (or left behind by one that stopped). With a lane
argument, only that lane is shown; the name is matched fuzzily, so
'crit' resolves to the critical lane.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var statusJSON bool

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
}

func runStatus(_ *cobra.Command, args []string) error {
	path := viper.GetString("status_file.path")
	if path == "" {
		path = ".agentflow/status.json"
	}

	status, err := statusfile.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No status snapshot found. Is 'agentflow serve' running with status_file.enabled?")
			return nil
		}
		return err
	}

	if len(args) == 1 {
		name, ok := resolveLaneName(args[0], status.Lanes.Lanes)
		if !ok {
			return fmt.Errorf("no lane matches %q", args[0])
		}
		return printLane(status.Lanes.Lanes[name])
	}

	if statusJSON {
		return outputJSON(status)
	}

	fmt.Printf("Snapshot: %s\n\n", status.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LANE\tOCCUPANCY\tWAITING\tMAX")
	fmt.Fprintln(w, "----\t---------\t-------\t---")
	for _, st := range sortedLanes(status.Lanes.Lanes) {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", st.Lane, st.Occupancy, st.Waiting, st.MaxConcurrent)
	}
	w.Flush()

	fmt.Println()
	fmt.Printf("Admissions:   %d acquired, %d released, %d promoted, %d wait timeouts\n",
		status.Lanes.Acquired, status.Lanes.Released, status.Lanes.Promoted, status.Lanes.WaitTimeouts)
	fmt.Printf("Recovery:     %d executed, %.0f%% successful\n",
		status.Recovery.Total, status.Recovery.SuccessRate*100)
	fmt.Printf("Resolutions:  %d thinking levels resolved\n", status.Thinking.Total)
	fmt.Printf("Escalations:  %d analyses, %d upgrade recommendations\n",
		status.Escalation.Analyses, status.Escalation.Recommendations)
	fmt.Printf("Cache:        %d evictions\n", status.Cache.Evicted)

	return nil
}

// resolveLaneName matches a user-supplied name against the snapshot's
// lanes, exactly first and fuzzily otherwise.
func resolveLaneName(input string, lanes map[lane.Name]lane.Status) (lane.Name, bool) {
	if _, ok := lanes[lane.Name(input)]; ok {
		return lane.Name(input), true
	}

	names := make([]string, 0, len(lanes))
	for name := range lanes {
		names = append(names, string(name))
	}
	sort.Strings(names)

	matches := fuzzy.Find(input, names)
	if len(matches) == 0 {
		return "", false
	}
	return lane.Name(matches[0].Str), true
}

func printLane(st lane.Status) error {
	if statusJSON {
		return outputJSON(st)
	}

	fmt.Printf("Lane: %s (priority %d)\n", st.Lane, st.Priority)
	fmt.Printf("Occupancy: %d/%d, %d waiting\n", st.Occupancy, st.MaxConcurrent, st.Waiting)
	if len(st.Occupants) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "AGENT\tTASK\tSTARTED")
		for _, occ := range st.Occupants {
			task := occ.TaskID
			if task == "" {
				task = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", occ.AgentID, task, occ.StartedAt.Local().Format("15:04:05"))
		}
		w.Flush()
	}
	return nil
}

func sortedLanes(lanes map[lane.Name]lane.Status) []lane.Status {
	out := make([]lane.Status, 0, len(lanes))
	for _, st := range lanes {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
