package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shoma-dev/toolsched/internal/catchup"
	"github.com/shoma-dev/toolsched/internal/config"
	"github.com/shoma-dev/toolsched/internal/domain"
	"github.com/shoma-dev/toolsched/internal/guard"
	"github.com/shoma-dev/toolsched/internal/history"
	"github.com/shoma-dev/toolsched/internal/runstore"
	"github.com/shoma-dev/toolsched/internal/scheduler"
	"github.com/shoma-dev/toolsched/internal/schedstore"
	"github.com/shoma-dev/toolsched/internal/terminal"
)

var (
	regInput     scheduler.ScheduleInput
	runInput     scheduler.ScheduleInput
	runsSchedule string
	runsTool     string
	runsPhase    string
	runsLimit    int
	servePort    int
)

var (
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func init() {
	// register command
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new schedule",
		RunE:  runRegister,
	}
	addScheduleFlags(registerCmd, &regInput)
	rootCmd.AddCommand(registerCmd)

	// update command
	updateCmd := &cobra.Command{
		Use:   "update SCHEDULE_ID",
		Short: "Update an existing schedule",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpdate,
	}
	addScheduleFlags(updateCmd, &regInput)
	rootCmd.AddCommand(updateCmd)

	// unregister command
	unregisterCmd := &cobra.Command{
		Use:   "unregister TOOL SCHEDULE_ID",
		Short: "Remove a schedule",
		Args:  cobra.ExactArgs(2),
		RunE:  runUnregister,
	}
	rootCmd.AddCommand(unregisterCmd)

	// list command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered schedules",
		RunE:  runList,
	}
	rootCmd.AddCommand(listCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history SCHEDULE_ID",
		Short: "Show a schedule's recent execution history",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}
	rootCmd.AddCommand(historyCmd)

	// status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show which tools are currently running",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	// run command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a tool once, monitoring it to completion",
		Long: `Run launches the tool immediately (or at --time today) and watches
the session until it finishes, is cancelled or hits a rate limit.`,
		RunE: runNow,
	}
	runCmd.Flags().StringVar(&runInput.Tool, "tool", "claude", "tool to run (claude, codex, gemini)")
	runCmd.Flags().StringVar(&runInput.ExecutionTime, "time", "", "time of day HH:MM to wait for (empty = now)")
	runCmd.Flags().StringVar(&runInput.TargetDirectory, "dir", "", "target working directory")
	runCmd.Flags().StringVar(&runInput.CommandArgs, "args", "", "command passed to the tool")
	runCmd.Flags().StringVar(&runInput.Title, "title", "", "display title")
	rootCmd.AddCommand(runCmd)

	// stop command
	stopCmd := &cobra.Command{
		Use:   "stop TOOL",
		Short: "Request cancellation of a running execution",
		Args:  cobra.ExactArgs(1),
		RunE:  runStop,
	}
	rootCmd.AddCommand(stopCmd)

	// sweep command
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Detect and catch up executions missed while asleep or off",
		RunE:  runSweep,
	}
	rootCmd.AddCommand(sweepCmd)

	// runs command
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded execution runs",
		RunE:  runRuns,
	}
	runsCmd.Flags().StringVar(&runsSchedule, "schedule", "", "filter by schedule ID")
	runsCmd.Flags().StringVar(&runsTool, "tool", "", "filter by tool")
	runsCmd.Flags().StringVar(&runsPhase, "phase", "", "filter by final phase")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum rows")
	rootCmd.AddCommand(runsCmd)

	// import command
	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Register schedules in bulk from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	rootCmd.AddCommand(importCmd)

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduling daemon with the web API",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func addScheduleFlags(cmd *cobra.Command, in *scheduler.ScheduleInput) {
	cmd.Flags().StringVar(&in.Tool, "tool", "claude", "tool to schedule (claude, codex, gemini)")
	cmd.Flags().StringVar(&in.ExecutionTime, "time", "", "execution time of day HH:MM")
	cmd.Flags().StringVar(&in.Type, "type", "daily", "schedule type (daily, weekly, interval, once)")
	cmd.Flags().StringVar(&in.StartDate, "start-date", "", "start date YYYY-MM-DD (weekly, interval, once)")
	cmd.Flags().IntVar(&in.IntervalDays, "interval-days", 0, "days between runs (interval)")
	cmd.Flags().StringVar(&in.TargetDirectory, "dir", "", "target working directory")
	cmd.Flags().StringVar(&in.CommandArgs, "args", "", "command passed to the tool")
	cmd.Flags().StringVar(&in.Title, "title", "", "display title")
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithLocalFallback(configPath)
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// scriptsDir derives the launch-script directory from the schedules dir
func scriptsDir(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.General.SchedulesDir), "scripts")
}

// newService builds the engine with its file-backed stores. The run
// store is optional; commands that only read schedules skip it.
func newService(cfg *config.Config, runs *runstore.Store) *scheduler.Service {
	store := schedstore.New(cfg.General.SchedulesDir, cfg.General.LogDir, scriptsDir(cfg))
	journal := history.New(cfg.General.HistoryPath)
	g := guard.New()

	opts := []scheduler.Option{}
	if runs != nil {
		opts = append(opts, scheduler.WithRunStore(runs))
	}
	return scheduler.NewService(cfg, store, journal, g, terminal.NewITerm(), newLogger(), opts...)
}

func printResult(res scheduler.ScheduleResult) error {
	if !res.Success {
		return fmt.Errorf("%s", res.Message)
	}
	if res.ScheduleID != "" {
		fmt.Printf("%s (%s)\n", res.Message, res.ScheduleID)
	} else {
		fmt.Println(res.Message)
	}
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return printResult(newService(cfg, nil).RegisterSchedule(regInput))
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return printResult(newService(cfg, nil).UpdateSchedule(args[0], regInput))
}

func runUnregister(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tool, err := domain.ParseTool(args[0])
	if err != nil {
		return err
	}
	return printResult(newService(cfg, nil).UnregisterSchedule(tool, args[1]))
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	schedules, err := newService(cfg, nil).ListSchedules()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTOOL\tTYPE\tTIME\tDIRECTORY\tTITLE")
	for _, s := range schedules {
		title := s.Title
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Tool, s.Type, s.ExecutionTime, s.TargetDirectory, title)
	}
	w.Flush()

	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	entries, err := newService(cfg, nil).ListHistory(args[0])
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No history for this schedule")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tTOOL\tSTATUS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Tool, e.Status)
	}
	w.Flush()

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	term := terminal.NewITerm()
	if st, err := term.Probe(); err == nil {
		state := "not installed"
		switch {
		case st.Running:
			state = runningStyle.Render("running")
		case st.Installed:
			state = idleStyle.Render("installed, not running")
		}
		fmt.Printf("terminal: %s\n\n", state)
	}

	// running state lives in the serve daemon's guard; without a
	// reachable daemon only the on-disk schedules are known
	if status, err := newDaemonClient(cfg).status(); err == nil {
		for _, tool := range domain.Tools() {
			badge := idleStyle.Render("idle")
			if status.Running[string(tool)] {
				badge = runningStyle.Render("running")
			}
			fmt.Printf("%-8s %s\n", tool, badge)
		}
		fmt.Printf("\n%d schedules registered\n", status.Schedules)
		return nil
	}

	for _, tool := range domain.Tools() {
		fmt.Printf("%-8s %s\n", tool, idleStyle.Render("unknown (daemon not reachable)"))
	}

	schedules, err := newService(cfg, nil).ListSchedules()
	if err != nil {
		return err
	}
	fmt.Printf("\n%d schedules registered\n", len(schedules))

	return nil
}

func runNow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runs, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer runs.Close()

	return printResult(newService(cfg, runs).ExecuteNow(runInput))
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tool, err := domain.ParseTool(args[0])
	if err != nil {
		return err
	}

	// only the process owning the execution can honor a stop, so the
	// request must reach the serve daemon's guard
	c := newDaemonClient(cfg)
	res, err := c.stop(tool)
	if err != nil {
		return fmt.Errorf("no daemon reachable at %s: stop can only cancel an execution owned by a running serve daemon", c.base)
	}
	return printResult(res)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runs, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer runs.Close()

	store := schedstore.New(cfg.General.SchedulesDir, cfg.General.LogDir, scriptsDir(cfg))
	journal := history.New(cfg.General.HistoryPath)
	g := guard.New()
	log := newLogger()
	svc := scheduler.NewService(cfg, store, journal, g, terminal.NewITerm(), log,
		scheduler.WithRunStore(runs))

	report, err := catchup.NewSweeper(store, journal, g, svc, log).Run()
	if err != nil {
		return err
	}
	fmt.Printf("Checked %d schedules: %d missed, %d started, %d skipped, %d failed\n",
		report.Checked, report.Missed, report.Started, report.Skipped, report.Failed)
	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runs, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer runs.Close()

	records, err := runs.List(runstore.ListOptions{
		ScheduleID: runsSchedule,
		Tool:       domain.Tool(runsTool),
		Phase:      runsPhase,
		Limit:      runsLimit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tTOOL\tORIGIN\tPHASE\tMESSAGE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.Tool, r.Origin, r.Phase, r.Message)
	}
	w.Flush()

	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var file struct {
		Schedules []scheduler.ScheduleInput `yaml:"schedules"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", args[0], err)
	}
	if len(file.Schedules) == 0 {
		return fmt.Errorf("%s contains no schedules", args[0])
	}

	svc := newService(cfg, nil)
	var failed int
	for i, in := range file.Schedules {
		res := svc.RegisterSchedule(in)
		if !res.Success {
			failed++
			fmt.Fprintf(os.Stderr, "schedule %d: %s\n", i+1, res.Message)
			continue
		}
		fmt.Printf("registered %s (%s %s at %s)\n", res.ScheduleID, in.Tool, in.Type, in.ExecutionTime)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d schedules failed", failed, len(file.Schedules))
	}
	return nil
}
