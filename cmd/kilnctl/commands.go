package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"kiln_control/internal/config"
	"kiln_control/internal/device"
	"kiln_control/internal/models"
	"kiln_control/internal/service"
)

const defaultTempTimeout = 3 * time.Second

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "kilnctl",
		Short:         "Control the kiln daemon and manage firing programs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	root.SetOut(a.out)
	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "directory holding config.yml (default configs, /etc/kiln)")
	root.PersistentFlags().String("socket", "", "kilnd control socket")
	root.PersistentFlags().String("status-path", "", "kilnd status block")
	root.PersistentFlags().String("db", "", "kiln database")
	root.PersistentFlags().String("device", "", "controller serial device (temp only)")

	root.AddCommand(
		newStartCmd(a),
		simpleCmd(a, "pause", "Insert a pause at the current point", models.MessagePause),
		simpleCmd(a, "resume", "End the current pause", models.MessageResume),
		simpleCmd(a, "cancel", "Stop the running program and set SV to 0", models.MessageCancel),
		simpleCmd(a, "quit", "Cancel and shut the daemon down", models.MessageQuit),
		newSetCmd(a),
		newStatusCmd(a),
		newTempCmd(a),
		newProgramCmd(a),
		newSettingsCmd(a),
	)
	return root
}

// send validates m and hands it to the daemon. Delivery is not acknowledged.
func send(ctx context.Context, ctl service.Control, out io.Writer, m models.ControlMessage) error {
	if err := service.ValidateMessage(m); err != nil {
		return err
	}
	if err := ctl.Send(ctx, m); err != nil {
		return fmt.Errorf("is kilnd running? %w", err)
	}
	fmt.Fprintf(out, "sent %s\n", m.Kind)
	return nil
}

func simpleCmd(a *app, name, short string, kind models.MessageKind) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd.Context(), a.control(), a.out, models.ControlMessage{Kind: kind})
		},
	}
}

func newStartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start <program-id> [from-step]",
		Short: "Start a stored program, optionally from a later step",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseInt32("program id", args[0])
			if err != nil {
				return err
			}
			var step int32
			if len(args) == 2 {
				if step, err = parseInt32("step", args[1]); err != nil {
					return err
				}
			}
			return send(cmd.Context(), a.control(), a.out,
				models.ControlMessage{Kind: models.MessageStart, Param1: id, Param2: step})
		},
	}
}

func newSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <temperature>",
		Short: "Heat to a temperature and hold it until cancelled or resumed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			temp, err := parseInt32("temperature", args[0])
			if err != nil {
				return err
			}
			return send(cmd.Context(), a.control(), a.out,
				models.ControlMessage{Kind: models.MessageSet, Param1: temp})
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the live status published by kilnd",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mon := service.NewMonitoringService(a.cfg.StatusPath)
			defer func() { _ = mon.Close() }()
			st, err := mon.GetStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printStatus(a.out, st, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printStatus(w io.Writer, st models.LiveStatus, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	fmt.Fprintf(w, "PV       %d\n", st.PV)
	fmt.Fprintf(w, "SV       %d\n", st.SV)
	fmt.Fprintf(w, "segment  %s %ds", st.SegmentType, st.SegmentElapsed)
	if st.SegmentPlanned > 0 {
		fmt.Fprintf(w, " of %ds", st.SegmentPlanned)
	}
	fmt.Fprintln(w)
	if st.Firing() {
		fmt.Fprintf(w, "firing   %d step %d, %ds elapsed\n", st.FiringID, st.StepID, st.TotalElapsed())
	} else {
		fmt.Fprintln(w, "firing   none")
	}
	return nil
}

func newTempCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "temp",
		Short: "Read the temperature straight from the controller (kilnd must be stopped)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := device.OpenPort(device.PortConfig{Device: a.cfg.SerialDevice, BaudRate: a.cfg.SerialBaud})
			if err != nil {
				return err
			}
			defer func() { _ = port.Close() }()
			pv, err := device.ReadPV(cmd.Context(), port, timeout)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, pv)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultTempTimeout, "how long to wait for the controller")
	return cmd
}

func newProgramCmd(a *app) *cobra.Command {
	program := &cobra.Command{
		Use:   "program",
		Short: "Manage stored firing programs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored programs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, conn, err := a.programs(false)
			if err != nil {
				return err
			}
			defer conn.Close()
			infos, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range infos {
				fmt.Fprintf(a.out, "%4d  %-30s runs=%d\n", p.ID, p.Name, p.ExecCount)
			}
			return nil
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <file.yml>",
		Short: "Store a program from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			p, err := decodeProgram(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			svc, conn, err := a.programs(true)
			if err != nil {
				return err
			}
			defer conn.Close()
			id, err := svc.Import(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "imported %q as program %d\n", p.Name, id)
			return nil
		},
	}

	var outPath string
	export := &cobra.Command{
		Use:   "export <program-id>",
		Short: "Write a stored program as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("program id %q: %w", args[0], err)
			}
			svc, conn, err := a.programs(false)
			if err != nil {
				return err
			}
			defer conn.Close()
			p, err := svc.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			w := a.out
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return encodeProgram(w, p)
		},
	}
	export.Flags().StringVarP(&outPath, "output", "o", "", "write to file instead of stdout")

	remove := &cobra.Command{
		Use:   "delete <program-id>",
		Short: "Hide a program from listings; past firings keep their reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("program id %q: %w", args[0], err)
			}
			svc, conn, err := a.programs(false)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := svc.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted program %d\n", id)
			return nil
		},
	}

	program.AddCommand(list, importCmd, export, remove)
	return program
}

// knownSettings are the names kilnd reads from the Settings table.
var knownSettings = []string{
	config.SettingDevice,
	config.SettingBaud,
	config.SettingPVMargin,
	config.SettingFiringLogInterval,
	config.SettingIdleLogInterval,
}

func newSettingsCmd(a *app) *cobra.Command {
	settings := &cobra.Command{
		Use:   "settings",
		Short: "Show or change settings stored in the kiln database",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print stored settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, conn, err := a.settings()
			if err != nil {
				return err
			}
			defer conn.Close()
			all, err := repo.All(cmd.Context())
			if err != nil {
				return err
			}
			names := make([]string, 0, len(all))
			for name := range all {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				fmt.Fprintf(a.out, "%-20s %s\n", name, all[name])
			}
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Store a setting; kilnd picks it up on its next start",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, value := strings.ToLower(strings.TrimSpace(args[0])), args[1]
			if !slices.Contains(knownSettings, name) {
				return fmt.Errorf("unknown setting %q (known: %s)", name, strings.Join(knownSettings, ", "))
			}
			check := a.cfg
			if err := check.ApplySettings(map[string]string{name: value}); err != nil {
				return err
			}
			repo, conn, err := a.settings()
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := repo.Save(cmd.Context(), name, value); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s = %s\n", name, value)
			return nil
		},
	}

	settings.AddCommand(list, set)
	return settings
}

// programFile is the YAML layout of an exported program. Step numbers are
// implied by order.
type programFile struct {
	Name  string     `yaml:"name"`
	Steps []fileStep `yaml:"steps"`
}

type fileStep struct {
	Instruction string `yaml:"instruction"`
	Temperature int    `yaml:"temperature"`
	Param       int    `yaml:"param,omitempty"`
}

func decodeProgram(r io.Reader) (models.Program, error) {
	var pf programFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return models.Program{}, fmt.Errorf("decode yaml: %w", err)
	}
	p := models.Program{ProgramInfo: models.ProgramInfo{Name: pf.Name}}
	for i, s := range pf.Steps {
		p.Steps = append(p.Steps, models.Instruction{
			Step:        i + 1,
			Kind:        s.Instruction,
			Temperature: s.Temperature,
			Param:       s.Param,
		})
	}
	return p, nil
}

func encodeProgram(w io.Writer, p models.Program) error {
	pf := programFile{Name: p.Name}
	for _, s := range p.Steps {
		pf.Steps = append(pf.Steps, fileStep{Instruction: s.Kind, Temperature: s.Temperature, Param: s.Param})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(pf); err != nil {
		return err
	}
	return enc.Close()
}

func parseInt32(what, s string) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s %q: not a number", what, s)
	}
	return int32(n), nil
}
