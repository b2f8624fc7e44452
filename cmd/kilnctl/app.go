package main

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kiln_control/internal/config"
	"kiln_control/internal/repository"
	"kiln_control/internal/repository/db"
	"kiln_control/internal/service"
)

// app carries what every subcommand needs: the resolved config and the output stream.
type app struct {
	v   *viper.Viper
	cfg config.Config
	out io.Writer

	configDir string
}

func newApp(out io.Writer) *app {
	return &app{v: viper.New(), out: out}
}

// load resolves the config once flags are parsed; flags win over file and env.
func (a *app) load(cmd *cobra.Command) error {
	for key, flag := range map[string]string{
		"ipc.socket":    "socket",
		"ipc.status":    "status-path",
		"db.path":       "db",
		"serial.device": "device",
	} {
		if err := a.v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	var paths []string
	if a.configDir != "" {
		paths = []string{a.configDir}
	}
	cfg, err := config.Load(a.v, paths...)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) control() service.Control {
	return service.NewControlService(a.cfg.SocketPath)
}

// programs opens the program store. The caller closes the returned db.
func (a *app) programs(create bool) (*service.ProgramService, *sql.DB, error) {
	open := db.Open
	if create {
		open = db.InitDB
	}
	conn, err := open(a.cfg.DBPath, a.cfg.DBBusyTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", a.cfg.DBPath, err)
	}
	return service.NewProgramService(repository.NewProgramSQLite(conn)), conn, nil
}

// settings opens the Settings table, creating the schema when needed.
func (a *app) settings() (*repository.SettingsSQLite, *sql.DB, error) {
	conn, err := db.InitDB(a.cfg.DBPath, a.cfg.DBBusyTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", a.cfg.DBPath, err)
	}
	return repository.NewSettingsSQLite(conn), conn, nil
}
