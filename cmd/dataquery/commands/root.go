// Package commands implements the dataquery command line tool. It imports
// and exports resources of a JSON data file or a SQLite database through the
// bulk transfer engine.
package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/huykn/dataquery"
	"github.com/huykn/dataquery/config"
	"github.com/huykn/dataquery/provider"
	"github.com/huykn/dataquery/transfer"
)

// CLI represents the command line interface.
type CLI struct {
	rootCmd *cobra.Command

	configPath string
	dataPath   string
}

// New creates a CLI.
func New() *CLI {
	rootCmd := &cobra.Command{
		Use:           "dataquery",
		Short:         "Import and export resources through a cached data provider",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       dataquery.Version,
	}

	c := &CLI{rootCmd: rootCmd}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "Path to a YAML configuration file")
	flags.StringVarP(&c.dataPath, "data", "d", "data.json", "Path to the JSON data file, or a .db/.sqlite SQLite database")

	rootCmd.AddCommand(c.newImportCmd())
	rootCmd.AddCommand(c.newExportCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// session is a client over the data file.
type session struct {
	client *dataquery.Client
	memory *provider.Memory
	db     *sql.DB
}

func isSQLite(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

func (c *CLI) open(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger(cmd.ErrOrStderr())

	s := &session{}
	var backend provider.DataProvider
	if isSQLite(c.dataPath) {
		s.db, err = sql.Open("sqlite3", c.dataPath)
		if err != nil {
			return nil, err
		}
		opts := []provider.SQLOption{}
		if cfg.Debug {
			opts = append(opts, provider.WithQueryLogger(logger))
		}
		backend, err = provider.NewSQL(cmd.Context(), s.db, opts...)
		if err != nil {
			s.db.Close()
			return nil, fmt.Errorf("open %s: %w", c.dataPath, err)
		}
	} else {
		s.memory = provider.NewMemory()
		f, err := os.Open(c.dataPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			defer f.Close()
			if err := s.memory.Load(f); err != nil {
				return nil, fmt.Errorf("load %s: %w", c.dataPath, err)
			}
		}
		backend = s.memory
	}

	s.client, err = dataquery.FromConfig(cfg, logger, provider.Single(backend))
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	if s.client != nil {
		s.client.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// save writes the memory store back to path. SQLite writes are already durable.
func (s *session) save(path string) error {
	if s.memory == nil {
		return nil
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := s.memory.Save(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// formatOf picks a format from the flag or, when empty, the file extension.
func formatOf(flag, path string) transfer.Format {
	if flag != "" {
		return transfer.Format(strings.ToLower(flag))
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return transfer.FormatCSV
	case ".yaml", ".yml":
		return transfer.FormatYAML
	}
	return transfer.FormatJSON
}

func printSummary(w io.Writer, job *transfer.Job) {
	s := job.Summary()
	_, _ = fmt.Fprintf(w, "%s %s: %s (%d succeeded, %d failed, %d total)\n",
		job.Kind, job.Resource, job.Status(), s.Succeeded, s.Failed, s.Total)
	for _, r := range job.Results() {
		if r.Status == transfer.ItemFailed {
			_, _ = fmt.Fprintf(w, "  item %d: %v\n", r.Index, r.Err)
		}
	}
}
