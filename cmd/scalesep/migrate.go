package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/banshee-data/scalesep/internal/cascade/archive"
)

// cmdMigrate opens the archive, which applies pending migrations, and
// reports the schema version.
func cmdMigrate(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "", "Cascade config file (.json or .yaml)")
	dbPath := fs.String("db", "", "Archive database, overriding the config archive_path")
	var lf logFlags
	lf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *dbPath
	if path == "" {
		cc, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		path = cc.GetArchivePath()
	}
	if path == "" {
		return usageErrorf("no archive: pass --db or set archive_path")
	}

	_, closeLog, err := lf.setup(stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	v, dirty, err := store.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: schema version %d", path, v)
	if dirty {
		fmt.Fprint(stdout, " (dirty)")
	}
	fmt.Fprintln(stdout)
	return nil
}
