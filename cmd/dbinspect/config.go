package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/kaspanet/fedstore/infrastructure/db/database"
	"github.com/pkg/errors"
)

const (
	defaultLogFilename    = "dbinspect.log"
	defaultErrLogFilename = "dbinspect_err.log"
	defaultDBType         = "locked"
	defaultLogLevel       = "info"
)

var (
	// Default configuration options
	defaultHomeDir = btcutil.AppDataDir("fedstore", false)
	defaultDataDir = filepath.Join(defaultHomeDir, "data")
	defaultLogDir  = filepath.Join(defaultHomeDir, "logs")
)

type configFlags struct {
	DataDir    string   `short:"b" long:"datadir" description:"Location of the database"`
	DBType     string   `long:"dbtype" description:"Kind of the database {memory, persistent, locked, browser}"`
	Namespaces []string `short:"n" long:"namespace" description:"Namespace of a module as NAME=PREFIX, where PREFIX is raw text or 0x-prefixed hex. May be repeated"`
	Only       string   `short:"o" long:"only" description:"Only list the records of this namespace"`
	Prefix     string   `short:"p" long:"prefix" description:"Only list the records whose key starts with this prefix"`
	HexPrefix  bool     `long:"hexprefix" description:"Treat --prefix as hex"`
	Digest     bool     `long:"digest" description:"Print the version and state digest of the database"`
	Metrics    bool     `long:"metrics" description:"Print the database metrics when done"`
	Verbose    bool     `short:"v" long:"verbose" description:"Dump every record in full"`
	LogLevel   string   `short:"d" long:"loglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`
	LogDir     string   `long:"logdir" description:"Directory to log output"`

	kind       database.Kind
	namespaces database.Namespaces
	prefix     []byte
}

// reportConfigError prints an error returned by parseConfig to w and
// returns the exit code. Errors of the flag parser itself were already
// printed by the parser.
func reportConfigError(w io.Writer, err error) int {
	var flagsErr *flags.Error
	if errors.As(err, &flagsErr) {
		if flagsErr.Type == flags.ErrHelp {
			return 0
		}
		return 1
	}
	fmt.Fprintf(w, "%s\n", err)
	return 1
}

func parseConfig() (*configFlags, error) {
	cfg := &configFlags{
		DataDir:  defaultDataDir,
		DBType:   defaultDBType,
		LogLevel: defaultLogLevel,
		LogDir:   defaultLogDir,
	}
	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	parser.Usage = "dbinspect [OPTIONS]\n\nLists the records stored by the modules of a federation node. " +
		"The database is opened read-only."
	_, err := parser.Parse()
	if err != nil {
		return nil, err
	}

	cfg.kind, err = database.ParseKind(cfg.DBType)
	if err != nil {
		return nil, err
	}

	cfg.namespaces, err = parseNamespaces(cfg.Namespaces)
	if err != nil {
		return nil, err
	}
	if len(cfg.namespaces) == 0 {
		return nil, errors.New("at least one --namespace is required")
	}
	if cfg.Only != "" {
		if _, ok := cfg.namespaces[cfg.Only]; !ok {
			return nil, errors.Errorf("--only names namespace %s, which is not defined by --namespace", cfg.Only)
		}
	}

	if cfg.HexPrefix {
		cfg.prefix, err = hex.DecodeString(cfg.Prefix)
		if err != nil {
			return nil, errors.Wrapf(err, "--prefix is not valid hex")
		}
	} else {
		cfg.prefix = []byte(cfg.Prefix)
	}

	return cfg, nil
}

func parseNamespaces(definitions []string) (database.Namespaces, error) {
	namespaces := make(database.Namespaces, len(definitions))
	for _, definition := range definitions {
		parts := strings.SplitN(definition, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, errors.Errorf("namespace %q is not of the form NAME=PREFIX", definition)
		}
		name, prefixString := parts[0], parts[1]
		if _, exists := namespaces[name]; exists {
			return nil, errors.Errorf("namespace %s is defined more than once", name)
		}

		prefix := []byte(prefixString)
		if strings.HasPrefix(prefixString, "0x") {
			var err error
			prefix, err = hex.DecodeString(prefixString[2:])
			if err != nil {
				return nil, errors.Wrapf(err, "prefix of namespace %s is not valid hex", name)
			}
		}
		namespaces[name] = prefix
	}
	return namespaces, namespaces.Validate()
}
