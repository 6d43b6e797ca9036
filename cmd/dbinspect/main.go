package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"unicode/utf8"

	"github.com/davecgh/go-spew/spew"
	"github.com/kaspanet/fedstore/infrastructure/db/database"
	"github.com/kaspanet/fedstore/infrastructure/logger"
	"golang.org/x/term"
)

func main() {
	cfg, err := parseConfig()
	if err != nil {
		os.Exit(reportConfigError(os.Stderr, err))
	}

	err = initLog(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		printErrorAndExit(fmt.Sprintf("error initializing the logger: %s", err))
	}
	defer logger.BackendLog.Close()

	options := database.DefaultOptions()
	options.Namespaces = cfg.namespaces
	options.ReadOnly = true
	db, err := database.Open(cfg.DataDir, cfg.kind, options)
	if err != nil {
		printErrorAndExit(fmt.Sprintf("error opening the database: %s", err))
	}
	defer func() {
		err := db.Close()
		if err != nil {
			log.Errorf("Error closing the database: %s", err)
		}
	}()

	printer := newRecordPrinter(os.Stdout, cfg.Verbose, term.IsTerminal(int(os.Stdout.Fd())))
	err = db.View(func(tx *database.ReadTx) error {
		if cfg.Digest {
			fmt.Printf("version: %d\nstate digest: %s\n", tx.Version(), tx.StateDigest())
		}

		namespaces := db.Namespaces()
		if cfg.Only != "" {
			namespaces = []string{cfg.Only}
		}
		for _, namespace := range namespaces {
			count, err := printer.printNamespace(tx, namespace, cfg.prefix)
			if err != nil {
				return err
			}
			log.Infof("Listed %d records of namespace %s", count, namespace)
		}
		return nil
	})
	if err != nil {
		printErrorAndExit(fmt.Sprintf("error reading the database: %s", err))
	}

	if cfg.Metrics {
		db.WriteMetrics(os.Stdout)
	}
}

type recordPrinter struct {
	out     io.Writer
	verbose bool
	// quoted prints printable keys and values as quoted text rather
	// than hex
	quoted bool
}

func newRecordPrinter(out io.Writer, verbose bool, quoted bool) *recordPrinter {
	return &recordPrinter{out: out, verbose: verbose, quoted: quoted}
}

func (p *recordPrinter) printNamespace(tx *database.ReadTx, namespace string, prefix []byte) (int, error) {
	handle, err := tx.Handle(namespace)
	if err != nil {
		return 0, err
	}
	schemaVersion, err := handle.SchemaVersion()
	if err != nil {
		return 0, err
	}
	cursor, err := handle.PrefixScan(prefix)
	if err != nil {
		return 0, err
	}
	defer cursor.Close()

	fmt.Fprintf(p.out, "[%s] schema version %d\n", namespace, schemaVersion)
	count := 0
	for cursor.Next() {
		count++
		if p.verbose {
			fmt.Fprintf(p.out, "%s", spew.Sdump(database.KeyValue{Key: cursor.Key(), Value: cursor.Value()}))
			continue
		}
		fmt.Fprintf(p.out, "%s => %s\n", p.format(cursor.Key()), p.format(cursor.Value()))
	}
	return count, cursor.Error()
}

func (p *recordPrinter) format(data []byte) string {
	if p.quoted && isPrintable(data) {
		return strconv.Quote(string(data))
	}
	return fmt.Sprintf("0x%x", data)
}

func isPrintable(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, r := range string(data) {
		if !strconv.IsPrint(r) {
			return false
		}
	}
	return true
}
