// tablectl is a REPL CLI for creating and inspecting sharedtable files.
//
// Usage:
//
//	tablectl <table-file>              Open an existing table file
//	tablectl new [opts] <table-file>   Create a new table file
//
// Options for 'new' command:
//
//	-c, --capacity     Slot capacity N (default from config, else 1024)
//	-k, --key-width     Key width K in UTF-16 code units (default 64)
//	-v, --value-width   Value width V in UTF-16 code units (default 256)
//	    --hash          Hash function: murmur2 (default) or fnv1a64
//
// Commands (in REPL):
//
//	set <key> <value>   Upsert an entry
//	get <key>           Retrieve an entry by key
//	has <key>           Report whether a key is present
//	del <key>           Delete an entry
//	keys [limit]        List keys
//	len                 Count occupied slots
//	info                Show table path, length and write-gate state
//	lockwrite           Acquire the exclusive global gate
//	unlockwrite         Release the exclusive global gate
//	clear               Empty the table (implies lockwrite)
//	reduce count|len    Fold over every entry
//	dump                Print a YAML snapshot of the table
//	export <path>       Durably write the raw buffer to path
//	bulk <count>        Insert N random entries
//	bench <count>       Benchmark set+get performance
//	help                Show this help
//	exit / quit / q     Exit
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/calvinalkan/sharedtable/pkg/sharedtable"
	"github.com/calvinalkan/sharedtable/pkg/sharedtable/region"
	flag "github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()

		return errors.New("missing command or table file path")
	}

	if os.Args[1] == "new" {
		return runNew(os.Args[2:])
	}

	return runOpen(os.Args[1:])
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  tablectl <table-file>              Open an existing table file\n")
	fmt.Fprintf(os.Stderr, "  tablectl new [opts] <table-file>   Create a new table file\n")
	fmt.Fprintf(os.Stderr, "\nRun 'tablectl new --help' for options when creating a new table.\n")
}

func runNew(args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("tablectl: getwd: %w", err)
	}

	defaults, err := LoadConfig(workDir)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("new", flag.ExitOnError)

	capacity := fs.Uint32P("capacity", "c", defaults.Capacity, "slot capacity N")
	keyWidth := fs.Uint32P("key-width", "k", defaults.KeyWidth, "key width K, in UTF-16 code units")
	valueWidth := fs.Uint32P("value-width", "v", defaults.ValueWidth, "value width V, in UTF-16 code units")
	hashName := fs.String("hash", defaults.Hash, "hash function: murmur2 or fnv1a64")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tablectl new [options] <table-file>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		fs.Usage()

		return errors.New("missing table file path")
	}

	path := fs.Arg(0)

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("table file already exists: %s (use 'tablectl %s' to open it)", path, path)
	}

	hash, err := hashByName(*hashName)
	if err != nil {
		return err
	}

	// Build the header + slot layout in memory first so its size dictates
	// the region file's size, then copy it into the freshly mapped region.
	tbl, err := sharedtable.New(*capacity, *keyWidth, *valueWidth, sharedtable.WithHash(hash))
	if err != nil {
		return fmt.Errorf("tablectl: new table: %w", err)
	}

	reg, err := region.Create(path, len(tbl.Buffer()))
	if err != nil {
		return fmt.Errorf("tablectl: create region: %w", err)
	}

	copy(reg.Bytes(), tbl.Buffer())

	attached, err := sharedtable.Attach(reg.Bytes(), sharedtable.WithHash(hash))
	if err != nil {
		reg.Close()

		return fmt.Errorf("tablectl: attach to region: %w", err)
	}

	fmt.Printf("Created table %s (capacity=%d key_width=%d value_width=%d hash=%s)\n",
		path, *capacity, *keyWidth, *valueWidth, *hashName)

	repl := &REPL{table: attached, region: reg, path: path}

	return repl.Run()
}

func runOpen(args []string) error {
	fs := flag.NewFlagSet("open", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tablectl <table-file>\n\nOpen an existing table file.\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		fs.Usage()

		return errors.New("missing table file path")
	}

	path := fs.Arg(0)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("table file does not exist: %s (use 'tablectl new %s' to create it)", path, path)
	}

	reg, err := region.Attach(path)
	if err != nil {
		return fmt.Errorf("tablectl: attach region: %w", err)
	}

	tbl, err := sharedtable.Attach(reg.Bytes())
	if err != nil {
		reg.Close()

		return fmt.Errorf("tablectl: attach table: %w", err)
	}

	repl := &REPL{table: tbl, region: reg, path: path}

	return repl.Run()
}

// historyFile returns the path to the liner history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return home + "/.tablectl_history"
}
