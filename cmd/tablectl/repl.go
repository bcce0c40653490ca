package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"gopkg.in/yaml.v3"

	"github.com/calvinalkan/sharedtable/pkg/sharedtable"
	"github.com/calvinalkan/sharedtable/pkg/sharedtable/region"
)

// REPL is the interactive command loop over a single open table.
type REPL struct {
	table  *sharedtable.Table
	region *region.Region
	path   string

	liner      *liner.State
	holdsWrite bool
}

// Run starts the REPL loop, reading commands until EOF/exit.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("tablectl - sharedtable CLI (%s, length=%d)\n", r.path, r.table.Length())
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	defer r.table.Close()
	defer r.region.Close()

	for {
		line, err := r.liner.Prompt("tablectl> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")
				r.saveHistory()
				r.releaseWriteIfHeld()

				return nil
			}

			return fmt.Errorf("tablectl: reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()
			r.releaseWriteIfHeld()

			return nil

		case "help", "?":
			r.printHelp()

		case "set", "put":
			r.cmdSet(args)

		case "get":
			r.cmdGet(args)

		case "has":
			r.cmdHas(args)

		case "del", "delete":
			r.cmdDelete(args)

		case "keys", "scan":
			r.cmdKeys(args)

		case "len", "count":
			fmt.Printf("Length: %d\n", r.table.Length())

		case "info":
			r.cmdInfo()

		case "lockwrite":
			r.cmdLockWrite()

		case "unlockwrite":
			r.cmdUnlockWrite()

		case "clear":
			r.cmdClear()

		case "reduce":
			r.cmdReduce(args)

		case "dump":
			r.cmdDump(args)

		case "export":
			r.cmdExport(args)

		case "bulk":
			r.cmdBulk(args)

		case "bench":
			r.cmdBench(args)

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (r *REPL) releaseWriteIfHeld() {
	if r.holdsWrite {
		r.table.UnlockWrite()
		r.holdsWrite = false
	}
}

func (r *REPL) callOpts() []sharedtable.Option {
	if r.holdsWrite {
		return []sharedtable.Option{sharedtable.LockWrite()}
	}

	return nil
}

func (r *REPL) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	if f, err := os.Create(path); err == nil {
		r.liner.WriteHistory(f)
		f.Close()
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"set", "put", "get", "has", "del", "delete",
		"keys", "scan", "len", "count", "info",
		"lockwrite", "unlockwrite", "clear",
		"reduce", "dump", "export",
		"bulk", "bench", "help", "exit", "quit", "q",
	}

	lower := strings.ToLower(line)

	var completions []string

	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  set <key> <value>   Upsert an entry")
	fmt.Println("  get <key>           Retrieve an entry by key")
	fmt.Println("  has <key>           Report whether a key is present")
	fmt.Println("  del <key>           Delete an entry")
	fmt.Println("  keys [limit]        List keys")
	fmt.Println("  len                 Count occupied slots")
	fmt.Println("  info                Show table path, length and write-gate state")
	fmt.Println("  lockwrite           Acquire the exclusive global gate")
	fmt.Println("  unlockwrite         Release the exclusive global gate")
	fmt.Println("  clear               Empty the table (implies lockwrite)")
	fmt.Println("  reduce count|len    Fold over every entry (count or total value length)")
	fmt.Println("  dump                Print a YAML snapshot of header counters and entries")
	fmt.Println("  export <path>       Durably write the raw buffer to path")
	fmt.Println("  bulk <count>        Insert N random entries")
	fmt.Println("  bench <count>       Benchmark set+get performance")
	fmt.Println("  help                Show this help")
	fmt.Println("  exit / quit / q     Exit")
}

func (r *REPL) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: set <key> <value>")

		return
	}

	if err := r.table.Set(args[0], strings.Join(args[1:], " "), r.callOpts()...); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println("OK")
}

func (r *REPL) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: get <key>")

		return
	}

	value, ok := r.table.Get(args[0], r.callOpts()...)
	if !ok {
		fmt.Println("(not found)")

		return
	}

	fmt.Println(value)
}

func (r *REPL) cmdHas(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: has <key>")

		return
	}

	fmt.Println(r.table.Has(args[0], r.callOpts()...))
}

func (r *REPL) cmdDelete(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: del <key>")

		return
	}

	if err := r.table.Delete(args[0], r.callOpts()...); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println("OK")
}

func (r *REPL) cmdKeys(args []string) {
	limit := 20

	if len(args) >= 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Printf("Error parsing limit: %v\n", err)

			return
		}

		limit = n
	}

	i := 0

	for key := range r.table.Keys(r.callOpts()...) {
		if i >= limit {
			fmt.Printf("... (showing first %d, use 'keys <limit>' for more)\n", limit)

			return
		}

		fmt.Printf("%3d. %s\n", i+1, key)

		i++
	}

	if i == 0 {
		fmt.Println("(empty)")
	}
}

func (r *REPL) cmdInfo() {
	fmt.Printf("Table Info:\n")
	fmt.Printf("  Path:      %s\n", r.path)
	fmt.Printf("  Length:    %d\n", r.table.Length())
	fmt.Printf("  Write gate held by this session: %v\n", r.holdsWrite)
}

func (r *REPL) cmdLockWrite() {
	if r.holdsWrite {
		fmt.Println("Already holding the write gate.")

		return
	}

	r.table.LockWrite()
	r.holdsWrite = true
	fmt.Println("OK: exclusive gate acquired")
}

func (r *REPL) cmdUnlockWrite() {
	if !r.holdsWrite {
		fmt.Println("Not holding the write gate.")

		return
	}

	r.table.UnlockWrite()
	r.holdsWrite = false
	fmt.Println("OK: exclusive gate released")
}

func (r *REPL) cmdClear() {
	r.table.Clear()
	fmt.Println("OK: table cleared")
}

func (r *REPL) cmdReduce(args []string) {
	mode := "count"
	if len(args) >= 1 {
		mode = args[0]
	}

	switch mode {
	case "count":
		total := r.table.Reduce(func(acc any, _, _ string) any {
			return acc.(int) + 1
		}, 0, r.callOpts()...)

		fmt.Printf("Entries: %d\n", total)

	case "len":
		total := r.table.Reduce(func(acc any, _, value string) any {
			return acc.(int) + len(value)
		}, 0, r.callOpts()...)

		fmt.Printf("Total value length: %d\n", total)

	default:
		fmt.Println("Usage: reduce count|len")
	}
}

// tableSnapshot is the YAML shape printed by 'dump': the table's length
// (its header size counter) and file path, plus every live entry as a
// key-to-value map (yaml.v3 writes map entries sorted by key).
type tableSnapshot struct {
	Length  uint32            `yaml:"length"`
	Path    string            `yaml:"path"`
	Entries map[string]string `yaml:"entries"`
}

func (r *REPL) cmdDump(_ []string) {
	entries := make(map[string]string)

	r.table.Reduce(func(acc any, key, value string) any {
		entries[key] = value

		return acc
	}, nil, r.callOpts()...)

	snap := tableSnapshot{Length: r.table.Length(), Path: r.path, Entries: entries}

	out, err := yaml.Marshal(snap)
	if err != nil {
		fmt.Printf("Error marshaling snapshot: %v\n", err)

		return
	}

	os.Stdout.Write(out)
}

func (r *REPL) cmdExport(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: export <path>")

		return
	}

	if err := r.region.Snapshot(args[0]); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: exported to %s\n", args[0])
}

func (r *REPL) cmdBulk(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: bulk <count>")

		return
	}

	count, err := strconv.Atoi(args[0])
	if err != nil || count < 1 {
		fmt.Println("Error: count must be a positive integer")

		return
	}

	start := time.Now()

	for i := 0; i < count; i++ {
		key := randomHexKey(8)

		if err := r.table.Set(key, key, r.callOpts()...); err != nil {
			fmt.Printf("Error at entry %d: %v\n", i+1, err)

			return
		}
	}

	elapsed := time.Since(start)
	rate := float64(count) / elapsed.Seconds()
	fmt.Printf("OK: inserted %d entries in %v (%.0f ops/sec)\n", count, elapsed.Round(time.Millisecond), rate)
}

func (r *REPL) cmdBench(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: bench <count>")

		return
	}

	count, err := strconv.Atoi(args[0])
	if err != nil || count < 1 {
		fmt.Println("Error: count must be a positive integer")

		return
	}

	keys := make([]string, count)
	for i := range keys {
		keys[i] = randomHexKey(8)
	}

	setStart := time.Now()

	for i, key := range keys {
		if err := r.table.Set(key, strconv.Itoa(i), r.callOpts()...); err != nil {
			fmt.Printf("Error at set %d: %v\n", i+1, err)

			return
		}
	}

	setElapsed := time.Since(setStart)

	getStart := time.Now()
	hits := 0

	for _, key := range keys {
		if _, ok := r.table.Get(key, r.callOpts()...); ok {
			hits++
		}
	}

	getElapsed := time.Since(getStart)

	fmt.Printf("Results:\n")
	fmt.Printf("  Set: %d ops in %v (%.0f ops/sec)\n",
		count, setElapsed.Round(time.Millisecond), float64(count)/setElapsed.Seconds())
	fmt.Printf("  Get: %d ops in %v (%.0f ops/sec), %d hits\n",
		count, getElapsed.Round(time.Millisecond), float64(count)/getElapsed.Seconds(), hits)
}

func randomHexKey(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)

	return hex.EncodeToString(buf)
}
