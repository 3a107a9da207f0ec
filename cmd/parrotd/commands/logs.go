package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/parrotchat/parrot/pkg/config"
)

var (
	logsFollow bool
	logsLines  int
	logsSince  string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Tail replica logs",
	Long: `Print the tail of a replica's log file, optionally following new entries.

The file to read comes from 'logging.output' in the replica configuration.
Replicas that log to stdout or stderr have no file for this command to read,
so it requires a file path to be configured.

Examples:
  # Last 100 lines
  parrotd logs

  # Last 20 lines, then keep following
  parrotd logs -f -n 20

  # Everything logged after a point in time
  parrotd logs --since "2026-01-15T10:00:00Z"`,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 100, "Number of lines to show")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since timestamp (RFC3339 format)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	path := cfg.Logging.Output
	if path == "stdout" || path == "stderr" {
		return fmt.Errorf("replica logs to %s, not a file\nSet 'logging.output' to a file path to use this command", path)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot read log file %s (has the replica started?): %w", path, err)
	}

	var since time.Time
	if logsSince != "" {
		since, err = time.Parse(time.RFC3339, logsSince)
		if err != nil {
			return fmt.Errorf("invalid --since format (use RFC3339): %w", err)
		}
	}

	if err := printTail(path, logsLines, since); err != nil {
		return err
	}
	if !logsFollow {
		return nil
	}
	return followFile(path)
}

// printTail prints the last n lines of the file. When since is nonzero,
// lines stamped before it are skipped before the tail is taken.
func printTail(path string, n int, since time.Time) error {
	if n <= 0 {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	// A ring of the last n matching lines keeps memory bounded on big files.
	ring := make([]string, n)
	seen := 0

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !since.IsZero() {
			if ts := lineTimestamp(line); !ts.IsZero() && ts.Before(since) {
				continue
			}
		}
		ring[seen%n] = line
		seen++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	first := 0
	if seen > n {
		first = seen - n
	}
	for i := first; i < seen; i++ {
		fmt.Println(ring[i%n])
	}
	return nil
}

// followFile prints lines as they are appended to the file. It returns on
// SIGINT or SIGTERM, or when the file is removed or renamed out from under
// the watch.
func followFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	// History was already printed; only new content matters here.
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek log file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	fmt.Fprintf(os.Stderr, "Watching %s for new entries (Ctrl+C to stop)\n", path)

	r := bufio.NewReader(f)
	for {
		select {
		case <-stop:
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				return fmt.Errorf("log file %s was rotated or removed", path)
			}
			if ev.Has(fsnotify.Write) {
				printAppended(r)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

// printAppended copies everything the reader can see to stdout. A partial
// last line is printed as-is; the next append completes it on the same
// terminal row since no newline was added.
func printAppended(r *bufio.Reader) {
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			fmt.Print(line)
		}
		if err != nil {
			return
		}
	}
}

// lineTimestamp recovers the timestamp of a log line. Text lines start with
// "2006-01-02 15:04:05" in local time; JSON lines carry an RFC3339 "time"
// field. Lines in neither shape report a zero time.
func lineTimestamp(line string) time.Time {
	const textLayout = "2006-01-02 15:04:05"
	if len(line) >= len(textLayout) {
		if t, err := time.ParseInLocation(textLayout, line[:len(textLayout)], time.Local); err == nil {
			return t
		}
	}

	if _, rest, ok := strings.Cut(line, `"time":"`); ok {
		if stamp, _, ok := strings.Cut(rest, `"`); ok {
			if t, err := time.Parse(time.RFC3339Nano, stamp); err == nil {
				return t
			}
		}
	}

	return time.Time{}
}
