package worlds

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/emsm/emsm/internal/style"
	"github.com/emsm/emsm/internal/world"
)

func sortByName(ws []*world.World) {
	sort.Slice(ws, func(i, j int) bool { return ws[i].Name() < ws[j].Name() })
}

func splitLines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func printAddress(out io.Writer, w *world.World) error {
	fmt.Fprintln(out, style.Heading(w.Name()))
	addr := w.Address()
	switch {
	case addr.Known():
		fmt.Fprintf(out, "\t%s\n", addr)
	case addr.Port > 0:
		fmt.Fprintf(out, "\t*:%d\n", addr.Port)
	case addr.Host != "":
		fmt.Fprintf(out, "\t%s:%s\n", addr.Host, style.Error.Render("?????"))
	default:
		failure(out, "unable to retrieve the binding.")
	}
	return nil
}

func printConf(out io.Writer, w *world.World) error {
	fmt.Fprintln(out, style.Heading(w.Name()))
	conf := w.Conf()
	for _, key := range conf.Keys() {
		value, _ := conf.Get(key)
		value = strings.ReplaceAll(value, "\n", "\n\t\t")
		fmt.Fprintf(out, "\t%s = %s\n", key, value)
	}
	return nil
}

func printDirectory(out io.Writer, w *world.World) error {
	fmt.Fprintln(out, style.Heading(w.Name()))
	fmt.Fprintf(out, "\t%s\n", w.Directory())
	return nil
}

// logWindow returns the half-open line range [from, to) of a log with n
// lines. A negative start counts from the end; limit 0 means no limit.
func logWindow(n, start, limit int) (from, to int) {
	if start >= 0 {
		from = min(start, n)
	} else {
		from = max(0, n+start)
	}
	to = n
	if limit > 0 {
		to = min(n, from+limit)
	}
	return from, to
}

func printLog(out io.Writer, w *world.World, start, limit int) error {
	log, err := w.LatestLog()
	if err != nil {
		return err
	}
	var lines []string
	if log != "" {
		lines = splitLines(log)
	}
	from, to := logWindow(len(lines), start, limit)
	fmt.Fprintf(out, "%s - %s:\n", style.Info.Render(w.Name()),
		style.Success.Render(fmt.Sprintf("lines %d-%d/%d", from+1, to, len(lines))))
	for i := from; i < to; i++ {
		fmt.Fprintf(out, "\t#%8d | %s\n", i+1, lines[i])
	}
	return nil
}

func printPIDs(out io.Writer, w *world.World) error {
	pids, err := w.PIDs()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, style.Heading(w.Name()))
	if len(pids) == 0 {
		fmt.Fprintln(out, "\t- offline -")
	}
	for _, pid := range pids {
		fmt.Fprintf(out, "\t%d\n", pid)
	}
	return nil
}

func printStatus(out io.Writer, w *world.World) error {
	st, err := w.Status()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, style.Heading(w.Name()))
	fmt.Fprintf(out, "\t%s\n", statusLabel(st.Online()))
	if st.LaunchedMultipleTimes() {
		fmt.Fprintf(out, "\t%s the world has been launched %d times\n", style.Warning.Render("warning:"), len(st.PIDs))
	}
	return nil
}
