// resources.go — point-in-time snapshot of outstanding async resources.
//
// A pure read: every call recomputes from scratch, nothing is cached and
// nothing is mutated. Loop-owned resources (armed timers, queued jobs) come
// from the loop's own registries and carry their creation traces; process-wide
// resources (sockets, listening servers, child processes, watch descriptors)
// come from the platform via gopsutil.
package doublestack

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// TimerInfo describes one armed timer, including the rendered-ready frame
// list captured when it was scheduled.
type TimerInfo struct {
	ID     uint64        `json:"id"`
	Delay  time.Duration `json:"delay"`
	Repeat bool          `json:"repeat"`
	Trace  []string      `json:"trace"`
}

// SocketInfo describes one open network endpoint of this process.
type SocketInfo struct {
	Fd     uint32 `json:"fd"`
	Local  string `json:"local"`
	Remote string `json:"remote,omitempty"`
	Status string `json:"status"`
}

// ResourceReport categorizes everything outstanding at the instant of the
// call.
type ResourceReport struct {
	LoopID     string       `json:"loop_id"`
	Timers     []TimerInfo  `json:"timers"`
	Intervals  []TimerInfo  `json:"intervals"`
	QueuedJobs int          `json:"queued_jobs"`
	Sockets    []SocketInfo `json:"sockets"`
	Servers    []SocketInfo `json:"servers"`
	Children   []int32      `json:"children"`
	Watchers   []string     `json:"watchers"`
	Other      []string     `json:"other"`
}

// Resources snapshots the loop's pending work and the process's open
// resources. The loop-owned sections are always filled; if the platform query
// fails, the report is returned alongside the error so callers can still use
// the local half.
func (l *Loop) Resources() (*ResourceReport, error) {
	rep := &ResourceReport{LoopID: l.id}

	sep := l.set.SeparatorToken()
	l.mu.Lock()
	rep.QueuedJobs = len(l.ticks) + len(l.micro) + len(l.macro)
	for t := range l.timers {
		info := TimerInfo{
			ID:     t.snap.id,
			Delay:  t.delay,
			Repeat: t.repeat,
			Trace:  entryLines(t.snap.flatten(), sep),
		}
		if t.repeat {
			rep.Intervals = append(rep.Intervals, info)
		} else {
			rep.Timers = append(rep.Timers, info)
		}
	}
	l.mu.Unlock()

	sort.Slice(rep.Timers, func(i, j int) bool { return rep.Timers[i].ID < rep.Timers[j].ID })
	sort.Slice(rep.Intervals, func(i, j int) bool { return rep.Intervals[i].ID < rep.Intervals[j].ID })

	if err := fillProcessState(rep); err != nil {
		return rep, err
	}
	return rep, nil
}

func fillProcessState(rep *ResourceReport) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	conns, err := proc.Connections()
	keep(err)
	for _, c := range conns {
		info := SocketInfo{
			Fd:     c.Fd,
			Local:  formatAddr(c.Laddr),
			Remote: formatAddr(c.Raddr),
			Status: c.Status,
		}
		if c.Status == "LISTEN" {
			rep.Servers = append(rep.Servers, info)
		} else {
			rep.Sockets = append(rep.Sockets, info)
		}
	}

	children, err := proc.Children()
	if err != nil && err != process.ErrorNoChildren {
		keep(err)
	}
	for _, ch := range children {
		rep.Children = append(rep.Children, ch.Pid)
	}

	files, err := proc.OpenFiles()
	keep(err)
	for _, f := range files {
		if strings.Contains(f.Path, "inotify") {
			rep.Watchers = append(rep.Watchers, f.Path)
		} else {
			rep.Other = append(rep.Other, f.Path)
		}
	}

	return firstErr
}

func formatAddr(a gnet.Addr) string {
	if a.IP == "" && a.Port == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", a.IP, a.Port)
}

// entryLines renders a flattened chain as plain lines: "at fn (file:line)"
// for frames, the separator token for boundaries. Runtime frames are elided,
// matching the renderers. This is the rendered-ready form attached to handles
// and reports.
func entryLines(entries []Entry, separator string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Boundary {
			out = append(out, separator)
			continue
		}
		if e.Frame.Runtime {
			continue
		}
		out = append(out, "at "+e.Frame.String())
	}
	return out
}
