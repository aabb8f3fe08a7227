// Package pfile implements the checkout-state (p-file) records that track
// outstanding "for_edit" locks between Extract and DeltaRecord.Apply, per
// spec.md §3.4.
package pfile

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sccsgo/sccsgo/engine"
	"github.com/sccsgo/sccsgo/sdate"
	"github.com/sccsgo/sccsgo/sid"
)

// Entry is one outstanding checkout lock.
type Entry struct {
	Got      sid.Sid // the delta the edit is based on
	Assigned sid.Sid // the Sid the new delta will receive
	User     string
	Date     sdate.Date
	Include  []sid.Sid // -i list carried from the Extract call, empty if none
	Exclude  []sid.Sid // -x list
}

// render writes one p-file line: "got assigned user date time [-i a,b] [-x c,d]".
func (e Entry) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s %s", e.Got, e.Assigned, e.User, e.Date)
	if len(e.Include) > 0 {
		fmt.Fprintf(&b, " -i%s", joinSids(e.Include))
	}
	if len(e.Exclude) > 0 {
		fmt.Fprintf(&b, " -x%s", joinSids(e.Exclude))
	}
	return b.String()
}

func joinSids(sids []sid.Sid) string {
	parts := make([]string, len(sids))
	for i, s := range sids {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

func parseEntry(line string) (Entry, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return Entry{}, fmt.Errorf("pfile: malformed entry %q", line)
	}
	got, err := sid.Parse(fields[0])
	if err != nil {
		return Entry{}, fmt.Errorf("pfile: bad got sid: %w", err)
	}
	assigned, err := sid.Parse(fields[1])
	if err != nil {
		return Entry{}, fmt.Errorf("pfile: bad assigned sid: %w", err)
	}
	date, err := sdate.Parse(fields[3] + " " + fields[4])
	if err != nil {
		return Entry{}, fmt.Errorf("pfile: bad date: %w", err)
	}
	e := Entry{Got: got, Assigned: assigned, User: fields[2], Date: date}
	for _, extra := range fields[5:] {
		switch {
		case strings.HasPrefix(extra, "-i"):
			sids, perr := parseSidList(extra[2:])
			if perr != nil {
				return Entry{}, perr
			}
			e.Include = sids
		case strings.HasPrefix(extra, "-x"):
			sids, perr := parseSidList(extra[2:])
			if perr != nil {
				return Entry{}, perr
			}
			e.Exclude = sids
		}
	}
	return e, nil
}

func parseSidList(s string) ([]sid.Sid, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]sid.Sid, 0, len(parts))
	for _, p := range parts {
		sv, err := sid.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("pfile: bad sid list entry %q: %w", p, err)
		}
		out = append(out, sv)
	}
	return out, nil
}

// Load reads every entry from a p-file. A missing file is not an error —
// it simply has no outstanding checkouts.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		e, err := parseEntry(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Save rewrites the p-file with exactly the given entries, or removes it
// when entries is empty (spec.md §3.5: "consumed (removed) by DeltaRecord
// or by the unget operation").
func Save(path string, entries []Entry) error {
	if len(entries) == 0 {
		err := os.Remove(path)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.render())
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

// Add appends a new entry to the p-file, enforcing the invariants from
// spec.md §3.4: assigned must not collide with any existing entry's
// assigned Sid, and at most one entry may exist per got Sid per user (the
// classical "already has a copy" check folds into the caller's own
// lookup; Add enforces only the assigned-collision invariant here).
func Add(path string, e Entry) error {
	entries, err := Load(path)
	if err != nil {
		return err
	}
	for _, existing := range entries {
		if existing.Assigned.Equal(e.Assigned) {
			return engine.New(engine.LockHeld, fmt.Sprintf("pfile: Sid %s is already assigned to a pending edit", e.Assigned))
		}
	}
	entries = append(entries, e)
	return Save(path, entries)
}

// Remove deletes the entry whose Got Sid matches got, returning the
// removed entry. Consumed by DeltaRecord.Apply on success and by the
// unget operation on cancellation.
func Remove(path string, got sid.Sid) (Entry, error) {
	entries, err := Load(path)
	if err != nil {
		return Entry{}, err
	}
	for i, e := range entries {
		if e.Got.Equal(got) {
			removed := e
			entries = append(entries[:i], entries[i+1:]...)
			return removed, Save(path, entries)
		}
	}
	return Entry{}, fmt.Errorf("pfile: no outstanding edit based on %s", got)
}

// Find looks up the entry whose Got Sid matches got without mutating the
// file.
func Find(path string, got sid.Sid) (Entry, bool, error) {
	entries, err := Load(path)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.Got.Equal(got) {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}
