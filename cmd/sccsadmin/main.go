// Command sccsadmin is the demonstration CLI binding the history-file
// engine's packages together: create, get, delta (record a new version),
// prs/prt (reporting), rmdel/cdc (small in-place mutations), val
// (structural check) and graph (dot export), one subcommand per spec.md
// §4 operation. Adapted from the teacher's main.go/cmd/gitgraph/gitgraph.go
// flag/logger/config bootstrap, restructured onto kingpin subcommands
// since this tool exposes several distinct operations rather than one.
package main

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/alitto/pond"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/pkg/profile"

	"github.com/sccsgo/sccsgo/admin"
	"github.com/sccsgo/sccsgo/codec"
	"github.com/sccsgo/sccsgo/config"
	"github.com/sccsgo/sccsgo/engine"
	"github.com/sccsgo/sccsgo/extract"
	"github.com/sccsgo/sccsgo/filelock"
	"github.com/sccsgo/sccsgo/histname"
	"github.com/sccsgo/sccsgo/historygraph"
	"github.com/sccsgo/sccsgo/linediff"
	"github.com/sccsgo/sccsgo/pfile"
	"github.com/sccsgo/sccsgo/record"
	"github.com/sccsgo/sccsgo/report"
	"github.com/sccsgo/sccsgo/sid"
	"github.com/sccsgo/sccsgo/version"
)

var (
	app        = kingpin.New("sccsadmin", "Creates, extracts and reports on SCCS-compatible history files.")
	configFile = app.Flag("config", "Config file for sccsadmin.").Default("sccsadmin.yaml").Short('c').String()
	debug      = app.Flag("debug", "Enable debug-level logging.").Bool()
	doProfile  = app.Flag("profile", "Enable CPU profiling, written to the working directory.").Bool()
	userFlag   = app.Flag("user", "Identity recording delta authorship (overrides $USER).").String()

	createCmd      = app.Command("create", "Create a new history file from an initial body.")
	createSFile    = createCmd.Arg("sfile", "Path of the s.NAME history file to create.").Required().String()
	createInput    = createCmd.Flag("input", "Initial body file (defaults to stdin).").String()
	createMRs      = createCmd.Flag("mr", "Modification request id (repeatable).").Strings()
	createComments = createCmd.Flag("comment", "Initial delta comment line (repeatable).").Strings()
	createBinary   = createCmd.Flag("binary", "Force binary (uuencoded) body storage.").Bool()

	getCmd       = app.Command("get", "Extract (checkout) a revision.")
	getSFile     = getCmd.Arg("sfile", "Path of the s.NAME history file.").Required().String()
	getSid       = getCmd.Flag("id", "Sid to extract (defaults to the highest non-removed Sid, branch deltas included; the d flag is not consulted).").String()
	getEdit      = getCmd.Flag("edit", "Check out for editing, recording a p-file entry.").Short('e').Bool()
	getBranch    = getCmd.Flag("branch", "Start a new branch from the checked-out Sid.").Short('b').Bool()
	getKeywords  = getCmd.Flag("keywords", "Expand %keyword% substitutions.").Short('k').Bool()
	getInclude   = getCmd.Flag("include", "Include ranges (comma-separated Sid ranges).").Short('i').String()
	getExclude   = getCmd.Flag("exclude", "Exclude ranges (comma-separated Sid ranges).").Short('x').String()
	getOutput    = getCmd.Flag("output", "Write the extracted body here (defaults to stdout).").String()

	deltaCmd      = app.Command("delta", "Record a new delta from an edited working file.")
	deltaSFile    = deltaCmd.Arg("sfile", "Path of the s.NAME history file.").Required().String()
	deltaInput    = deltaCmd.Flag("input", "Edited working file (defaults to stdin).").String()
	deltaMRs      = deltaCmd.Flag("mr", "Modification request id (repeatable).").Strings()
	deltaComments = deltaCmd.Flag("comment", "Delta comment line (repeatable).").Strings()

	prsCmd    = app.Command("prs", "Print delta history entries.")
	prsSFile  = prsCmd.Arg("sfile", "Path of the s.NAME history file.").Required().String()
	prsSid    = prsCmd.Flag("id", "Report only this Sid.").String()
	prsFormat = prsCmd.Flag("format", "\":TOKEN:\" format string.").Default(":Dt:\t:DL:\nMRs:\n:MR:COMMENTS:\n:C:").String()

	prtCmd   = app.Command("prt", "Dump a history file's flags, users and delta summaries.")
	prtSFile = prtCmd.Arg("sfile", "Path of the s.NAME history file.").Required().String()

	rmdelCmd   = app.Command("rmdel", "Remove a leaf delta.")
	rmdelSFile = rmdelCmd.Arg("sfile", "Path of the s.NAME history file.").Required().String()
	rmdelSid   = rmdelCmd.Arg("id", "Sid to remove.").Required().String()

	cdcCmd      = app.Command("cdc", "Edit a delta's MRs and comments.")
	cdcSFile    = cdcCmd.Arg("sfile", "Path of the s.NAME history file.").Required().String()
	cdcSid      = cdcCmd.Arg("id", "Sid to edit.").Required().String()
	cdcMRs      = cdcCmd.Flag("mr", "Replacement modification request id (repeatable).").Strings()
	cdcComments = cdcCmd.Flag("comment", "Replacement comment line (repeatable).").Strings()

	valCmd    = app.Command("val", "Validate one or more history files' structure and checksum.")
	valSFiles = valCmd.Arg("sfile", "Path(s) of the s.NAME history file(s).").Required().Strings()

	graphCmd      = app.Command("graph", "Render the delta table as a Graphviz dot graph.")
	graphSFile    = graphCmd.Arg("sfile", "Path of the s.NAME history file.").Required().String()
	graphIncExcl  = graphCmd.Flag("show-include-exclude", "Draw dashed include/exclude cross-reference edges.").Bool()
	graphOutput   = graphCmd.Flag("output", "Write the dot graph here (defaults to stdout).").String()
)

func main() {
	app.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("sccsadmin")).Author("")
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *doProfile {
		defer profile.Start(profile.CPUProfile).Stop()
	}

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug {
		logger.Level = logrus.DebugLevel
	}

	cfg, err := config.LoadConfigFile(*configFile)
	if err != nil {
		logger.Errorf("error loading config file: %v", err)
		os.Exit(2)
	}

	user := *userFlag
	if user == "" {
		user = os.Getenv("USER")
	}
	eng := engine.New(cfg, linediff.New(), engine.StaticUser(user), nil)
	c := codec.New(logger)

	var runErr error
	switch cmd {
	case createCmd.FullCommand():
		runErr = runCreate(c, eng, logger)
	case getCmd.FullCommand():
		runErr = runGet(c, logger)
	case deltaCmd.FullCommand():
		runErr = runDelta(c, eng, logger)
	case prsCmd.FullCommand():
		runErr = runPrs(c, logger)
	case prtCmd.FullCommand():
		runErr = runPrt(c, logger)
	case rmdelCmd.FullCommand():
		runErr = runRmdel(c, logger)
	case cdcCmd.FullCommand():
		runErr = runCdc(c, logger)
	case valCmd.FullCommand():
		runErr = runVal(c, logger)
	case graphCmd.FullCommand():
		runErr = runGraph(logger)
	}
	if runErr != nil {
		logger.Errorf("%v", runErr)
		os.Exit(exitCodeFor(runErr))
	}
}

// exitCodeFor follows spec.md §6.5's two-tier exit contract: any
// *engine.Failure is a per-file operational failure (1), occurring after
// the file was already opened; anything else (flag parsing, an I/O error
// before the engine was reached) exits 2.
func exitCodeFor(err error) int {
	if _, ok := err.(*engine.Failure); ok {
		return 1
	}
	return 2
}

func openInputOrStdin(path string) (*os.File, error) {
	if path == "" {
		return os.Stdin, nil
	}
	return os.Open(path)
}

func openOutputOrStdout(path string) (*os.File, error) {
	if path == "" {
		return os.Stdout, nil
	}
	return os.Create(path)
}

func withLock(path string, logger *logrus.Logger, fn func() error) error {
	n, err := histname.Parse(path)
	if err != nil {
		return engine.New(engine.NotAnSccsHistoryFileName, err.Error())
	}
	lock := filelock.New(n.ZLock(), logger)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}

func runCreate(c *codec.Codec, eng *engine.Engine, logger *logrus.Logger) error {
	in, err := openInputOrStdin(*createInput)
	if err != nil {
		return engine.Wrap(err, "opening initial body")
	}
	if in != os.Stdin {
		defer in.Close()
	}
	return withLock(*createSFile, logger, func() error {
		return admin.Create(c, eng.Config, *createSFile, admin.CreateOptions{
			Input:       in,
			MRs:         *createMRs,
			Comments:    *createComments,
			ForceBinary: *createBinary,
			User:        eng.CurrentUser(),
		}, logger)
	})
}

func runGet(c *codec.Codec, logger *logrus.Logger) error {
	var requested sid.Sid
	if *getSid != "" {
		s, err := sid.Parse(*getSid)
		if err != nil {
			return engine.New(engine.InvalidFlagValue, "invalid -id: "+err.Error())
		}
		requested = s
	}
	var includeList, excludeList []sid.Range
	if *getInclude != "" {
		r, err := sid.ParseRange(*getInclude)
		if err != nil {
			return engine.New(engine.InvalidFlagValue, "invalid -include: "+err.Error())
		}
		includeList = r
	}
	if *getExclude != "" {
		r, err := sid.ParseRange(*getExclude)
		if err != nil {
			return engine.New(engine.InvalidFlagValue, "invalid -exclude: "+err.Error())
		}
		excludeList = r
	}

	n, err := histname.Parse(*getSFile)
	if err != nil {
		return engine.New(engine.NotAnSccsHistoryFileName, err.Error())
	}

	run := func() (*extract.Result, error) {
		return extract.Run(c, n.PFile(), *getSFile, extract.Options{
			RequestedSid: requested,
			IncludeList:  includeList,
			ExcludeList:  excludeList,
			Keywords:     *getKeywords,
			ForEdit:      *getEdit,
			Branch:       *getBranch,
			User:         os.Getenv("USER"),
			GFileBase:    n.Base,
			SFilePath:    *getSFile,
		})
	}

	var res *extract.Result
	if *getEdit {
		err = withLock(*getSFile, logger, func() error {
			var lockErr error
			res, lockErr = run()
			return lockErr
		})
	} else {
		res, err = run()
	}
	if err != nil {
		return err
	}

	out, err := openOutputOrStdout(*getOutput)
	if err != nil {
		return engine.Wrap(err, "opening output")
	}
	if out != os.Stdout {
		defer out.Close()
	}
	for _, line := range res.Lines {
		fmt.Fprintln(out, line)
	}
	if *getEdit {
		logger.Infof("%s: extracted %s for editing as %s", *getSFile, res.GottenSid, res.AssignedSid)
	}
	return nil
}

func runDelta(c *codec.Codec, eng *engine.Engine, logger *logrus.Logger) error {
	in, err := openInputOrStdin(*deltaInput)
	if err != nil {
		return engine.Wrap(err, "opening edited working file")
	}
	if in != os.Stdin {
		defer in.Close()
	}

	n, err := histname.Parse(*deltaSFile)
	if err != nil {
		return engine.New(engine.NotAnSccsHistoryFileName, err.Error())
	}
	pEntries, err := pfile.Load(n.PFile())
	if err != nil {
		return engine.Wrap(err, "reading p-file")
	}
	if len(pEntries) == 0 {
		return engine.New(engine.InvalidFlagValue, "no outstanding edit for "+*deltaSFile)
	}
	got := pEntries[0].Got

	// record.Apply takes the z. lock itself.
	result, err := record.Apply(c, record.Options{
		SFilePath:   *deltaSFile,
		PFilePath:   n.PFile(),
		Got:         got,
		NewContent:  in,
		User:        eng.CurrentUser(),
		MRs:         *deltaMRs,
		Comments:    *deltaComments,
		Differ:      eng.Differ,
		MrValidator: eng.MrValidator,
	})
	if err != nil {
		return err
	}
	logger.Infof("%s: recorded %s (+%d -%d =%d)", *deltaSFile, result.NewSid, result.Inserted, result.Deleted, result.Unchanged)
	return nil
}

func runPrs(c *codec.Codec, logger *logrus.Logger) error {
	hdr, _, closeFn, err := c.Read(*prsSFile)
	if err != nil {
		return err
	}
	closeFn()

	opts := report.PrsOptions{}
	if *prsSid != "" {
		s, err := sid.Parse(*prsSid)
		if err != nil {
			return engine.New(engine.InvalidFlagValue, "invalid -id: "+err.Error())
		}
		opts.Sid = s
	}
	entries, err := report.Prs(hdr.Deltas, opts)
	if err != nil {
		return err
	}
	fmt.Print(report.Render(entries, *prsFormat))
	return nil
}

func runPrt(c *codec.Codec, logger *logrus.Logger) error {
	hdr, _, closeFn, err := c.Read(*prtSFile)
	if err != nil {
		return err
	}
	closeFn()

	rpt := report.Prt(hdr)
	for _, fl := range rpt.Flags {
		if fl.Value == "" {
			fmt.Printf("%c\n", fl.Letter)
		} else {
			fmt.Printf("%c %s\n", fl.Letter, fl.Value)
		}
	}
	for _, u := range rpt.Users {
		fmt.Printf("user %s\n", u)
	}
	for _, e := range rpt.Deltas {
		fmt.Printf("%s %s %s\n", e.Sid, e.Date, e.User)
	}
	return nil
}

func runRmdel(c *codec.Codec, logger *logrus.Logger) error {
	target, err := sid.Parse(*rmdelSid)
	if err != nil {
		return engine.New(engine.InvalidFlagValue, "invalid sid: "+err.Error())
	}
	return withLock(*rmdelSFile, logger, func() error {
		return report.Rmdel(c, *rmdelSFile, target)
	})
}

func runCdc(c *codec.Codec, logger *logrus.Logger) error {
	target, err := sid.Parse(*cdcSid)
	if err != nil {
		return engine.New(engine.InvalidFlagValue, "invalid sid: "+err.Error())
	}
	return withLock(*cdcSFile, logger, func() error {
		return report.Cdc(c, *cdcSFile, report.CdcOptions{
			Sid:      target,
			MRs:      *cdcMRs,
			Comments: *cdcComments,
		})
	})
}

// runVal validates every file in valSFiles concurrently, via a worker pool
// sized the way the teacher's GitParse sizes pool.New(pondSize, 0,
// pond.MinWorkers(10)) for per-commit archive writes: val's checksum and
// isomorphism checks are pure reads, so one s.NAME validates independently
// of any other. Exit status follows spec.md §6.5's "success across all
// files" rule: any single file's problems fail the whole run.
func runVal(c *codec.Codec, logger *logrus.Logger) error {
	pool := pond.New(runtime.NumCPU(), 0, pond.MinWorkers(10))
	defer pool.StopAndWait()

	results := make([][]report.Problem, len(*valSFiles))
	errs := make([]error, len(*valSFiles))
	var group sync.WaitGroup
	for i, path := range *valSFiles {
		i, path := i, path
		group.Add(1)
		pool.Submit(func() {
			defer group.Done()
			results[i], errs[i] = report.Val(c, path)
		})
	}
	group.Wait()

	var anyProblems bool
	for i, path := range *valSFiles {
		if errs[i] != nil {
			logger.Errorf("%s: %v", path, errs[i])
			anyProblems = true
			continue
		}
		for _, p := range results[i] {
			anyProblems = true
			if p.Sid.IsNull() {
				fmt.Printf("%s: %s\n", path, p.Message)
			} else {
				fmt.Printf("%s: %s: %s\n", path, p.Sid, p.Message)
			}
		}
	}
	if anyProblems {
		return engine.New(engine.NotAnSccsHistoryFile, "one or more history files failed validation")
	}
	return nil
}

func runGraph(logger *logrus.Logger) error {
	c := codec.New(logger)
	hdr, _, closeFn, err := c.Read(*graphSFile)
	if err != nil {
		return err
	}
	closeFn()

	g := historygraph.New(logger)
	dot := g.Render(hdr.Deltas, historygraph.Options{ShowIncludeExclude: *graphIncExcl})

	out, err := openOutputOrStdout(*graphOutput)
	if err != nil {
		return engine.Wrap(err, "opening output")
	}
	if out != os.Stdout {
		defer out.Close()
	}
	fmt.Fprint(out, dot)
	return nil
}

