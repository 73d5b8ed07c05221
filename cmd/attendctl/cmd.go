package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/classroll/attendance/internal/apiclient"
	"github.com/classroll/attendance/internal/apierr"
	"github.com/classroll/attendance/internal/attendance"
	"github.com/classroll/attendance/internal/model"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

// inputErrorf reports a problem with the command line itself.
func inputErrorf(format string, args ...any) error {
	return apierr.NewWorkflowError(fmt.Sprintf(format, args...))
}

type commandLine struct {
	client *apiclient.Client
	wf     *attendance.Service
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  login -username USERNAME [-password PASSWORD]   - sign in; the password is prompted when omitted")
	fmt.Fprintln(cli.out, "  logout                                         - forget the stored login")
	fmt.Fprintln(cli.out, "  courses                                        - list courses")
	fmt.Fprintln(cli.out, "  sessions -course ID [-schedule ID]             - list sessions, most recent first")
	fmt.Fprintln(cli.out, "  create -course ID -date DATE -start HH:MM -end HH:MM -type TYPE [-schedule ID] [-remarks TEXT]")
	fmt.Fprintln(cli.out, "  roster -course ID                              - list enrolled students")
	fmt.Fprintln(cli.out, "  mark -course ID -session ID -set STUDENT=STATUS [-time STUDENT=HH:MM] [-remark STUDENT=TEXT]")
	fmt.Fprintln(cli.out, "  finalize -course ID -session ID -yes           - lock a session; this cannot be undone")
	fmt.Fprintln(cli.out, "  summary -session ID                            - show the report of a finalized session")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "login":
		return cli.login(ctx, args[2:])
	case "logout":
		if err := cli.client.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "logged out")
		return nil
	case "courses":
		return cli.courses(ctx)
	case "sessions":
		return cli.sessions(ctx, args[2:])
	case "create":
		return cli.create(ctx, args[2:])
	case "roster":
		return cli.roster(ctx, args[2:])
	case "mark":
		return cli.mark(ctx, args[2:])
	case "finalize":
		return cli.finalize(ctx, args[2:])
	case "summary":
		return cli.summary(ctx, args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) login(ctx context.Context, args []string) error {
	fs := cli.flagSet("login")
	username := fs.String("username", "", "Your username.")
	password := fs.String("password", "", "Your password. Prompted when omitted.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	if *username == "" {
		fs.Usage()
		return errHelp
	}
	pwd := *password
	if pwd == "" {
		fmt.Fprint(cli.out, "Enter password:")
		raw, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		pwd = string(raw)
	}
	cred, err := cli.client.Login(ctx, *username, pwd)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "logged in as %s (%s) until %s\n", *username, cred.Role, cred.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}

func (cli *commandLine) courses(ctx context.Context) error {
	courses, err := cli.client.ListCourses(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCODE\tNAME\tUNITS")
	for _, c := range courses {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", c.ID, c.Code, c.Name, c.Units)
	}
	return w.Flush()
}

func (cli *commandLine) sessions(ctx context.Context, args []string) error {
	fs := cli.flagSet("sessions")
	course := fs.Int64("course", 0, "Course id.")
	schedule := fs.Int64("schedule", 0, "Only sessions of this schedule.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	if *course <= 0 {
		fs.Usage()
		return errHelp
	}
	sessions, err := cli.wf.Directory(ctx, *course, optionalID(*schedule))
	if err != nil {
		return err
	}
	cli.printSessions(sessions)
	return nil
}

func (cli *commandLine) printSessions(sessions []model.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(cli.out, "no sessions yet")
		return
	}
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tTIME\tTYPE\tSTATE")
	for _, s := range sessions {
		state := "open"
		if s.Finalized {
			state = "finalized"
		}
		fmt.Fprintf(w, "%d\t%s\t%s-%s\t%s\t%s\n", s.ID, s.Date, s.StartTime, s.EndTime, s.SessionType, state)
	}
	_ = w.Flush()
}

func (cli *commandLine) create(ctx context.Context, args []string) error {
	fs := cli.flagSet("create")
	var d attendance.Draft
	var schedule int64
	fs.Int64Var(&d.CourseID, "course", 0, "Course id.")
	fs.Int64Var(&schedule, "schedule", 0, "Schedule id.")
	fs.StringVar(&d.Date, "date", "", "Date, YYYY-MM-DD.")
	fs.StringVar(&d.StartTime, "start", "", "Start time, HH:MM.")
	fs.StringVar(&d.EndTime, "end", "", "End time, HH:MM.")
	fs.StringVar(&d.SessionType, "type", "", "LECTURE, LABORATORY, QUIZ, EXAM or OTHER.")
	fs.StringVar(&d.Remarks, "remarks", "", "Optional remarks.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	d.ScheduleID = optionalID(schedule)

	s, err := cli.wf.Compose(ctx, d)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created session %d on %s %s-%s (%s)\n", s.ID, s.Date, s.StartTime, s.EndTime, s.SessionType)
	return nil
}

func (cli *commandLine) roster(ctx context.Context, args []string) error {
	fs := cli.flagSet("roster")
	course := fs.Int64("course", 0, "Course id.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	if *course <= 0 {
		fs.Usage()
		return errHelp
	}
	r, err := cli.wf.LoadRoster(ctx, *course)
	if err != nil {
		return err
	}
	if r.State == attendance.RosterEmpty {
		fmt.Fprintf(cli.out, "no students are enrolled in course %d; enroll students at %s\n", r.CourseID, r.EnrollHint)
		return nil
	}
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPROGRAM\tSECTION")
	for _, e := range r.Entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.StudentID, e.Name, e.Program, e.Section)
	}
	return w.Flush()
}

// open selects a session of a course and builds its ledger.
func (cli *commandLine) open(ctx context.Context, courseID, sessionID int64) (*attendance.Ledger, attendance.Roster, error) {
	sessions, err := cli.wf.Directory(ctx, courseID, nil)
	if err != nil {
		return nil, attendance.Roster{}, err
	}
	var found *model.Session
	for i := range sessions {
		if sessions[i].ID == sessionID {
			found = &sessions[i]
			break
		}
	}
	if found == nil {
		return nil, attendance.Roster{}, inputErrorf("session %d not found in course %d", sessionID, courseID)
	}
	cli.wf.Select(*found)
	return cli.wf.Open(ctx)
}

func (cli *commandLine) mark(ctx context.Context, args []string) error {
	fs := cli.flagSet("mark")
	course := fs.Int64("course", 0, "Course id.")
	session := fs.Int64("session", 0, "Session id.")
	statuses := pairs{}
	times := pairs{}
	remarks := pairs{}
	fs.Var(statuses, "set", "STUDENT=STATUS, repeatable. An empty status clears the entry.")
	fs.Var(times, "time", "STUDENT=HH:MM time-in override, repeatable.")
	fs.Var(remarks, "remark", "STUDENT=TEXT, repeatable.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	if *course <= 0 || *session <= 0 || len(statuses) == 0 {
		fs.Usage()
		return errHelp
	}

	l, r, err := cli.open(ctx, *course, *session)
	if err != nil {
		return err
	}
	if r.State == attendance.RosterEmpty {
		return inputErrorf("no students are enrolled in course %d; enroll students at %s", r.CourseID, r.EnrollHint)
	}
	for id, v := range statuses {
		st, err := model.ParseStatus(v)
		if err != nil {
			return inputErrorf("student %d: %v", id, err)
		}
		if err := l.SetStatus(id, st); err != nil {
			return err
		}
	}
	for id, v := range times {
		if err := l.SetTimeIn(id, v); err != nil {
			return fmt.Errorf("student %d: %w", id, err)
		}
	}
	for id, v := range remarks {
		if err := l.SetRemarks(id, v); err != nil {
			return err
		}
	}

	res, err := cli.wf.Save(ctx, l)
	cli.printLedger(l)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "saved %d of %d records\n", res.Succeeded, res.Attempted)
	return nil
}

func (cli *commandLine) printLedger(l *attendance.Ledger) {
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tTIME IN\tREMARKS")
	for _, row := range l.Rows() {
		status := string(row.Status)
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", row.Student.StudentID, row.Student.Name, status, row.TimeIn, row.Remarks)
	}
	_ = w.Flush()
	if l.State() == attendance.StateFinalized {
		fmt.Fprintln(cli.out, "session is finalized; attendance is read-only")
	}
}

func (cli *commandLine) finalize(ctx context.Context, args []string) error {
	fs := cli.flagSet("finalize")
	course := fs.Int64("course", 0, "Course id.")
	session := fs.Int64("session", 0, "Session id.")
	yes := fs.Bool("yes", false, "Confirm. Finalized attendance can no longer be edited.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	if *course <= 0 || *session <= 0 {
		fs.Usage()
		return errHelp
	}
	l, _, err := cli.open(ctx, *course, *session)
	if err != nil {
		return err
	}
	dir, err := cli.wf.Finalize(ctx, l, *yes)
	var rerr *attendance.RefreshError
	if errors.As(err, &rerr) {
		cli.printLedger(l)
		fmt.Fprintf(cli.out, "warning: could not reload sessions: %s\n", apierr.Describe(rerr.Err).Text)
		return nil
	}
	if err != nil {
		return err
	}
	cli.printLedger(l)
	cli.printSessions(dir)
	return nil
}

func (cli *commandLine) summary(ctx context.Context, args []string) error {
	fs := cli.flagSet("summary")
	session := fs.Int64("session", 0, "Session id.")
	if err := fs.Parse(args); err != nil {
		return errHelp
	}
	if *session <= 0 {
		fs.Usage()
		return errHelp
	}
	sum, err := cli.client.SessionSummary(ctx, *session)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "session %d on %s: %d of %d enrolled recorded, attendance rate %.0f%%\n",
		sum.SessionID, sum.Date, sum.Recorded, sum.Enrolled, sum.AttendanceRate*100)
	for _, st := range model.Statuses {
		fmt.Fprintf(cli.out, "  %-8s %d\n", st, sum.Counts[st])
	}
	return nil
}

func optionalID(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}

// pairs collects repeated STUDENT=VALUE flags.
type pairs map[int64]string

func (p pairs) String() string {
	parts := make([]string, 0, len(p))
	for k, v := range p {
		parts = append(parts, fmt.Sprintf("%d=%s", k, v))
	}
	return strings.Join(parts, ",")
}

func (p pairs) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("expected STUDENT=VALUE, got %q", s)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("student id must be a positive number (got %q)", k)
	}
	p[id] = strings.TrimSpace(v)
	return nil
}
