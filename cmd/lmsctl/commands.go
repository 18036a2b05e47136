package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"

	"aarambh-client/internal/codelab"
	"aarambh-client/internal/excel"
	"aarambh-client/internal/grading"
	"aarambh-client/internal/model"
	"aarambh-client/internal/notify"
	"aarambh-client/internal/submission"
	"aarambh-client/internal/upload"
	"aarambh-client/pkg/errors"
)

// printer shows toasts on the terminal.
type printer struct {
	out io.Writer
}

// syncWriter serialises writes from the progress printer and the toasts.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (p printer) Notify(t notify.Toast) {
	fmt.Fprintf(p.out, "[%s] %s: %s\n", t.Level, t.Title, t.Message)
}

func (cli *commandLine) login(ctx context.Context, email, password string, role model.Role) error {
	user, err := cli.api.Login(ctx, model.LoginRequest{Email: email, Password: password, Role: role})
	if err != nil {
		return fmt.Errorf("login failed: %s", errors.MessageOf(err, "Login failed"))
	}
	fmt.Fprintf(cli.out, "Signed in as %s (%s)\n", user.Name, user.Role)
	return nil
}

func (cli *commandLine) whoami(ctx context.Context) error {
	user, err := cli.api.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s <%s> (%s)\n", user.Name, user.Email, user.Role)
	return nil
}

func (cli *commandLine) createAssignment(ctx context.Context, a model.NewAssignment) error {
	created, err := cli.api.CreateAssignment(ctx, a)
	if err != nil {
		return fmt.Errorf("failed to create assignment: %s", errors.MessageOf(err, "Failed to create assignment"))
	}
	fmt.Fprintf(cli.out, "Created assignment %s (%s), due %s\n", created.ID, created.Title, created.DueDate.Format("2006-01-02"))
	return nil
}

func (cli *commandLine) listAssignments(ctx context.Context, teacher bool) error {
	list := cli.api.StudentAssignments
	if teacher {
		list = cli.api.TeacherAssignments
	}
	assignments, err := list(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCOURSE\tDUE\tSTATUS")
	for _, a := range assignments {
		due := a.DueDate.Format("2006-01-02")
		switch {
		case a.IsOverdue:
			due += " (overdue)"
		case a.IsUrgent:
			due += fmt.Sprintf(" (%d days left)", a.DaysLeft)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Title, a.Course.Name, due, a.Status())
	}
	return w.Flush()
}

func (cli *commandLine) listSubmissions(ctx context.Context, assignmentID string) error {
	subs, err := cli.api.AssignmentSubmissions(ctx, assignmentID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTUDENT\tSTATUS\tSCORE\tPDFS")
	for _, s := range subs {
		score := "-"
		if s.Score != nil {
			score = fmt.Sprintf("%g", *s.Score)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", s.ID, s.Student.Name, s.Status, score, len(s.PDFAttachments()))
	}
	return w.Flush()
}

func (cli *commandLine) submit(ctx context.Context, assignmentID, content string, paths []string) error {
	assignments, err := cli.api.StudentAssignments(ctx)
	if err != nil {
		return err
	}
	var target *model.Assignment
	for i := range assignments {
		if assignments[i].ID == assignmentID {
			target = &assignments[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("assignment %s not found", assignmentID)
	}

	out := &syncWriter{w: cli.out}
	ctrl := submission.NewController(cli.cfg.Submission, submission.Deps{
		API:      cli.api,
		Uploader: cli.uploader,
		Guard:    cli.guard,
		Notifier: printer{out: out},
	})
	if err := ctrl.Open(*target); err != nil {
		return err
	}
	defer ctrl.Close()

	if err := ctrl.SetContent(content); err != nil {
		return err
	}

	files := make([]upload.File, 0, len(paths))
	for _, path := range paths {
		f, err := upload.FromPath(path)
		if err != nil {
			return err
		}
		files = append(files, f)
	}
	rejected, err := ctrl.AddFiles(files...)
	if err != nil {
		return err
	}
	if len(rejected) > 0 {
		return fmt.Errorf("%d file(s) rejected", len(rejected))
	}

	events, cancel := ctrl.Tracker().Subscribe(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			switch {
			case ev.Removed:
			case ev.Error != "":
				fmt.Fprintf(out, "  %s: %s\n", ev.Name, ev.Error)
			case ev.Uploaded:
				fmt.Fprintf(out, "  %s: uploaded\n", ev.Name)
			default:
				fmt.Fprintf(out, "  %s: %d%%\n", ev.Name, ev.Progress)
			}
		}
	}()

	res, err := ctrl.Submit(ctx)
	cancel()
	<-done
	if err != nil {
		return err
	}
	if res.Submission != nil {
		fmt.Fprintf(out, "Submission %s is %s\n", res.Submission.ID, res.Submission.Status)
	}
	return nil
}

func (cli *commandLine) aiAssist(ctx context.Context, submissionID, prompt string) error {
	a := grading.NewAssistant(cli.api, printer{out: cli.out})
	res, err := a.Request(ctx, submissionID, prompt)
	if err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "Suggested score: %g\n", res.Score)
	if res.PDFProcessed {
		fmt.Fprintf(cli.out, "Read from: %s\n", res.PDFName)
	}
	fmt.Fprintf(cli.out, "Feedback:\n%s\n", res.Feedback)
	if len(res.Suggestions) > 0 {
		fmt.Fprintln(cli.out, "Suggestions:")
		for _, s := range res.Suggestions {
			fmt.Fprintf(cli.out, "  - %s\n", s)
		}
	}
	fmt.Fprintln(cli.out, "The suggestion has not been applied. Use grade to record a score.")
	return nil
}

func (cli *commandLine) grade(ctx context.Context, submissionID string, score float64, feedback string) error {
	a := grading.NewAssistant(cli.api, printer{out: cli.out})
	_, err := a.Grade(ctx, submissionID, score, feedback)
	return err
}

func (cli *commandLine) exec(ctx context.Context, language, version, path string) error {
	var (
		src []byte
		err error
	)
	if path == "-" {
		src, err = io.ReadAll(cli.in)
	} else {
		src, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read source: %w", err)
	}

	runner := codelab.NewRunner(cli.api, cli.cfg.CodeLab)
	res, err := runner.Execute(ctx, model.ExecuteRequest{
		Script:       string(src),
		Language:     language,
		VersionIndex: version,
	})
	if err != nil {
		return err
	}

	fmt.Fprint(cli.out, res.Output)
	if !strings.HasSuffix(res.Output, "\n") {
		fmt.Fprintln(cli.out)
	}
	if res.CPUTime.Valid || res.Memory.Valid {
		fmt.Fprintf(cli.out, "-- cpu %gs, memory %gKB\n", res.CPUTime.Value, res.Memory.Value)
	}
	return nil
}

func (cli *commandLine) importGrades(ctx context.Context, path string, check bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read grade sheet: %w", err)
	}

	im := grading.NewImporter(cli.api, excel.NewExcelStrategy(cli.cfg.Grading.MaxScore), cli.cfg.Grading.ImportWorkers)
	if check {
		n, err := im.Check(ctx, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%d rows are valid\n", n)
		return nil
	}
	report, err := im.Import(ctx, data)
	if err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "Graded %d of %d rows\n", report.Graded, report.Total)
	for _, f := range report.Failures {
		fmt.Fprintf(cli.out, "  row %d (%s): %s\n", f.Row, f.SubmissionID, f.Error)
	}
	if len(report.Failures) > 0 {
		return fmt.Errorf("%d row(s) failed", len(report.Failures))
	}
	return nil
}

func (cli *commandLine) notifications(ctx context.Context, markRead bool) error {
	list, err := cli.api.Notifications(ctx)
	if err != nil {
		return err
	}
	unread, err := cli.api.UnreadNotificationCount(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "%d unread\n", unread)
	for _, n := range list {
		mark := " "
		if !n.IsRead {
			mark = "*"
		}
		fmt.Fprintf(cli.out, "%s %s  %s: %s\n", mark, n.CreatedAt.Format("2006-01-02 15:04"), n.Title, n.Message)
	}

	if markRead && unread > 0 {
		if err := cli.api.MarkAllNotificationsRead(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "All notifications marked as read")
	}
	return nil
}

func (cli *commandLine) markRead(ctx context.Context, id string) error {
	if err := cli.api.MarkNotificationRead(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Notification %s marked as read\n", id)
	return nil
}

func (cli *commandLine) logout(ctx context.Context) error {
	if err := cli.api.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "Signed out")
	return nil
}
