package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"
	"time"

	"aarambh-client/internal/config"
	"aarambh-client/internal/model"
	"aarambh-client/internal/submission"
	"aarambh-client/internal/upload"

	"golang.org/x/term"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

// backend is the part of the LMS client the CLI drives.
type backend interface {
	submission.API
	Login(ctx context.Context, req model.LoginRequest) (*model.User, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*model.User, error)
	StudentAssignments(ctx context.Context) ([]model.Assignment, error)
	TeacherAssignments(ctx context.Context) ([]model.Assignment, error)
	CreateAssignment(ctx context.Context, a model.NewAssignment) (*model.Assignment, error)
	AssignmentSubmissions(ctx context.Context, assignmentID string) ([]model.Submission, error)
	AIGradeSubmission(ctx context.Context, submissionID, prompt string) (*model.AISuggestion, error)
	GradeSubmission(ctx context.Context, submissionID string, req model.GradeRequest) (*model.Submission, error)
	ExecuteCode(ctx context.Context, req model.ExecuteRequest) (*model.ExecuteResult, error)
	Notifications(ctx context.Context) ([]model.Notification, error)
	UnreadNotificationCount(ctx context.Context) (int, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

type commandLine struct {
	cfg      *config.Config
	api      backend
	uploader upload.Uploader
	guard    *submission.Guard
	out      io.Writer
	in       io.Reader
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  login -email EMAIL [-role ROLE]                        - sign in, the password is prompted next")
	fmt.Fprintln(cli.out, "  whoami                                                 - show the signed-in account")
	fmt.Fprintln(cli.out, "  assignments [-teacher] [-submissions ID]               - list assignments or one assignment's submissions")
	fmt.Fprintln(cli.out, "  assignments -create -title T -course ID -due DATE ...  - create an assignment")
	fmt.Fprintln(cli.out, "  submit -assignment ID [-content TEXT] [-file PDF]...   - submit an assignment")
	fmt.Fprintln(cli.out, "  ai-assist -submission ID [-prompt TEXT]                - ask the AI grader for a suggestion")
	fmt.Fprintln(cli.out, "  grade -submission ID -score N [-feedback TEXT]         - grade a submission")
	fmt.Fprintln(cli.out, "  exec -language LANG [-version N] -file PATH|-          - run code in the code lab")
	fmt.Fprintln(cli.out, "  import-grades -file SHEET.xlsx [-check]                - grade submissions from a spreadsheet")
	fmt.Fprintln(cli.out, "  notifications [-mark-read | -read ID]                  - list notifications")
	fmt.Fprintln(cli.out, "  logout                                                 - end the session")
}

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	loginCmd := flag.NewFlagSet("login", flag.ContinueOnError)
	loginEmail := loginCmd.String("email", cli.cfg.Backend.Email, "Account email. The password will be prompted next.")
	loginRole := loginCmd.String("role", "", "Role to sign in as (student, teacher)")

	assignmentsCmd := flag.NewFlagSet("assignments", flag.ContinueOnError)
	assignmentsTeacher := assignmentsCmd.Bool("teacher", false, "List the assignments you teach")
	assignmentsSubs := assignmentsCmd.String("submissions", "", "List the submissions of this assignment")
	assignmentsCreate := assignmentsCmd.Bool("create", false, "Create an assignment instead of listing")
	var newAssignment model.NewAssignment
	assignmentsCmd.StringVar(&newAssignment.Title, "title", "", "Title of the new assignment")
	assignmentsCmd.StringVar(&newAssignment.Description, "description", "", "Description of the new assignment")
	assignmentsCmd.StringVar(&newAssignment.CourseID, "course", "", "Course ID of the new assignment")
	assignmentsCmd.StringVar(&newAssignment.Instructions, "instructions", "", "Instructions for students")
	assignmentsCmd.Float64Var(&newAssignment.TotalPoints, "points", 100, "Total points")
	assignmentsCmd.Float64Var(&newAssignment.PassingScore, "passing", 40, "Passing score")
	assignmentsDue := assignmentsCmd.String("due", "", "Due date, YYYY-MM-DD or RFC 3339")

	submitCmd := flag.NewFlagSet("submit", flag.ContinueOnError)
	submitAssignment := submitCmd.String("assignment", "", "Assignment ID")
	submitContent := submitCmd.String("content", "", "Submission text")
	var submitFiles stringList
	submitCmd.Var(&submitFiles, "file", "PDF to attach (repeatable)")

	aiCmd := flag.NewFlagSet("ai-assist", flag.ContinueOnError)
	aiSubmission := aiCmd.String("submission", "", "Submission ID")
	aiPrompt := aiCmd.String("prompt", "", "Extra instructions for the AI grader")

	gradeCmd := flag.NewFlagSet("grade", flag.ContinueOnError)
	gradeSubmission := gradeCmd.String("submission", "", "Submission ID")
	gradeScore := gradeCmd.Float64("score", -1, "Score to record")
	gradeFeedback := gradeCmd.String("feedback", "", "Feedback for the student")

	execCmd := flag.NewFlagSet("exec", flag.ContinueOnError)
	execLanguage := execCmd.String("language", "", "Language, e.g. python3")
	execVersion := execCmd.String("version", "0", "Language version index")
	execFile := execCmd.String("file", "", "Source file, or - for stdin")

	importCmd := flag.NewFlagSet("import-grades", flag.ContinueOnError)
	importFile := importCmd.String("file", "", "Grade sheet (.xlsx) with submission_id, score and feedback columns")
	importCheck := importCmd.Bool("check", false, "Validate the sheet without grading")

	notificationsCmd := flag.NewFlagSet("notifications", flag.ContinueOnError)
	notificationsMark := notificationsCmd.Bool("mark-read", false, "Mark every notification as read")
	notificationsRead := notificationsCmd.String("read", "", "Mark one notification as read")

	for _, fs := range []*flag.FlagSet{loginCmd, assignmentsCmd, submitCmd, aiCmd, gradeCmd, execCmd, importCmd, notificationsCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "login":
		if err := loginCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *loginEmail == "" {
			loginCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			loginCmd.Usage()
			return errHelp
		}
		return cli.login(ctx, *loginEmail, string(pwd), model.Role(*loginRole))

	case "assignments":
		if err := assignmentsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *assignmentsCreate {
			if *assignmentsDue == "" {
				assignmentsCmd.Usage()
				return errHelp
			}
			due, err := parseDue(*assignmentsDue)
			if err != nil {
				return err
			}
			newAssignment.DueDate = due
			return cli.createAssignment(ctx, newAssignment)
		}
		if *assignmentsSubs != "" {
			return cli.listSubmissions(ctx, *assignmentsSubs)
		}
		return cli.listAssignments(ctx, *assignmentsTeacher)

	case "submit":
		if err := submitCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *submitAssignment == "" {
			submitCmd.Usage()
			return errHelp
		}
		return cli.submit(ctx, *submitAssignment, *submitContent, submitFiles)

	case "ai-assist":
		if err := aiCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *aiSubmission == "" {
			aiCmd.Usage()
			return errHelp
		}
		return cli.aiAssist(ctx, *aiSubmission, *aiPrompt)

	case "grade":
		if err := gradeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *gradeSubmission == "" || *gradeScore < 0 {
			gradeCmd.Usage()
			return errHelp
		}
		return cli.grade(ctx, *gradeSubmission, *gradeScore, *gradeFeedback)

	case "exec":
		if err := execCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *execLanguage == "" || *execFile == "" {
			execCmd.Usage()
			return errHelp
		}
		return cli.exec(ctx, *execLanguage, *execVersion, *execFile)

	case "import-grades":
		if err := importCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importGrades(ctx, *importFile, *importCheck)

	case "notifications":
		if err := notificationsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *notificationsRead != "" {
			return cli.markRead(ctx, *notificationsRead)
		}
		return cli.notifications(ctx, *notificationsMark)

	case "whoami":
		return cli.whoami(ctx)

	case "logout":
		return cli.logout(ctx)

	default:
		cli.printUsage()
		return errHelp
	}
}

// parseDue accepts a calendar date, taken as end of day UTC, or a full timestamp.
func parseDue(v string) (time.Time, error) {
	if d, err := time.Parse("2006-01-02", v); err == nil {
		return d.Add(24*time.Hour - time.Second), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q", v)
	}
	return t, nil
}
