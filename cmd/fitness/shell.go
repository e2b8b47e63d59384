package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"example.com/fitness/internal/app"
	"example.com/fitness/internal/auth"
	"example.com/fitness/internal/domain"
	"example.com/fitness/internal/session"
	"example.com/fitness/internal/view"
)

const shellHelp = `commands:
  login                                 log in through the browser
  logout                                end the session
  list                                  show your activities
  show <id>                             show one activity with its AI analysis
  go <path>                             open a route: /, /login, /activities, /activities/<id>
  add <type> <minutes> <kcal> [k=v ...] record an activity, e.g. add running 30 250 distance=5.2
  refresh                               fetch the current screen again
  types                                 list activity types
  whoami                                show the signed-in user
  quit                                  leave the shell`

type loginer interface {
	LogIn(ctx context.Context) error
}

type sessionReader interface {
	Snapshot() session.Session
}

// syncWriter serializes output from the prompt loop and controller notifications.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

type shell struct {
	app      *app.App
	identity loginer
	sessions sessionReader
	list     *view.ListController
	detail   *view.DetailController
	out      io.Writer

	heading *color.Color
	muted   *color.Color
	warn    *color.Color
	good    *color.Color
}

func newShell(a *app.App, identity loginer, sessions sessionReader, list *view.ListController, detail *view.DetailController, out io.Writer) *shell {
	s := &shell{
		app:      a,
		identity: identity,
		sessions: sessions,
		list:     list,
		detail:   detail,
		out:      &syncWriter{w: out},
		heading:  color.New(color.FgCyan, color.Bold),
		muted:    color.New(color.Faint),
		warn:     color.New(color.FgYellow),
		good:     color.New(color.FgGreen),
	}
	list.Subscribe(func(st view.ListState) {
		if st.Phase == view.PhaseLoaded || st.Phase == view.PhaseFailed {
			s.printList(view.RenderList(st))
		}
	})
	detail.Subscribe(func(st view.DetailState) {
		if st.Phase == view.PhaseLoaded || st.Phase == view.PhaseFailed {
			s.printDetail(view.RenderDetail(st))
		}
	})
	return s
}

func (s *shell) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	s.navigate(ctx, "/")
	for {
		fmt.Fprint(s.out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := s.exec(ctx, line)
			if err != nil {
				s.warn.Fprintf(s.out, "%v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func (s *shell) exec(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
	case "login":
		if err := s.identity.LogIn(ctx); err != nil {
			return false, fmt.Errorf("login failed: %w", err)
		}
		s.navigate(ctx, "/")
	case "logout":
		if err := s.app.Logout(ctx); err != nil {
			return false, err
		}
		s.good.Fprintln(s.out, "Logged out.")
	case "list", "ls":
		s.navigate(ctx, "/activities")
	case "show":
		if len(fields) != 2 {
			return false, errors.New("usage: show <id>")
		}
		s.navigate(ctx, "/activities/"+fields[1])
	case "go":
		if len(fields) != 2 {
			return false, errors.New("usage: go <path>")
		}
		s.navigate(ctx, fields[1])
	case "refresh":
		s.refresh(ctx)
	case "add":
		draft, err := parseDraft(fields[1:])
		if err != nil {
			return false, err
		}
		created, err := s.app.Submit(ctx, draft)
		if err != nil {
			return false, err
		}
		s.good.Fprintf(s.out, "Recorded %s (%s).\n", created.Type.Label(), created.ID)
		s.list.Wait()
	case "types":
		for _, t := range domain.ActivityTypes() {
			fmt.Fprintf(s.out, "  %-16s %s\n", t, t.Label())
		}
	case "whoami":
		s.whoami()
	default:
		return false, fmt.Errorf("unknown command %q, try help", fields[0])
	}
	return false, nil
}

func (s *shell) navigate(ctx context.Context, path string) {
	route, err := s.app.Navigate(ctx, path)
	if err != nil {
		s.warn.Fprintf(s.out, "%v\n", err)
		return
	}
	switch route.Name {
	case app.RouteLogin:
		s.muted.Fprintln(s.out, "Not logged in. Type login to sign in.")
	case app.RouteList:
		s.list.Wait()
	case app.RouteDetail:
		s.detail.Wait()
	}
}

func (s *shell) refresh(ctx context.Context) {
	switch s.app.Current().Name {
	case app.RouteList:
		s.list.Refresh(ctx)
		s.list.Wait()
	case app.RouteDetail:
		s.detail.Reload(ctx)
		s.detail.Wait()
	default:
		s.muted.Fprintln(s.out, "Nothing to refresh.")
	}
}

func (s *shell) whoami() {
	current := s.sessions.Snapshot()
	if !current.AuthReady {
		s.muted.Fprintln(s.out, "Not logged in.")
		return
	}
	claims := auth.FromMap(current.User)
	s.heading.Fprintln(s.out, claims.DisplayName())
	rows := []view.Fact{
		{Label: "subject", Value: claims.Subject},
		{Label: "email", Value: claims.Email},
		{Label: "scopes", Value: strings.Join(claims.ScopeList(), " ")},
	}
	if !claims.ExpiresAt.IsZero() {
		rows = append(rows, view.Fact{Label: "token expires", Value: claims.ExpiresAt.Local().Format(time.DateTime)})
	}
	for _, row := range rows {
		if row.Value != "" {
			fmt.Fprintf(s.out, "  %-16s %s\n", row.Label, row.Value)
		}
	}
}

func (s *shell) printList(v view.ListView) {
	s.heading.Fprintln(s.out, "Activities")
	if v.Message != "" {
		s.printMessage(v.Message, v.Phase, v.Retryable)
		return
	}
	for _, item := range v.Items {
		fmt.Fprintf(s.out, "  %-38s %-16s %s\n", item.ID, item.Title, item.Summary)
	}
}

func (s *shell) printDetail(v view.DetailView) {
	if v.Message != "" {
		s.printMessage(v.Message, v.Phase, v.Retryable)
		return
	}
	s.heading.Fprintln(s.out, v.Title)
	for _, f := range v.Facts {
		fmt.Fprintf(s.out, "  %-16s %s\n", f.Label, f.Value)
	}
	if v.Note != "" {
		s.muted.Fprintf(s.out, "  %s\n", v.Note)
	}
	for _, section := range v.Annotations.Sections() {
		s.heading.Fprintln(s.out, section.Heading)
		for _, line := range section.Lines {
			if section.Fallback {
				s.muted.Fprintf(s.out, "  %s\n", line)
				continue
			}
			fmt.Fprintf(s.out, "  - %s\n", line)
		}
	}
}

func (s *shell) printMessage(msg string, phase view.Phase, retryable bool) {
	if phase != view.PhaseFailed {
		s.muted.Fprintf(s.out, "  %s\n", msg)
		return
	}
	s.warn.Fprintf(s.out, "  %s\n", msg)
	if retryable {
		s.muted.Fprintln(s.out, "  Type refresh to try again.")
	}
}

// parseDraft reads "<type> <minutes> <kcal> [key=value ...]".
func parseDraft(args []string) (domain.Draft, error) {
	if len(args) < 3 {
		return domain.Draft{}, errors.New("usage: add <type> <minutes> <kcal> [key=value ...]")
	}
	activityType, err := domain.ParseActivityType(args[0])
	if err != nil {
		return domain.Draft{}, err
	}
	duration, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return domain.Draft{}, fmt.Errorf("minutes must be a number: %w", err)
	}
	calories, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return domain.Draft{}, fmt.Errorf("kcal must be a number: %w", err)
	}

	draft := domain.Draft{Type: activityType, Duration: duration, CaloriesBurned: calories}
	for _, pair := range args[3:] {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return domain.Draft{}, fmt.Errorf("metric %q must look like key=value", pair)
		}
		if draft.AdditionalMetrics == nil {
			draft.AdditionalMetrics = domain.Metrics{}
		}
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			draft.AdditionalMetrics[key] = n
		} else {
			draft.AdditionalMetrics[key] = value
		}
	}
	return draft, draft.Validate()
}
