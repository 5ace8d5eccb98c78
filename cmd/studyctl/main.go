package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/lfelipe/studyhall/internal/session"
	"github.com/lfelipe/studyhall/internal/tui/client"
	qrcode "github.com/skip2/go-qrcode"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := client.New(session.SocketPath(sessionName))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "login":
		cmdLogin(ctx, c)
	case "logout":
		cmdLogout(ctx, c)
	case "groups":
		cmdGroups(ctx, c, *jsonFlag)
	case "join":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: studyctl join <group-id>")
			os.Exit(1)
		}
		cmdJoin(ctx, c, args[1])
	case "msgs":
		chatRef := ""
		if len(args) >= 2 {
			chatRef = args[1]
		}
		cmdMessages(ctx, c, chatRef, *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: studyctl send <chat-ref> <text>")
			os.Exit(1)
		}
		cmdSend(ctx, c, args[1], args[2])
	case "leaderboard":
		cmdLeaderboard(ctx, c, *jsonFlag)
	case "progress":
		subject := ""
		if len(args) >= 2 {
			subject = args[1]
		}
		cmdProgress(ctx, c, subject, *jsonFlag)
	case "pending":
		cmdPending(ctx, c, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: studyctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                 Show session status")
	fmt.Fprintln(os.Stderr, "  login                  Sign in with a device code")
	fmt.Fprintln(os.Stderr, "  logout                 Sign out")
	fmt.Fprintln(os.Stderr, "  groups                 List your study groups")
	fmt.Fprintln(os.Stderr, "  join <group-id>        Join a group")
	fmt.Fprintln(os.Stderr, "  msgs [chat-ref]        Show messages (group_<id> or channel_<id>)")
	fmt.Fprintln(os.Stderr, "  send <chat-ref> <text> Send a message")
	fmt.Fprintln(os.Stderr, "  leaderboard            Show the global ranking")
	fmt.Fprintln(os.Stderr, "  progress [subject]     Show subject progress")
	fmt.Fprintln(os.Stderr, "  pending                Show queued offline writes")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdStatus(ctx context.Context, c *client.Client, jsonOut bool) {
	st, err := c.Status(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("Session: %s\n", st.Session)
	fmt.Printf("Status:  %s\n", st.Status)
	fmt.Printf("Uptime:  %dms\n", st.UptimeMs)
	if st.SignedIn {
		fmt.Printf("User:    %s (%s)\n", st.UserName, st.UserID)
	} else {
		fmt.Println("User:    signed out")
	}
	if st.PendingWrites > 0 || st.FailedWrites > 0 {
		fmt.Printf("Outbox:  %d pending, %d failed\n", st.PendingWrites, st.FailedWrites)
	}
}

func cmdLogin(ctx context.Context, c *client.Client) {
	resp, err := c.Login(ctx)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("Open %s and enter code %s\n\n", resp.VerificationURL, resp.UserCode)
	qr, err := qrcode.New(resp.VerificationURL+"?code="+resp.UserCode, qrcode.Medium)
	if err == nil {
		fmt.Println(qr.ToSmallString(false))
	}
	fmt.Printf("Waiting for approval (expires in %ds). Run 'studyctl status' to check.\n", resp.ExpiresInSec)
}

func cmdLogout(ctx context.Context, c *client.Client) {
	if err := c.Logout(ctx); err != nil {
		fatal(err)
	}
	fmt.Println("Signed out.")
}

func cmdGroups(ctx context.Context, c *client.Client, jsonOut bool) {
	view, err := c.Groups(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(view)
		return
	}
	printStatusLine(view.Status.Offline, view.Status.Notice, view.Status.StaleSince)
	if len(view.Groups) == 0 {
		fmt.Println("No groups.")
		return
	}
	for _, g := range view.Groups {
		kind := "group"
		if g.IsChannel {
			kind = "channel"
		}
		fmt.Printf("%-24s %-8s %-30s %d members\n", g.ID, kind, g.Name, len(g.Members))
	}
}

func cmdJoin(ctx context.Context, c *client.Client, groupID string) {
	if err := c.JoinGroup(ctx, groupID); err != nil {
		fatal(err)
	}
	fmt.Printf("Joined %s.\n", groupID)
}

func cmdMessages(ctx context.Context, c *client.Client, chatRef string, jsonOut bool) {
	view, err := c.Messages(ctx, chatRef)
	if err != nil {
		fatal(err)
	}
	if view.Loading {
		// The subscription just opened; give the first emission a moment.
		time.Sleep(500 * time.Millisecond)
		if view, err = c.Messages(ctx, ""); err != nil {
			fatal(err)
		}
	}
	if jsonOut {
		outputJSON(view)
		return
	}
	printStatusLine(view.Status.Offline, view.Status.Notice, view.Status.StaleSince)
	if view.ChatRef == "" {
		fmt.Println("No chat selected.")
		return
	}
	for _, m := range view.Messages {
		marker := ""
		if m.Offline {
			marker = " [offline]"
		}
		ts := time.UnixMilli(m.SentAt).Format("15:04")
		fmt.Printf("[%s] %s: %s%s\n", ts, m.SenderName, m.Text, marker)
	}
}

func cmdSend(ctx context.Context, c *client.Client, chatRef, text string) {
	if _, err := c.Messages(ctx, chatRef); err != nil {
		fatal(err)
	}
	res, err := c.Send(ctx, text)
	if err != nil {
		fatal(err)
	}
	if res.Queued {
		fmt.Println("Queued for delivery (offline).")
	} else {
		fmt.Println("Sent.")
	}
}

func cmdLeaderboard(ctx context.Context, c *client.Client, jsonOut bool) {
	view, err := c.Leaderboard(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(view)
		return
	}
	printStatusLine(view.Status.Offline, view.Status.Notice, view.Status.StaleSince)
	for i, e := range view.Entries {
		fmt.Printf("%3d. %-24s %d\n", i+1, e.Name, e.TotalScore)
	}
}

func cmdProgress(ctx context.Context, c *client.Client, subject string, jsonOut bool) {
	view, err := c.Progress(ctx, subject)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(view)
		return
	}
	printStatusLine(view.Status.Offline, view.Status.Notice, view.Status.StaleSince)
	if view.Subject == "" {
		fmt.Println("No subject selected.")
		return
	}
	for _, p := range view.Entries {
		fmt.Printf("%s: %d done, %d correct (%.0f%%)\n",
			p.Subject, p.QuestionsDone, p.CorrectAnswers, p.Accuracy*100)
	}
}

func cmdPending(ctx context.Context, c *client.Client, jsonOut bool) {
	view, err := c.Outbox(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(view)
		return
	}
	if len(view.Entries) == 0 {
		fmt.Println("No pending writes.")
		return
	}
	for _, e := range view.Entries {
		line := fmt.Sprintf("%-36s %-28s %-8s attempts=%d", e.ClientID, e.ScopeKey, e.Status, e.Attempts)
		if e.LastError != "" {
			line += " error=" + e.LastError
		}
		fmt.Println(line)
	}
	fmt.Printf("%d pending, %d failed\n", view.Pending, view.Failed)
}

func printStatusLine(offline bool, notice string, staleSince time.Time) {
	if !offline {
		return
	}
	line := "! " + notice
	if !staleSince.IsZero() {
		line += fmt.Sprintf(" (from %s)", staleSince.Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(os.Stderr, line)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
