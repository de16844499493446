package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dmaran/parley/internal/api"
	"github.com/dmaran/parley/internal/config"
	"github.com/dmaran/parley/internal/model"
	"github.com/dmaran/parley/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	groupFlag := flag.Bool("group", false, "treat the thread id as a group (select command)")
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

	cfg, err := config.LoadSession(session.SessionConfigPath(sessionName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot load session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	c := &client{
		base: "http://" + cfg.ListenAddr,
		http: &http.Client{Timeout: 10 * time.Second},
	}

	switch args[0] {
	case "status":
		cmdStatus(c, *jsonFlag)
	case "conversations":
		cmdConversations(c, *jsonFlag)
	case "messages":
		cmdMessages(c, *jsonFlag)
	case "select":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: parleyctl select [--group] <thread-id>")
			os.Exit(1)
		}
		cmdSelect(c, args[1], *groupFlag)
	case "send":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: parleyctl send <text>")
			os.Exit(1)
		}
		cmdSend(c, strings.Join(args[1:], " "), *jsonFlag)
	case "presence":
		cmdPresence(c, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: parleyctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                     Show connection state and unread total")
	fmt.Fprintln(os.Stderr, "  conversations              List conversations and groups")
	fmt.Fprintln(os.Stderr, "  messages                   Show the active conversation's messages")
	fmt.Fprintln(os.Stderr, "  select [--group] <id>      Open a conversation or group")
	fmt.Fprintln(os.Stderr, "  send <text>                Send a message to the active conversation")
	fmt.Fprintln(os.Stderr, "  presence                   Show online users and typing state")
}

type client struct {
	base string
	http *http.Client
}

func (c *client) get(path string, out any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return fmt.Errorf("cannot reach daemon: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) post(path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("cannot reach daemon: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdStatus(c *client, jsonOut bool) {
	var st api.StatusResponse
	if err := c.get("/v1/status", &st); err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("State:  %s\n", st.State)
	fmt.Printf("Unread: %d\n", st.TotalUnread)
	if !st.Active.IsZero() {
		kind := "conversation"
		if st.Active.IsGroup {
			kind = "group"
		}
		fmt.Printf("Active: %s (%s)\n", st.Active.ID, kind)
	}
}

func cmdConversations(c *client, jsonOut bool) {
	var items []model.ConversationSummary
	if err := c.get("/v1/conversations", &items); err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(items)
		return
	}
	if len(items) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, it := range items {
		preview := ""
		if it.LastMessage != nil {
			preview = it.LastMessage.Content
			if len(preview) > 40 {
				preview = preview[:40] + "…"
			}
		}
		fmt.Printf("%-24s %-6s %s\n", it.ID, it.Kind, preview)
	}
}

func cmdMessages(c *client, jsonOut bool) {
	var msgs []model.Message
	if err := c.get("/v1/messages", &msgs); err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	if len(msgs) == 0 {
		fmt.Println("No messages. Select a conversation first.")
		return
	}
	for _, m := range msgs {
		ts := time.UnixMilli(m.CreatedAt).Format("15:04")
		marker := ""
		if m.Status == model.StatusPending {
			marker = " (sending…)"
		}
		fmt.Printf("[%s] %s: %s%s\n", ts, m.SenderName, m.Content, marker)
	}
}

func cmdSelect(c *client, id string, isGroup bool) {
	if err := c.post("/v1/select", model.Selection{ID: id, IsGroup: isGroup}, nil); err != nil {
		fail(err)
	}
	fmt.Printf("Selected %s\n", id)
}

func cmdSend(c *client, text string, jsonOut bool) {
	var out map[string]string
	if err := c.post("/v1/send", map[string]string{"content": text}, &out); err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(out)
		return
	}
	fmt.Printf("Queued as %s\n", out["tempId"])
}

func cmdPresence(c *client, jsonOut bool) {
	var p api.PresenceResponse
	if err := c.get("/v1/presence", &p); err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(p)
		return
	}
	if len(p.Online) == 0 {
		fmt.Println("Nobody online.")
	} else {
		fmt.Printf("Online: %s\n", strings.Join(p.Online, ", "))
	}
	if p.TypingUser != "" {
		fmt.Printf("%s is typing…\n", p.TypingUser)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
