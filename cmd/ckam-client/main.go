// ABOUTME: Terminal client for the ckam messenger server
// ABOUTME: Logs in over HTTP, then chats over the websocket with auto-reconnect

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"

	"github.com/Artemidza/ckam-messenger-v1.01/internal/presence"
	"github.com/Artemidza/ckam-messenger-v1.01/internal/protocol"
	"github.com/Artemidza/ckam-messenger-v1.01/internal/store"
)

// reconnectDelay is the fixed pause between websocket reconnect attempts.
const reconnectDelay = 3 * time.Second

func main() {
	server := flag.String("server", "localhost:3000", "Server host:port")
	username := flag.String("user", "", "Username to log in as")
	password := flag.String("password", "", "Password (prompted if empty)")
	register := flag.Bool("register", false, "Register a new account before logging in")
	flag.Parse()

	if *username == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *server, *username, *password, *register); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// credentialResponse is the JSON body returned by /api/login and /api/register.
type credentialResponse struct {
	Success  bool   `json:"success"`
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
	Error    string `json:"error,omitempty"`
}

// login authenticates against the HTTP API, registering first if requested.
func login(ctx context.Context, server, username, password string, register bool) (string, error) {
	if register {
		if _, err := postCredentials(ctx, server, "/api/register", username, password); err != nil {
			return "", fmt.Errorf("registering: %w", err)
		}
		fmt.Printf("Registered %s\n", username)
	}

	resp, err := postCredentials(ctx, server, "/api/login", username, password)
	if err != nil {
		return "", fmt.Errorf("logging in: %w", err)
	}
	return resp.Token, nil
}

func postCredentials(ctx context.Context, server, path, username, password string) (*credentialResponse, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	url := "http://" + server + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed credentialResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("unexpected response (status %d): %s", resp.StatusCode, data)
	}
	if !parsed.Success {
		if parsed.Error != "" {
			return nil, fmt.Errorf("%s", parsed.Error)
		}
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return &parsed, nil
}

func promptPassword(reader *bufio.Reader) (string, error) {
	fmt.Print("Password: ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func run(ctx context.Context, server, username, password string, register bool) error {
	stdin := bufio.NewReader(os.Stdin)

	if password == "" {
		var err error
		password, err = promptPassword(stdin)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
	}

	if _, err := login(ctx, server, username, password, register); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("Logged in as %s\n", username)
	fmt.Println("Type /help for commands. Ctrl+C to quit.")
	fmt.Println()

	// One stdin pump feeds every session so reconnects don't lose input.
	inputCh := make(chan string)
	inputErr := make(chan error, 1)
	go func() {
		for {
			line, err := stdin.ReadString('\n')
			if err != nil {
				inputErr <- err
				return
			}
			select {
			case inputCh <- strings.TrimSpace(line):
			case <-ctx.Done():
				return
			}
		}
	}()

	// Supervisory loop: each session dials, chats and on transport failure
	// waits a fixed delay before reconnecting. Only context cancellation or
	// a stdin EOF ends the loop.
	for {
		err := runSession(ctx, server, username, inputCh, inputErr)
		switch {
		case err == nil || ctx.Err() != nil:
			return nil
		case err == io.EOF:
			return nil
		default:
			color.New(color.FgYellow).Printf("connection lost: %v, reconnecting in %s\n", err, reconnectDelay)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

// session holds the state of one websocket connection.
type session struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	username  string
	recipient string
}

// send marshals one event and writes it as a single text frame.
func (s *session) send(event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func runSession(ctx context.Context, server, username string, inputCh <-chan string, inputErr <-chan error) error {
	url := "ws://" + server + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", url, err)
	}
	defer conn.Close()

	s := &session{conn: conn, username: username}

	if err := s.send(protocol.Inbound{Type: protocol.TypeLogin, Username: username}); err != nil {
		return fmt.Errorf("sending login: %w", err)
	}

	// Reader goroutine prints server events until the connection drops.
	readErr := make(chan error, 1)
	go func() {
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			s.printEvent(frame)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case err := <-readErr:
			return err
		case err := <-inputErr:
			if err == io.EOF {
				return io.EOF
			}
			return fmt.Errorf("reading input: %w", err)
		case line := <-inputCh:
			if line == "" {
				continue
			}
			quit, err := s.handleInput(line)
			if err != nil {
				color.New(color.FgRed).Printf("[error] %v\n", err)
			}
			if quit {
				return io.EOF
			}
		}
	}
}

// handleInput dispatches one line of user input. Lines starting with "/" are
// commands, anything else is sent to the selected recipient.
func (s *session) handleInput(line string) (quit bool, err error) {
	if !strings.HasPrefix(line, "/") {
		if s.recipient == "" {
			fmt.Println("No recipient selected. Use /to <user> first.")
			return false, nil
		}
		return false, s.send(protocol.Inbound{
			Type:     protocol.TypeMessage,
			Receiver: s.recipient,
			Text:     line,
		})
	}

	cmd, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/quit", "/exit", "/q":
		return true, nil
	case "/to":
		if args == "" {
			s.recipient = ""
			fmt.Println("Cleared recipient selection")
			return false, nil
		}
		s.recipient = args
		fmt.Printf("Now chatting with %s\n", s.recipient)
		return false, s.send(protocol.Inbound{Type: protocol.TypeGetMessages, WithUser: args})
	case "/users":
		return false, s.send(protocol.Inbound{Type: protocol.TypeGetUsers})
	case "/history":
		if s.recipient == "" {
			fmt.Println("No recipient selected. Use /to <user> first.")
			return false, nil
		}
		return false, s.send(protocol.Inbound{Type: protocol.TypeGetMessages, WithUser: s.recipient})
	case "/typing":
		if s.recipient == "" {
			fmt.Println("No recipient selected. Use /to <user> first.")
			return false, nil
		}
		return false, s.send(protocol.Inbound{
			Type:     protocol.TypeTyping,
			Receiver: s.recipient,
			IsTyping: args != "off",
		})
	case "/help":
		printHelp()
		return false, nil
	default:
		fmt.Printf("Unknown command: %s (try /help)\n", cmd)
		return false, nil
	}
}

// printEvent renders one server event to the terminal.
func (s *session) printEvent(frame []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	switch envelope.Type {
	case protocol.TypeInit:
		var ev protocol.Init
		if json.Unmarshal(frame, &ev) != nil {
			return
		}
		fmt.Printf("Connected as %s. %d users known.\n", ev.CurrentUser, len(ev.Users))
		printUsers(ev.Users)
	case protocol.TypeUsersList:
		var ev protocol.UsersList
		if json.Unmarshal(frame, &ev) != nil {
			return
		}
		printUsers(ev.Users)
	case protocol.TypeNewMessage:
		var ev protocol.NewMessage
		if json.Unmarshal(frame, &ev) != nil {
			return
		}
		cyan.Printf("%s: ", ev.Message.Sender)
		fmt.Println(ev.Message.Text)

		// Confirm receipt so the sender's copy flips to read.
		_ = s.send(protocol.Inbound{
			Type:      protocol.TypeReadMessage,
			Sender:    ev.Message.Sender,
			MessageID: ev.Message.ID,
		})
	case protocol.TypeMessageSent:
		var ev protocol.MessageSent
		if json.Unmarshal(frame, &ev) != nil {
			return
		}
		gray.Printf("sent #%d at %s\n", ev.Message.ID, formatTimestamp(ev.Message.Timestamp))
	case protocol.TypeUserStatus:
		var ev protocol.UserStatus
		if json.Unmarshal(frame, &ev) != nil {
			return
		}
		state := "offline"
		if ev.Online {
			state = "online"
		}
		gray.Printf("* %s is now %s\n", ev.Username, state)
	case protocol.TypeUserTyping:
		var ev protocol.UserTyping
		if json.Unmarshal(frame, &ev) != nil {
			return
		}
		if ev.IsTyping {
			gray.Printf("* %s is typing...\n", ev.Username)
		}
	case protocol.TypeMessages:
		var ev protocol.Messages
		if json.Unmarshal(frame, &ev) != nil {
			return
		}
		gray.Printf("--- history with %s (%d messages) ---\n", ev.WithUser, len(ev.Messages))
		for _, msg := range ev.Messages {
			printHistoryMessage(s.username, msg)
		}
	}
}

func printUsers(users []presence.UserPresence) {
	for _, u := range users {
		marker := color.HiBlackString("○")
		if u.Online {
			marker = color.GreenString("●")
		}
		fmt.Printf("  %s %s\n", marker, u.Username)
	}
}

func printHistoryMessage(self string, msg store.Message) {
	when := formatTimestamp(msg.Timestamp)
	if msg.Sender == self {
		fmt.Printf("  [%s] me: %s\n", when, msg.Text)
		return
	}
	fmt.Printf("  [%s] %s: %s\n", when, msg.Sender, msg.Text)
}

func formatTimestamp(epochMillis int64) string {
	return time.UnixMilli(epochMillis).Format("15:04:05")
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /to <user>     Select who to chat with (and fetch history)")
	fmt.Println("  /to            Clear the current recipient")
	fmt.Println("  /users         List users and their presence")
	fmt.Println("  /history       Show history with the current recipient")
	fmt.Println("  /typing [off]  Send a typing indicator")
	fmt.Println("  /quit          Exit")
	fmt.Println()
	fmt.Println("Anything else is sent as a message to the current recipient.")
}
