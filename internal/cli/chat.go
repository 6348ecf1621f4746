// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - interactive chat REPL with conversation management.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/ryansansbury/model-platform/internal/catalog"
	"github.com/ryansansbury/model-platform/internal/config"
	"github.com/ryansansbury/model-platform/internal/model"
	"github.com/ryansansbury/model-platform/internal/relay"
	"github.com/ryansansbury/model-platform/internal/storage"
	"github.com/ryansansbury/model-platform/internal/util"
)

// requestTimeout caps a single chat exchange. Streaming responses from
// slower models can take minutes.
const requestTimeout = 5 * time.Minute

// =============================================================================
// LINE EDITOR
// =============================================================================

// ChatCLI wraps liner with persistent history across sessions.
type ChatCLI struct {
	line        *liner.State
	historyPath string
}

// NewChatCLI creates a line editor with history loaded from the config dir.
func NewChatCLI() (*ChatCLI, error) {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line}

	dir, err := config.ConfigDir()
	if err != nil || config.EnsureConfigDir() != nil {
		// History is a convenience; chat still works without it.
		return c, nil
	}
	c.historyPath = filepath.Join(dir, "chat_history")

	if f, err := os.Open(c.historyPath); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}

	return c, nil
}

// Prompt reads one line of input. Returns liner.ErrPromptAborted on Ctrl+C.
func (c *ChatCLI) Prompt(prompt string) (string, error) {
	return c.line.Prompt(prompt)
}

// AppendHistory records a line for up-arrow recall.
func (c *ChatCLI) AppendHistory(input string) {
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
}

// Close persists history and restores the terminal.
func (c *ChatCLI) Close() {
	if c.historyPath != "" {
		// SECURITY: history may contain prompt text, keep it private
		if f, err := os.OpenFile(c.historyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600); err == nil {
			c.line.WriteHistory(f)
			f.Close()
		}
	}
	c.line.Close()
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// ChatSession holds the state of one interactive chat run.
type ChatSession struct {
	cfg    *config.Config
	store  *storage.Store
	client *relay.Client
	input  *ChatCLI

	conv    *model.Conversation
	history []relay.ChatMessage

	provider    string
	modelID     string
	temperature float64
	maxTokens   int

	// lastList maps display indices from the most recent /list to
	// conversation IDs so /open and /delete can reference them.
	lastList []*model.Conversation

	totalInputTokens  int
	totalOutputTokens int
	totalCost         float64
	startTime         time.Time

	quiet bool
}

// HandleChatCommand runs the interactive chat loop.
func HandleChatCommand(cfg *config.Config, store *storage.Store, client *relay.Client, args Args) error {
	if !IsTTY() {
		return &TTYRequiredError{Command: "chat"}
	}

	session := &ChatSession{
		cfg:         cfg,
		store:       store,
		client:      client,
		provider:    cfg.Client.DefaultProvider,
		modelID:     cfg.Client.DefaultModel,
		temperature: cfg.Client.Temperature,
		maxTokens:   cfg.Client.MaxTokens,
		startTime:   time.Now(),
		quiet:       args.Quiet,
	}
	if args.Provider != "" {
		session.provider = args.Provider
	}
	if args.Model != "" {
		session.modelID = args.Model
	}

	if !catalog.IsProvider(session.provider) {
		return fmt.Errorf("unknown provider: %s", session.provider)
	}
	if _, ok := catalog.Lookup(session.provider, session.modelID); !ok {
		return fmt.Errorf("unknown model for %s: %s", session.provider, session.modelID)
	}

	input, err := NewChatCLI()
	if err != nil {
		return fmt.Errorf("initializing input: %w", err)
	}
	defer input.Close()
	session.input = input

	if !session.quiet {
		session.printWelcome()
	}

	return session.run()
}

func (s *ChatSession) printWelcome() {
	fmt.Println(styled(titleStyle, "model-platform chat"))
	fmt.Printf("%s %s via %s\n", styled(infoStyle, "Model:"), s.modelID, s.provider)
	if !s.store.HasAnyCredential() {
		fmt.Println(styled(infoStyle, "No API keys stored yet. Use /key PROVIDER to add one."))
	}
	fmt.Println(styled(infoStyle, "Type /help for commands, /quit to exit."))
	fmt.Println()
}

// run is the main REPL loop.
func (s *ChatSession) run() error {
	for {
		text, err := s.input.Prompt(styled(promptStyle, "you> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println(styled(infoStyle, "(Ctrl+C again or /quit to exit)"))
				continue
			}
			// io.EOF on Ctrl+D ends the session cleanly.
			s.showStatus()
			return nil
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		s.input.AppendHistory(text)

		if strings.HasPrefix(text, "/") {
			cont, err := s.handleSlashCommand(text)
			if err != nil {
				fmt.Println(styled(errorStyle, "Error: "+err.Error()))
			}
			if !cont {
				return nil
			}
			continue
		}

		if err := s.send(text); err != nil {
			fmt.Println(styled(errorStyle, "Error: "+err.Error()))
		}
	}
}

// =============================================================================
// MESSAGE FLOW
// =============================================================================

// send submits user input, streams the reply, and persists both turns.
func (s *ChatSession) send(text string) error {
	if err := s.ensureConversation(text); err != nil {
		return err
	}

	// RELIABILITY: persist the user turn before the network call so a
	// failed request never loses what the user typed.
	if _, err := s.store.AddMessage(s.conv.ID, model.RoleUser, text, nil); err != nil {
		return err
	}
	s.history = append(s.history, relay.ChatMessage{Role: "user", Content: text})

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	// Ctrl+C during a response cancels the request, not the session.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Print(styled(assistantStyle, "assistant> "))

	var meta *model.Metadata
	var full string
	err := s.client.ChatStream(ctx, relay.ChatParams{
		Provider:    s.provider,
		Model:       s.modelID,
		Messages:    s.history,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	}, relay.StreamCallbacks{
		OnChunk: func(text string) {
			fmt.Print(text)
		},
		OnComplete: func(text string, m *model.Metadata) {
			full = text
			meta = m
		},
	})
	fmt.Println()

	if err != nil {
		var missing *relay.MissingCredentialError
		if errors.As(err, &missing) {
			return fmt.Errorf("%w (use /key %s to add one)", err, missing.Provider)
		}
		return err
	}

	if _, err := s.store.AddMessage(s.conv.ID, model.RoleAssistant, full, meta); err != nil {
		return err
	}
	s.history = append(s.history, relay.ChatMessage{Role: "assistant", Content: full})

	if meta != nil {
		s.totalInputTokens += meta.InputTokens
		s.totalOutputTokens += meta.OutputTokens
		s.totalCost += meta.Cost
		if !s.quiet {
			fmt.Println(styled(statStyle, fmt.Sprintf("[%s | %d in / %d out | %s | %.1fs]",
				meta.Model, meta.InputTokens, meta.OutputTokens,
				util.FormatCost(meta.Cost), meta.ResponseTime)))
		}
	}
	fmt.Println()
	return nil
}

// ensureConversation lazily creates a conversation on the first message,
// titled from that message.
func (s *ChatSession) ensureConversation(firstMessage string) error {
	if s.conv != nil {
		return nil
	}
	conv, err := s.store.CreateConversation(util.TruncateRunes(firstMessage, model.PreviewLength))
	if err != nil {
		return err
	}
	s.conv = conv
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand dispatches a /command. The bool result reports
// whether the REPL should continue.
func (s *ChatSession) handleSlashCommand(input string) (bool, error) {
	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "/help":
		s.showHelp()
		return true, nil

	case "/quit", "/exit", "/q":
		s.showStatus()
		return false, nil

	case "/new":
		title := strings.TrimSpace(strings.TrimPrefix(input, parts[0]))
		return true, s.newConversation(title)

	case "/list", "/ls":
		return true, s.listConversations()

	case "/open":
		if len(args) != 1 {
			return true, fmt.Errorf("usage: /open N (run /list first)")
		}
		return true, s.openConversation(args[0])

	case "/delete", "/rm":
		if len(args) != 1 {
			return true, fmt.Errorf("usage: /delete N (run /list first)")
		}
		return true, s.deleteConversation(args[0])

	case "/rename":
		title := strings.TrimSpace(strings.TrimPrefix(input, parts[0]))
		return true, s.renameConversation(title)

	case "/history":
		return true, s.showHistory()

	case "/models":
		provider := s.provider
		if len(args) > 0 {
			provider = args[0]
		}
		return true, s.showModels(provider)

	case "/provider":
		if len(args) == 0 {
			fmt.Printf("Current provider: %s\n", s.provider)
			return true, nil
		}
		return true, s.switchProvider(args[0])

	case "/model":
		if len(args) == 0 {
			fmt.Printf("Current model: %s (%s)\n", s.modelID, s.provider)
			return true, nil
		}
		return true, s.switchModel(args[0])

	case "/key":
		if len(args) != 1 {
			return true, fmt.Errorf("usage: /key PROVIDER")
		}
		return true, s.storeKey(args[0])

	case "/clear":
		s.history = nil
		s.conv = nil
		fmt.Println(styled(infoStyle, "Context cleared. The next message starts a new conversation."))
		return true, nil

	case "/status", "/stats":
		s.showStatus()
		return true, nil

	default:
		return true, fmt.Errorf("unknown command: %s (try /help)", cmd)
	}
}

func (s *ChatSession) showHelp() {
	fmt.Print(`Commands:
  /new [title]        Start a new conversation
  /list               List saved conversations
  /open N             Open conversation N from the last listing
  /delete N           Delete conversation N from the last listing
  /rename TITLE       Rename the current conversation
  /history            Show the current conversation
  /models [provider]  List available models
  /provider [name]    Show or switch provider
  /model [name]       Show or switch model
  /key PROVIDER       Store an API key (input hidden)
  /clear              Drop in-memory context, keep stored conversations
  /status             Show session statistics
  /quit               Exit
`)
}

func (s *ChatSession) newConversation(title string) error {
	if title == "" {
		title = "New Conversation"
	}
	conv, err := s.store.CreateConversation(title)
	if err != nil {
		return err
	}
	s.conv = conv
	s.history = nil
	fmt.Printf("%s %s\n", styled(infoStyle, "Started:"), styled(titleStyle, conv.Title))
	return nil
}

func (s *ChatSession) listConversations() error {
	convs, err := s.store.ListConversations()
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Println(styled(infoStyle, "No conversations yet."))
		s.lastList = nil
		return nil
	}
	s.lastList = convs
	for i, conv := range convs {
		marker := " "
		if s.conv != nil && conv.ID == s.conv.ID {
			marker = "*"
		}
		fmt.Printf("%s %2d. %s  (%d messages, %s)\n", marker, i+1,
			styled(titleStyle, conv.Title), conv.MessageCount,
			conv.UpdatedAt.Local().Format("2006-01-02 15:04"))
		if conv.Preview != "" {
			fmt.Printf("       %s\n", styled(infoStyle, conv.Preview))
		}
	}
	return nil
}

// resolveListed maps a 1-based index from the last /list to a conversation.
func (s *ChatSession) resolveListed(arg string) (*model.Conversation, error) {
	if len(s.lastList) == 0 {
		return nil, fmt.Errorf("run /list first")
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(s.lastList) {
		return nil, fmt.Errorf("pick a number between 1 and %d", len(s.lastList))
	}
	return s.lastList[n-1], nil
}

func (s *ChatSession) openConversation(arg string) error {
	target, err := s.resolveListed(arg)
	if err != nil {
		return err
	}
	conv, err := s.store.GetConversation(target.ID)
	if err != nil {
		return err
	}
	messages, err := s.store.ListMessages(conv.ID)
	if err != nil {
		return err
	}

	s.conv = conv
	s.history = s.history[:0]
	for _, msg := range messages {
		s.history = append(s.history, relay.ChatMessage{
			Role:    msg.Role.String(),
			Content: msg.Content,
		})
	}
	fmt.Printf("%s %s (%d messages)\n", styled(infoStyle, "Opened:"),
		styled(titleStyle, conv.Title), len(messages))
	return nil
}

func (s *ChatSession) deleteConversation(arg string) error {
	target, err := s.resolveListed(arg)
	if err != nil {
		return err
	}
	if err := s.store.DeleteConversation(target.ID); err != nil {
		return err
	}
	if s.conv != nil && s.conv.ID == target.ID {
		s.conv = nil
		s.history = nil
	}
	s.lastList = nil
	fmt.Printf("%s %s\n", styled(infoStyle, "Deleted:"), target.Title)
	return nil
}

func (s *ChatSession) renameConversation(title string) error {
	if s.conv == nil {
		return fmt.Errorf("no active conversation")
	}
	if title == "" {
		return fmt.Errorf("usage: /rename TITLE")
	}
	conv, err := s.store.UpdateConversation(s.conv.ID, model.ConversationUpdate{Title: &title})
	if err != nil {
		return err
	}
	s.conv = conv
	fmt.Printf("%s %s\n", styled(infoStyle, "Renamed:"), styled(titleStyle, conv.Title))
	return nil
}

func (s *ChatSession) showHistory() error {
	if s.conv == nil {
		fmt.Println(styled(infoStyle, "No active conversation."))
		return nil
	}
	messages, err := s.store.ListMessages(s.conv.ID)
	if err != nil {
		return err
	}
	fmt.Println(styled(titleStyle, s.conv.Title))
	for _, msg := range messages {
		label := msg.Role.DisplayName()
		fmt.Printf("\n%s %s\n", styled(promptStyle, label+":"),
			msg.CreatedAt.Local().Format("15:04:05"))
		fmt.Println(msg.Content)
	}
	return nil
}

func (s *ChatSession) showModels(provider string) error {
	if !catalog.IsProvider(provider) {
		return fmt.Errorf("unknown provider: %s", provider)
	}
	fmt.Println(styled(titleStyle, provider+" models:"))
	for _, info := range catalog.All() {
		if info.Provider != provider {
			continue
		}
		marker := " "
		if provider == s.provider && info.ID == s.modelID {
			marker = "*"
		}
		fmt.Printf("%s %-36s $%.5f/$%.5f per 1K  %s\n", marker, info.ID,
			info.InputCost, info.OutputCost, styled(infoStyle, info.Description))
	}
	return nil
}

func (s *ChatSession) switchProvider(name string) error {
	if !catalog.IsProvider(name) {
		return fmt.Errorf("unknown provider: %s (try /models)", name)
	}
	s.provider = name

	// Pick the provider's first cataloged model so the session stays usable.
	if _, ok := catalog.Lookup(name, s.modelID); !ok {
		for _, info := range catalog.All() {
			if info.Provider == name {
				s.modelID = info.ID
				break
			}
		}
	}
	fmt.Printf("%s %s (model: %s)\n", styled(infoStyle, "Provider:"), s.provider, s.modelID)
	if _, ok := s.store.GetCredential(name); !ok {
		fmt.Println(styled(infoStyle, "No API key stored for "+name+". Use /key "+name+"."))
	}
	return nil
}

func (s *ChatSession) switchModel(name string) error {
	// Accept a model from any provider; switch providers to follow it.
	if _, ok := catalog.Lookup(s.provider, name); ok {
		s.modelID = name
	} else {
		found := false
		for _, info := range catalog.All() {
			if info.ID == name {
				s.provider = info.Provider
				s.modelID = name
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown model: %s (try /models)", name)
		}
	}
	fmt.Printf("%s %s via %s\n", styled(infoStyle, "Model:"), s.modelID, s.provider)
	return nil
}

func (s *ChatSession) storeKey(provider string) error {
	if !catalog.IsProvider(provider) {
		return fmt.Errorf("unknown provider: %s", provider)
	}
	key, err := ReadPassword(fmt.Sprintf("API key for %s: ", provider))
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty key, nothing stored")
	}
	if err := s.store.SetCredential(provider, key); err != nil {
		return err
	}
	fmt.Printf("%s key for %s stored.\n", styled(infoStyle, "OK:"), provider)
	return nil
}

func (s *ChatSession) showStatus() {
	elapsed := time.Since(s.startTime).Round(time.Second)
	fmt.Println(styled(titleStyle, "Session:"))
	fmt.Printf("  Provider/model:  %s / %s\n", s.provider, s.modelID)
	if s.conv != nil {
		fmt.Printf("  Conversation:    %s (%d messages in context)\n", s.conv.Title, len(s.history))
	}
	fmt.Printf("  Tokens:          %d in / %d out\n", s.totalInputTokens, s.totalOutputTokens)
	fmt.Printf("  Cost:            %s\n", util.FormatCost(s.totalCost))
	fmt.Printf("  Duration:        %s\n", elapsed)
}
