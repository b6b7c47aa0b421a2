package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/zhouzirui/ollama-tavern/internal/model/chat"
	"github.com/zhouzirui/ollama-tavern/internal/model/llm"
	chatService "github.com/zhouzirui/ollama-tavern/internal/service/chat"
)

const (
	farewell          = "Ending the roleplay. Farewell, Adventurer!"
	interruptFarewell = "Ending the roleplay via Ctrl+C. Farewell, Adventurer!"
	attachCommand     = "/attach"
	rule              = "=================================================="
)

// Chat runs the interactive loop for one session.
type Chat struct {
	Session *chatService.Session
	In      *LineReader
	Out     io.Writer
	Styles  Styles
	Logger  *zap.Logger

	// ReadFile loads attachments; os.ReadFile when nil.
	ReadFile func(name string) ([]byte, error)
}

// Run prints the banner and the opening scene, then reads user lines until
// quit, end of input or ctx ends. A failed exchange is reported and the loop
// continues; the session has already rolled the user turn back.
func (c *Chat) Run(ctx context.Context) error {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.ReadFile == nil {
		c.ReadFile = os.ReadFile
	}

	p := c.Session.Persona()
	speaker := fmt.Sprintf("%s (%s)", p.Name, llm.ShortName(c.Session.Model()))

	c.println(c.Styles.Rule.Render(rule))
	c.println(c.Styles.Title.Render("Roleplay chat started with model: " + c.Session.Model()))
	c.println("Character loaded from: " + p.File)
	c.println(c.Styles.Muted.Render("Type 'quit' or 'exit' to end the session. '/attach <path>' adds an image to your next message."))
	c.println(c.Styles.Rule.Render(rule))
	c.println("")
	if p.OpeningLine != "" {
		c.println(c.Styles.Speaker.Render("GM:") + " " + c.Styles.Narration.Render(p.OpeningLine))
	}

	var pending [][]byte
	for {
		fmt.Fprint(c.Out, "\n"+c.Styles.User.Render("You (Adventurer):")+" ")
		line, err := c.In.ReadLine(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.println("\n\n" + interruptFarewell)
				return nil
			}
			if errors.Is(err, io.EOF) {
				c.println("\n" + farewell)
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		switch lower := strings.ToLower(line); {
		case lower == "quit" || lower == "exit":
			c.println("\n" + farewell)
			return nil
		case line == "":
			continue
		case lower == attachCommand || strings.HasPrefix(lower, attachCommand+" "):
			if blob, ok := c.attach(strings.TrimSpace(line[len(attachCommand):])); ok {
				pending = [][]byte{blob}
			}
			continue
		}

		fmt.Fprint(c.Out, "\n"+c.Styles.Speaker.Render(speaker+":")+" ")
		reply, err := c.Session.Send(ctx, chat.Input{Content: line, Attachments: pending}, func(f chat.Fragment) error {
			_, werr := io.WriteString(c.Out, f.Text)
			return werr
		})
		c.println("")

		if err != nil {
			if ctx.Err() != nil {
				c.println("\n" + interruptFarewell)
				return nil
			}
			c.Logger.Debug("exchange failed", zap.Error(err))
			c.println(c.Styles.Error.Render(fmt.Sprintf("[ERROR] Could not get response: %v", err)))
			c.println(c.Styles.Muted.Render("Your last message was not kept; you can try again."))
			continue
		}
		pending = nil
		if reply.Content == "" {
			c.println(c.Styles.Muted.Render("(no reply)"))
		}
	}
}

func (c *Chat) attach(path string) ([]byte, bool) {
	if path == "" {
		c.println(c.Styles.Error.Render("Usage: /attach <path-to-image>"))
		return nil, false
	}
	blob, err := c.ReadFile(path)
	if err != nil {
		c.println(c.Styles.Error.Render(fmt.Sprintf("[ERROR] Could not read %s: %v", path, err)))
		return nil, false
	}
	c.println(c.Styles.Muted.Render(fmt.Sprintf("Attached %s (%s) to your next message.", path, humanize.IBytes(uint64(len(blob))))))
	return blob, true
}

func (c *Chat) println(s string) {
	fmt.Fprintln(c.Out, s)
}
