// Package verify drives the browser UI end to end with a real Chrome.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// ErrNoChoices means the setup screen never offered a model or a character.
var ErrNoChoices = errors.New("setup screen has no models or characters")

// Options configures one UI check.
type Options struct {
	// URL of the running server, e.g. http://localhost:8080/.
	URL string
	// ControlURL connects to an existing Chrome instead of launching one.
	ControlURL string
	// Bin is the Chrome binary; rod downloads one when empty.
	Bin      string
	Headless bool
	// Message, when set, is sent after the chat opens and the reply awaited.
	Message string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Result is what the check saw.
type Result struct {
	Character  string
	Reply      string
	Screenshot []byte
}

// Run opens the page, picks the first model and character, starts a chat
// and optionally exchanges one message.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	controlURL := opts.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(opts.Headless)
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		url, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		defer l.Kill()
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.Page(proto.TargetCreateTarget{URL: opts.URL})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.URL, err)
	}
	page = page.Timeout(opts.Timeout)
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	logger.Debug("page loaded", zap.String("url", opts.URL))

	for _, id := range []string{"#model-select", "#prompt-select"} {
		if err := selectFirst(page, id); err != nil {
			return nil, err
		}
	}

	start, err := page.Element("#start-chat-btn")
	if err != nil {
		return nil, err
	}
	if err := start.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("click start: %w", err)
	}

	screen, err := page.Element("#chat-screen")
	if err != nil {
		return nil, err
	}
	if err := screen.WaitVisible(); err != nil {
		return nil, fmt.Errorf("chat screen never appeared: %w", err)
	}

	res := &Result{}
	name, err := page.Element("#character-name")
	if err != nil {
		return nil, err
	}
	if res.Character, err = name.Text(); err != nil {
		return nil, err
	}
	logger.Info("chat opened", zap.String("character", res.Character))

	if opts.Message != "" {
		if res.Reply, err = exchange(page, opts.Message); err != nil {
			return nil, err
		}
		logger.Info("reply received", zap.Int("chars", len(res.Reply)))
	}

	if res.Screenshot, err = page.Screenshot(true, nil); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return res, nil
}

func selectFirst(page *rod.Page, id string) error {
	// The placeholder is the first option; real choices follow once /api/config answers.
	if _, err := page.Element(id + " > option:nth-child(2)"); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrNoChoices, id)
		}
		return err
	}
	el, err := page.Element(id)
	if err != nil {
		return err
	}
	if err := el.Select([]string{"option:nth-child(2)"}, true, rod.SelectorTypeCSSSector); err != nil {
		return fmt.Errorf("select %s: %w", id, err)
	}
	return nil
}

const replySettled = `() => {
	const c = document.querySelector('#chat-window .message.assistant .content');
	return !!c && c.innerText !== '...' && !document.querySelector('#send-btn').disabled;
}`

func exchange(page *rod.Page, message string) (string, error) {
	input, err := page.Element("#message-input")
	if err != nil {
		return "", err
	}
	if err := input.Input(message); err != nil {
		return "", fmt.Errorf("type message: %w", err)
	}
	send, err := page.Element("#send-btn")
	if err != nil {
		return "", err
	}
	if err := send.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return "", fmt.Errorf("click send: %w", err)
	}
	if err := page.Wait(rod.Eval(replySettled)); err != nil {
		return "", fmt.Errorf("wait for reply: %w", err)
	}

	reply, err := page.Element("#chat-window .message.assistant .content")
	if err != nil {
		return "", err
	}
	text, err := reply.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
