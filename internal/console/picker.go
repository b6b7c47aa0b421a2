package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/zhouzirui/ollama-tavern/internal/model/llm"
	"github.com/zhouzirui/ollama-tavern/internal/model/persona"
)

// ErrNoChoices is returned when there is nothing to pick from.
var ErrNoChoices = errors.New("nothing to choose from")

// Picker asks the user for a persona and a model.
type Picker interface {
	PickPersona(ctx context.Context, items []persona.Persona) (persona.Persona, error)
	PickModel(ctx context.Context, models []llm.ModelInfo) (llm.ModelInfo, error)
}

// PersonaLabel is how a persona appears in a list.
func PersonaLabel(p persona.Persona) string {
	return fmt.Sprintf("%s (%s)", p.Name, p.File)
}

// ModelLabel is how a model appears in a list: "llama3 (4.3 GiB)".
func ModelLabel(m llm.ModelInfo) string {
	return fmt.Sprintf("%s (%s)", m.ShortName(), m.SizeLabel())
}

// NumberedPicker prints a numbered list and reads the choice from a line reader.
type NumberedPicker struct {
	In     *LineReader
	Out    io.Writer
	Styles Styles
}

// PickPersona implements Picker.
func (p *NumberedPicker) PickPersona(ctx context.Context, items []persona.Persona) (persona.Persona, error) {
	labels := make([]string, len(items))
	for i, item := range items {
		labels[i] = PersonaLabel(item)
	}
	i, err := p.pick(ctx, "Available Characters", "Enter the number of the character to use: ", labels)
	if err != nil {
		return persona.Persona{}, err
	}
	return items[i], nil
}

// PickModel implements Picker.
func (p *NumberedPicker) PickModel(ctx context.Context, models []llm.ModelInfo) (llm.ModelInfo, error) {
	labels := make([]string, len(models))
	for i, m := range models {
		labels[i] = ModelLabel(m)
	}
	i, err := p.pick(ctx, "Available Models", "Enter the number of the model to use: ", labels)
	if err != nil {
		return llm.ModelInfo{}, err
	}
	return models[i], nil
}

func (p *NumberedPicker) pick(ctx context.Context, title, prompt string, labels []string) (int, error) {
	if len(labels) == 0 {
		return 0, ErrNoChoices
	}
	fmt.Fprintln(p.Out, p.Styles.Title.Render(title))
	for i, label := range labels {
		fmt.Fprintf(p.Out, "[%d] %s\n", i+1, label)
	}
	for {
		fmt.Fprint(p.Out, prompt)
		line, err := p.In.ReadLine(ctx)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			fmt.Fprintln(p.Out, p.Styles.Error.Render("Invalid input. Please enter a number."))
			continue
		}
		if n < 1 || n > len(labels) {
			fmt.Fprintln(p.Out, p.Styles.Error.Render("Invalid choice. Please enter a number from the list."))
			continue
		}
		return n - 1, nil
	}
}

// HuhPicker uses interactive select menus. It needs a terminal.
type HuhPicker struct{}

// PickPersona implements Picker.
func (HuhPicker) PickPersona(ctx context.Context, items []persona.Persona) (persona.Persona, error) {
	if len(items) == 0 {
		return persona.Persona{}, ErrNoChoices
	}
	options := make([]huh.Option[int], len(items))
	for i, item := range items {
		options[i] = huh.NewOption(PersonaLabel(item), i)
	}
	i, err := runSelect(ctx, "Choose a character", options)
	if err != nil {
		return persona.Persona{}, err
	}
	return items[i], nil
}

// PickModel implements Picker.
func (HuhPicker) PickModel(ctx context.Context, models []llm.ModelInfo) (llm.ModelInfo, error) {
	if len(models) == 0 {
		return llm.ModelInfo{}, ErrNoChoices
	}
	options := make([]huh.Option[int], len(models))
	for i, m := range models {
		options[i] = huh.NewOption(ModelLabel(m), i)
	}
	i, err := runSelect(ctx, "Choose a model", options)
	if err != nil {
		return llm.ModelInfo{}, err
	}
	return models[i], nil
}

func runSelect(ctx context.Context, title string, options []huh.Option[int]) (int, error) {
	var selected int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title(title).
				Options(options...).
				Value(&selected),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return 0, context.Canceled
		}
		return 0, err
	}
	return selected, nil
}
