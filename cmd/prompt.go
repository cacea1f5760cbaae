package cmd

import (
	"github.com/charmbracelet/huh"
)

// SelectOption is one entry of a select prompt.
type SelectOption[T any] struct {
	Label string
	Value T
}

func runField(f huh.Field) error {
	return huh.NewForm(huh.NewGroup(f)).WithShowHelp(true).Run()
}

// promptString asks for a line of text. An empty answer keeps current.
// validate, when set, runs on the effective value and keeps the prompt
// open until it passes.
func promptString(title, description, current string, validate func(string) error) (string, error) {
	var value string
	inp := huh.NewInput().Title(title).Value(&value)
	if description != "" {
		inp = inp.Description(description)
	}
	if current != "" {
		inp = inp.Placeholder(current)
	}
	if validate != nil {
		inp = inp.Validate(func(s string) error {
			if s == "" {
				s = current
			}
			return validate(s)
		})
	}
	if err := runField(inp); err != nil {
		return "", err
	}
	if value == "" {
		return current, nil
	}
	return value, nil
}

// promptSecret asks for a token or password without echoing it. An empty
// answer keeps current.
func promptSecret(title, description, current string) (string, error) {
	var value string
	inp := huh.NewInput().Title(title).EchoMode(huh.EchoModePassword).Value(&value)
	if description != "" {
		inp = inp.Description(description)
	}
	if err := runField(inp); err != nil {
		return "", err
	}
	if value == "" {
		return current, nil
	}
	return value, nil
}

// promptSelect returns the chosen option's value; current is preselected
// when it is one of the options.
func promptSelect[T comparable](title string, options []SelectOption[T], current T) (T, error) {
	value := current
	opts := make([]huh.Option[T], len(options))
	for i, o := range options {
		opts[i] = huh.NewOption(o.Label, o.Value).Selected(o.Value == current)
	}
	if err := runField(huh.NewSelect[T]().Title(title).Options(opts...).Value(&value)); err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

// promptMultiSelect returns the values of all toggled options.
func promptMultiSelect[T comparable](title, description string, options []SelectOption[T], preselected []T) ([]T, error) {
	on := make(map[T]bool, len(preselected))
	for _, v := range preselected {
		on[v] = true
	}
	opts := make([]huh.Option[T], len(options))
	for i, o := range options {
		opts[i] = huh.NewOption(o.Label, o.Value).Selected(on[o.Value])
	}

	var values []T
	ms := huh.NewMultiSelect[T]().Title(title).Options(opts...).Value(&values)
	if description != "" {
		ms = ms.Description(description)
	}
	if err := runField(ms); err != nil {
		return nil, err
	}
	return values, nil
}

func promptConfirm(title string, defaultYes bool) (bool, error) {
	value := defaultYes
	c := huh.NewConfirm().Title(title).Affirmative("Yes").Negative("No").Value(&value)
	if err := runField(c); err != nil {
		return false, err
	}
	return value, nil
}
