// Package prompt wraps promptui for `pgstate init --interactive`.
package prompt

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted reports that the user pressed Ctrl+C or Ctrl+D.
var ErrAborted = errors.New("aborted")

// IsAborted reports whether err means the user left the prompt.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) ||
		errors.Is(err, promptui.ErrInterrupt) ||
		errors.Is(err, promptui.ErrEOF)
}

func wrapError(err error) error {
	if err != nil && IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Input reads one trimmed line. validate may be nil.
func Input(label, defaultValue string, validate func(string) error) (string, error) {
	p := promptui.Prompt{Label: label, Default: defaultValue, Validate: validate}
	answer, err := p.Run()
	if err != nil {
		return "", wrapError(err)
	}
	return strings.TrimSpace(answer), nil
}

// InputPort reads a TCP port number.
func InputPort(label string, defaultValue int) (int, error) {
	answer, err := Input(label, strconv.Itoa(defaultValue), ValidatePort)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(answer)
}

// ValidatePort accepts 1 through 65535.
func ValidatePort(input string) error {
	port, err := strconv.Atoi(strings.TrimSpace(input))
	switch {
	case err != nil:
		return errors.New("must be a number")
	case port < 1 || port > 65535:
		return errors.New("must be between 1 and 65535")
	}
	return nil
}

// Confirm asks a yes/no question. An empty answer yields defaultYes.
func Confirm(label string, defaultYes bool) (bool, error) {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	p := promptui.Prompt{Label: fmt.Sprintf("%s [%s]", label, hint), IsConfirm: true}

	answer, err := p.Run()
	// promptui returns ErrAbort for anything other than "y".
	if errors.Is(err, promptui.ErrAbort) {
		if strings.TrimSpace(answer) == "" {
			return defaultYes, nil
		}
		return false, nil
	}
	if err != nil {
		return false, wrapError(err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

// SelectString lets the user pick one of items. The cursor starts on current
// when it is one of them.
func SelectString(label string, items []string, current string) (string, error) {
	start := max(slices.Index(items, current), 0)
	p := promptui.Select{Label: label, Items: items, Size: len(items), CursorPos: start}
	_, choice, err := p.Run()
	if err != nil {
		return "", wrapError(err)
	}
	return choice, nil
}
