package prompt

import (
	"errors"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user cancels a prompt with Ctrl+C.
var ErrAborted = errors.New("aborted")

// IsAborted reports whether err means the user backed out of a prompt.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) ||
		errors.Is(err, promptui.ErrAbort) ||
		errors.Is(err, ErrAborted)
}

// normalize folds promptui's interrupt and abort errors into ErrAborted so
// callers have a single sentinel to test.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	if IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Input asks for a line of text, offering defaultValue as the initial answer.
func Input(label, defaultValue string) (string, error) {
	p := promptui.Prompt{
		Label:   label,
		Default: defaultValue,
	}

	answer, err := p.Run()
	return answer, normalize(err)
}

// InputRequired asks for a line of text and refuses an empty answer.
func InputRequired(label string) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Validate: func(s string) error {
			if s == "" {
				return errors.New("a value is required")
			}
			return nil
		},
	}

	answer, err := p.Run()
	return answer, normalize(err)
}
