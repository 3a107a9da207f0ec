package prompt

import "github.com/manifoldco/promptui"

// SelectOption is one entry in a selection menu.
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

// Select shows a menu and returns the Value of the chosen option. Ctrl+C
// surfaces as ErrAborted.
func Select(label string, options []SelectOption) (string, error) {
	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Label | cyan }}",
		Inactive: "  {{ .Label | white }}",
		Selected: "* {{ .Label | green }}",
	}
	if len(options) > 0 && options[0].Description != "" {
		templates.Details = `
{{ "Description:" | faint }}	{{ .Description }}`
	}

	p := promptui.Select{
		Label:     label,
		Items:     options,
		Templates: templates,
		Size:      10,
	}

	i, _, err := p.Run()
	if err != nil {
		return "", normalize(err)
	}

	return options[i].Value, nil
}
