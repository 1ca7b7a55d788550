package email

// Template is a string-based enum naming email templates.
type Template string

const (
	// TemplateHarmfulAlert corresponds to templates/harmful_alert.html
	TemplateHarmfulAlert Template = "harmful_alert"
)
