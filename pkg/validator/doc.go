// Package validator provides small, composable validation rules.
//
// A Rule pairs a check with the ValidationError it produces. Apply runs a set
// of rules and returns every failure at once as ValidationErrors, so callers
// can report all problems of a request together:
//
//	err := validator.Apply(
//		validator.RequiredString("template_id", p.TemplateID),
//		validator.ValidEmail("recipients.email", p.Recipients.Email),
//	)
//	if validator.IsValidationError(err) {
//		for _, field := range validator.ExtractValidationErrors(err).Fields() {
//			// ...
//		}
//	}
//
// Each ValidationError carries a translation key and values for localized
// messages.
package validator
