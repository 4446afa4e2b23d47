package application

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Form field names, shared with the HTML forms.
const (
	FieldWord = "parola"
	FieldClue = "frase_indizio"
	FieldName = "nome"
)

// Length limits in runes.
const (
	MaxWordLength = 50
	MinClueLength = 10
	MaxClueLength = 200
	MaxNameLength = 50
)

// User-facing validation messages.
const (
	MsgWordRequired   = "La parola è obbligatoria"
	MsgWordLength     = "La parola deve essere tra 1 e 50 caratteri"
	MsgWordCharacters = "La parola può contenere solo lettere e spazi"
	MsgClueRequired   = "La frase indizio è obbligatoria"
	MsgClueTooShort   = "La frase indizio deve essere di almeno 10 caratteri"
	MsgClueLength     = "La frase indizio deve essere tra 10 e 200 caratteri"
	MsgNameRequired   = "Il nome è obbligatorio"
	MsgNameLength     = "Il nome deve essere tra 1 e 50 caratteri"
)

var wordPattern = regexp.MustCompile(`^[a-zA-ZàáèéìíòóùúÀÁÈÉÌÍÒÓÙÚ\s]+$`)

// FieldError is a validation failure tied to one form field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects every field failure of one submission.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Messages returns the user-facing messages in field order.
func (e *ValidationError) Messages() []string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Message)
	}
	return msgs
}

// IsValidWord reports whether every character of the trimmed word is a Latin
// letter, an accented vowel or whitespace.
func IsValidWord(word string) bool {
	return wordPattern.MatchString(strings.TrimSpace(word))
}

// IsValidClue reports whether the trimmed clue is at least MinClueLength runes long.
func IsValidClue(clue string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(clue)) >= MinClueLength
}

// ValidateSubmission checks already sanitized field values. It returns nil when
// all fields are acceptable.
func ValidateSubmission(word, clue, name string) *ValidationError {
	var errs []FieldError

	switch n := utf8.RuneCountInString(word); {
	case n == 0:
		errs = append(errs, FieldError{FieldWord, MsgWordRequired})
	case n > MaxWordLength:
		errs = append(errs, FieldError{FieldWord, MsgWordLength})
	case !IsValidWord(word):
		errs = append(errs, FieldError{FieldWord, MsgWordCharacters})
	}

	switch n := utf8.RuneCountInString(clue); {
	case n == 0:
		errs = append(errs, FieldError{FieldClue, MsgClueRequired})
	case !IsValidClue(clue):
		errs = append(errs, FieldError{FieldClue, MsgClueTooShort})
	case n > MaxClueLength:
		errs = append(errs, FieldError{FieldClue, MsgClueLength})
	}

	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		errs = append(errs, FieldError{FieldName, MsgNameRequired})
	case n > MaxNameLength:
		errs = append(errs, FieldError{FieldName, MsgNameLength})
	}

	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}
