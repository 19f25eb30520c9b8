package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel-Fehler der Service-Schicht. Handler mappen sie per errors.Is auf
// HTTP-Antworten; Retries übernimmt immer der Aufrufer, nie der Core.
var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidEnumValue = errors.New("invalid enum value")
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrConflict         = errors.New("conflict")
	ErrDatabaseQuery    = errors.New("database query failed")
)

type ApiErr struct {
	StatusCode int
	err        error
	Details    string // Additional details about the error
	Field      string // Field that caused the error (for validation errors)
	Cause      error  // The underlying cause of the error
}

// implements error interface. this allows us to pass an instance of ApiErr as
// an argument of type `error`
func (e *ApiErr) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.err.Error(), e.Details)
	}
	return e.err.Error()
}

// this function allows us to do the following:
// err := &ApiErr{StatusCode: ..., err: someSentinelError}
// errors.Is(err, someSentinelError) ==> evaluates to true
func (e *ApiErr) Unwrap() error {
	return e.err
}

// NewValidation meldet fehlerhafte Eingaben (leerer Titel, Prozentwert
// außerhalb [0,100], ...). Vom Aufrufer durch Korrektur behebbar.
func NewValidation(details string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadRequest,
		err:        ErrValidation,
		Details:    details,
	}
}

// NewInvalidEnumValue meldet einen Wert, der aktuell nicht in der Registry
// für das Feld registriert ist.
func NewInvalidEnumValue(field, value string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusUnprocessableEntity,
		err:        ErrInvalidEnumValue,
		Details:    fmt.Sprintf("%q is not a registered value for %s", value, field),
		Field:      field,
	}
}

func NewNotFound(entity string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusNotFound,
		err:        fmt.Errorf("%s %w", entity, ErrNotFound),
	}
}

// NewForbidden: die Entität existiert, gehört aber einem anderen Owner.
// Intern fürs Audit-Log unterschieden; nach außen maskiert der Handler
// die Antwort als 404, um die Existenz fremder Datensätze nicht zu leaken.
func NewForbidden(entity string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusForbidden,
		err:        ErrForbidden,
		Details:    fmt.Sprintf("%s is owned by another user", entity),
	}
}

// NewConflict: eine Mehrzeilen-Transaktion (z.B. Cascade-Delete) konnte nicht
// atomar abgeschlossen werden, oder eine gesperrte Ressource wurde mutiert.
func NewConflict(details string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusConflict,
		err:        ErrConflict,
		Details:    details,
	}
}

// NewDatabaseError kapselt einen Storage-Fehler mit Angabe der Operation.
func NewDatabaseError(operation, entity string, cause error) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusInternalServerError,
		err:        ErrDatabaseQuery,
		Details:    fmt.Sprintf("failed to %s %s", operation, entity),
		Cause:      cause,
	}
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsInvalidEnumValue(err error) bool {
	return errors.Is(err, ErrInvalidEnumValue)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
