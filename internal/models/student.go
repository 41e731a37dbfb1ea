package models

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	// report json names so errors read like the form fields
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

type Student struct {
	ID           int64     `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name" validate:"required,max=100"`
	LastName     string    `db:"last_name" json:"last_name" validate:"required,max=100"`
	Phone        *string   `db:"phone" json:"phone,omitempty" validate:"omitempty,max=20"`
	RegisteredOn time.Time `db:"registered_on" json:"registered_on"`
}

// NewStudent trims the raw form input. An empty phone becomes nil.
func NewStudent(firstName, lastName, phone string) *Student {
	s := &Student{
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
	}
	if p := strings.TrimSpace(phone); p != "" {
		s.Phone = &p
	}
	return s
}

func (s *Student) Validate() error {
	return validate.Struct(s)
}

func (s *Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

func (s *Student) PhoneOrEmpty() string {
	if s.Phone == nil {
		return ""
	}
	return *s.Phone
}
