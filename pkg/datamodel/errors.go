// SPDX-License-Identifier: Apache-2.0

package datamodel

import "fmt"

// InvariantViolation is returned when a migration step references an
// entity that the invariants of the datamodel require to be present or
// absent, or otherwise breaks a structural guarantee of the datamodel.
type InvariantViolation struct {
	Reason string
}

func (e InvariantViolation) Error() string {
	return e.Reason
}

type ModelAlreadyExistsError struct {
	Name string
}

func (e ModelAlreadyExistsError) Error() string {
	return fmt.Sprintf("model %q already exists", e.Name)
}

type ModelDoesNotExistError struct {
	Name string
}

func (e ModelDoesNotExistError) Error() string {
	return fmt.Sprintf("model %q does not exist", e.Name)
}

type FieldAlreadyExistsError struct {
	Model string
	Name  string
}

func (e FieldAlreadyExistsError) Error() string {
	return fmt.Sprintf("field %q already exists on model %q", e.Name, e.Model)
}

type FieldDoesNotExistError struct {
	Model string
	Name  string
}

func (e FieldDoesNotExistError) Error() string {
	return fmt.Sprintf("field %q does not exist on model %q", e.Name, e.Model)
}

type EnumAlreadyExistsError struct {
	Name string
}

func (e EnumAlreadyExistsError) Error() string {
	return fmt.Sprintf("enum %q already exists", e.Name)
}

type EnumDoesNotExistError struct {
	Name string
}

func (e EnumDoesNotExistError) Error() string {
	return fmt.Sprintf("enum %q does not exist", e.Name)
}

type EnumValueAlreadyExistsError struct {
	Enum  string
	Value string
}

func (e EnumValueAlreadyExistsError) Error() string {
	return fmt.Sprintf("value %q already exists on enum %q", e.Value, e.Enum)
}

type EnumValueDoesNotExistError struct {
	Enum  string
	Value string
}

func (e EnumValueDoesNotExistError) Error() string {
	return fmt.Sprintf("value %q does not exist on enum %q", e.Value, e.Enum)
}

type IndexAlreadyExistsError struct {
	Model string
	Name  string
}

func (e IndexAlreadyExistsError) Error() string {
	return fmt.Sprintf("index %q already exists on model %q", e.Name, e.Model)
}

type IndexDoesNotExistError struct {
	Model string
	Name  string
}

func (e IndexDoesNotExistError) Error() string {
	return fmt.Sprintf("index %q does not exist on model %q", e.Name, e.Model)
}

type UnknownFieldTypeReferenceError struct {
	Model     string
	Field     string
	Reference string
}

func (e UnknownFieldTypeReferenceError) Error() string {
	return fmt.Sprintf("field %q on model %q references unknown type %q", e.Field, e.Model, e.Reference)
}
