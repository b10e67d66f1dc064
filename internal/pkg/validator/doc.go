// Package validator provides a small validation abstraction for command
// inputs and module dependencies.
//
// Business code should depend on the Validator interface so validation can be
// shared and tested consistently. The concrete implementation wraps
// go-playground/validator v10 and adds the nocolon rule.
package validator
