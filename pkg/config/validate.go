package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
)

// newValidator registers the deployer-specific tags and struct rules.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("envname", func(fl validator.FieldLevel) bool {
		return environment.ValidateName(fl.Field().String()) == nil
	})

	v.RegisterStructValidation(validateServices, ServicesConfig{})

	return v
}

func validateServices(sl validator.StructLevel) {
	s := sl.Current().Interface().(ServicesConfig)

	if s.Grafana && !s.Prometheus {
		sl.ReportError(s.Grafana, "grafana", "Grafana", "requires_prometheus", "")
	}
	if s.GrafanaDomain != "" && !s.Grafana {
		sl.ReportError(s.GrafanaDomain, "grafana_domain", "GrafanaDomain", "requires_grafana", "")
	}
	if (s.TrackerDomain != "" || s.GrafanaDomain != "") && s.AdminEmail == "" {
		sl.ReportError(s.AdminEmail, "admin_email", "AdminEmail", "required_with_tls", "")
	}
}

// validationError converts validator output into an engine validation error
// listing every offending field.
func validationError(source string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return engine.NewValidationError(fmt.Sprintf("invalid environment config %s", source), err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}

	return engine.NewValidationError(
		fmt.Sprintf("invalid environment config %s: %s", source, strings.Join(msgs, "; ")),
		err,
	).WithDetail("fields", msgs).
		WithHelp("Fix the listed fields in the configuration file and run 'deployer create' again.")
}

// describe renders a field error using the config file's key path.
func describe(fe validator.FieldError) string {
	// Namespace is "EnvironmentConfig.ssh.port"; drop the root type.
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "envname":
		return fmt.Sprintf("%s %q is not a valid environment name (lowercase letters, digits and single dashes, starting with a letter, at most %d characters)",
			field, fe.Value(), environment.MaxNameLength)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "min", "max":
		return fmt.Sprintf("%s must be %s %s", field, map[string]string{"min": "at least", "max": "at most"}[fe.Tag()], fe.Param())
	case "required_if":
		return field + " is required for this provider"
	case "excluded_unless":
		return field + " is not allowed for this provider"
	case "requires_prometheus":
		return "grafana requires prometheus to be enabled"
	case "requires_grafana":
		return "grafana_domain requires grafana to be enabled"
	case "required_with_tls":
		return "admin_email is required when a TLS domain is configured"
	case "fqdn":
		return fmt.Sprintf("%s %q is not a fully qualified domain name", field, fe.Value())
	case "email":
		return fmt.Sprintf("%s %q is not a valid email address", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
